package adapter

import (
	"context"
	"errors"
	"time"

	match "go-stranger/internal/pkg/matchmaking/application/domain"
	repository "go-stranger/internal/pkg/matchmaking/persistence/repository/port"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the SQLSTATE Postgres reports for a primary key conflict.
const uniqueViolation = "23505"

type PgWaitingPoolRepository struct {
	pool *pgxpool.Pool
}

var _ repository.WaitingPoolRepository = (*PgWaitingPoolRepository)(nil)

func NewPgWaitingPoolRepository(pool *pgxpool.Pool) *PgWaitingPoolRepository {
	return &PgWaitingPoolRepository{pool: pool}
}

func (r *PgWaitingPoolRepository) Insert(ctx context.Context, e match.WaitingEntry) error {
	if r == nil || r.pool == nil {
		return errors.New("PgWaitingPoolRepository: nil pool")
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO matchmaking.waiting_pool (transport_address, created_at)
		VALUES ($1, $2)
	`, string(e.Address), e.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return repository.ErrDuplicate
	}
	return err
}

func (r *PgWaitingPoolRepository) Delete(ctx context.Context, addr match.TransportAddress) (int64, error) {
	if r == nil || r.pool == nil {
		return 0, errors.New("PgWaitingPoolRepository: nil pool")
	}
	ct, err := r.pool.Exec(ctx, `DELETE FROM matchmaking.waiting_pool WHERE transport_address = $1`, string(addr))
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func (r *PgWaitingPoolRepository) Exists(ctx context.Context, addr match.TransportAddress) (bool, error) {
	if r == nil || r.pool == nil {
		return false, errors.New("PgWaitingPoolRepository: nil pool")
	}
	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM matchmaking.waiting_pool WHERE transport_address = $1)
	`, string(addr)).Scan(&ok)
	return ok, err
}

func (r *PgWaitingPoolRepository) OldestExcluding(ctx context.Context, addr match.TransportAddress) (*match.WaitingEntry, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgWaitingPoolRepository: nil pool")
	}
	var (
		address   string
		createdAt time.Time
	)
	err := r.pool.QueryRow(ctx, `
		SELECT transport_address, created_at
		FROM matchmaking.waiting_pool
		WHERE transport_address <> $1
		ORDER BY created_at ASC, transport_address ASC
		LIMIT 1
	`, string(addr)).Scan(&address, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &match.WaitingEntry{Address: match.TransportAddress(address), CreatedAt: createdAt}, nil
}

// DeletePair locks both rows before deleting them. If either row is already gone
// (claimed by a concurrent poller) nothing is deleted and 0 is returned.
func (r *PgWaitingPoolRepository) DeletePair(ctx context.Context, a, b match.TransportAddress) (int64, error) {
	if r == nil || r.pool == nil {
		return 0, errors.New("PgWaitingPoolRepository: nil pool")
	}
	if a == b {
		return 0, nil
	}
	addresses := []string{string(a), string(b)}

	var removed int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT transport_address
			FROM matchmaking.waiting_pool
			WHERE transport_address = ANY($1)
			FOR UPDATE
		`, addresses)
		if err != nil {
			return err
		}
		locked := 0
		for rows.Next() {
			locked++
		}
		rows.Close()
		if rows.Err() != nil {
			return rows.Err()
		}
		if locked != len(addresses) {
			return nil
		}

		ct, err := tx.Exec(ctx, `DELETE FROM matchmaking.waiting_pool WHERE transport_address = ANY($1)`, addresses)
		if err != nil {
			return err
		}
		removed = ct.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (r *PgWaitingPoolRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if r == nil || r.pool == nil {
		return 0, errors.New("PgWaitingPoolRepository: nil pool")
	}
	ct, err := r.pool.Exec(ctx, `DELETE FROM matchmaking.waiting_pool WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func (r *PgWaitingPoolRepository) Count(ctx context.Context) (int64, error) {
	if r == nil || r.pool == nil {
		return 0, errors.New("PgWaitingPoolRepository: nil pool")
	}
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM matchmaking.waiting_pool`).Scan(&n)
	return n, err
}
