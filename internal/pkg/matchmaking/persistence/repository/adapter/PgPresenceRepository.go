package adapter

import (
	"context"
	"errors"
	"time"

	match "go-stranger/internal/pkg/matchmaking/application/domain"
	repository "go-stranger/internal/pkg/matchmaking/persistence/repository/port"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PgPresenceRepository struct {
	pool *pgxpool.Pool
}

var _ repository.PresenceRepository = (*PgPresenceRepository)(nil)

func NewPgPresenceRepository(pool *pgxpool.Pool) *PgPresenceRepository {
	return &PgPresenceRepository{pool: pool}
}

func (r *PgPresenceRepository) Upsert(ctx context.Context, rec match.PresenceRecord) error {
	if r == nil || r.pool == nil {
		return errors.New("PgPresenceRepository: nil pool")
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO matchmaking.presence (user_id, transport_address, last_seen)
		VALUES ($1, NULLIF($2, ''), $3)
		ON CONFLICT (user_id)
		DO UPDATE SET transport_address = EXCLUDED.transport_address,
		              last_seen = EXCLUDED.last_seen
	`, string(rec.Identity), string(rec.Address), rec.LastSeen.UTC())
	return err
}

func (r *PgPresenceRepository) Delete(ctx context.Context, id match.Identity) (int64, error) {
	if r == nil || r.pool == nil {
		return 0, errors.New("PgPresenceRepository: nil pool")
	}
	ct, err := r.pool.Exec(ctx, `DELETE FROM matchmaking.presence WHERE user_id = $1`, string(id))
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func (r *PgPresenceRepository) DeleteSeenBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if r == nil || r.pool == nil {
		return 0, errors.New("PgPresenceRepository: nil pool")
	}
	ct, err := r.pool.Exec(ctx, `DELETE FROM matchmaking.presence WHERE last_seen < $1`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func (r *PgPresenceRepository) Count(ctx context.Context) (int64, error) {
	if r == nil || r.pool == nil {
		return 0, errors.New("PgPresenceRepository: nil pool")
	}
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM matchmaking.presence`).Scan(&n)
	return n, err
}
