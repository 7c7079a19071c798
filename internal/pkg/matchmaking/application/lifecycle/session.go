package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	match "go-stranger/internal/pkg/matchmaking/application/domain"
	"go-stranger/internal/pkg/matchmaking/application/usecase"
)

const shutdownTimeout = 3 * time.Second

type commandKind int

const (
	cmdSearch commandKind = iota
	cmdCancel
	cmdDisconnect
	cmdSend
)

type command struct {
	kind  commandKind
	text  string
	reply chan error
}

// Session is the connection lifecycle state machine of one client:
//
//	CONNECTING -> READY -> SEARCHING -> CONNECTED -> READY
//
// with ERROR (terminal) and DISCONNECTED (rendezvous link lost, resumes on reopen).
// All state transitions happen on the goroutine running Run; public commands are
// posted to it and wait for the result. Read accessors return a snapshot.
type Session struct {
	cfg        Config
	hooks      Hooks
	endpoint   Endpoint
	presence   Presence
	matcher    Matchmaker
	identities IdentityStore
	logger     *slog.Logger
	now        func() time.Time

	commands chan command
	stopped  chan struct{}
	runOnce  sync.Once

	// Owned by the Run goroutine.
	identity    match.Identity
	address     match.TransportAddress
	outcomes    <-chan usecase.Outcome
	active      Conn
	activeOpen  bool
	dialing     Conn
	dialTarget  match.TransportAddress
	openTimer   *time.Timer
	delayTimer  *time.Timer
	dialTimer   *time.Timer
	awaitTimer  *time.Timer
	reopenTimer *time.Timer

	mu          sync.RWMutex
	phase       match.Phase
	searchState match.SearchState
	entries     []match.Entry
	online      int64
	self        match.TransportAddress
}

// Deps bundles the collaborators a Session is built from.
type Deps struct {
	Endpoint   Endpoint
	Presence   Presence
	Matchmaker Matchmaker
	Identities IdentityStore
	Logger     *slog.Logger
}

func NewSession(cfg Config, deps Deps, hooks Hooks) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		cfg:        cfg.withDefaults(),
		hooks:      hooks,
		endpoint:   deps.Endpoint,
		presence:   deps.Presence,
		matcher:    deps.Matchmaker,
		identities: deps.Identities,
		logger:     logger,
		now:        time.Now,
		commands:   make(chan command),
		stopped:    make(chan struct{}),
		phase:      match.PhaseConnecting,
	}
}

// Run drives the session until ctx is cancelled. It returns an error only when the
// session cannot start at all (no local identity); every later failure degrades
// the session state instead.
func (s *Session) Run(ctx context.Context) error {
	started := false
	s.runOnce.Do(func() { started = true })
	if !started {
		return errors.New("lifecycle: session already ran")
	}
	defer close(s.stopped)

	id, err := s.identities.GetOrCreate()
	if err != nil {
		return fmt.Errorf("lifecycle: load identity: %w", err)
	}
	if !id.Valid() {
		return match.ErrInvalidIdentity
	}
	s.identity = id
	s.logger.Info("session starting", "identity", id)

	go s.countLoop(ctx)

	s.openTimer = time.NewTimer(s.cfg.OpenTimeout)
	if err := s.endpoint.Open(ctx); err != nil {
		s.logger.Error("opening transport endpoint failed", "error", err)
		s.fail(match.NoticeFatal)
	}

	endpointEvents := s.endpoint.Events()
	for {
		var activeEvents, dialEvents <-chan match.Event
		if s.active != nil {
			activeEvents = s.active.Events()
		}
		if s.dialing != nil {
			dialEvents = s.dialing.Events()
		}

		select {
		case <-ctx.Done():
			s.shutdown()
			return nil

		case ev, ok := <-endpointEvents:
			if !ok {
				endpointEvents = nil
				s.fail(match.NoticeFatal)
				continue
			}
			s.handleEndpoint(ctx, ev)

		case ev, ok := <-activeEvents:
			if !ok {
				ev = match.Event{Kind: match.EventClosed}
			}
			s.handleActive(ev)

		case ev, ok := <-dialEvents:
			if !ok {
				ev = match.Event{Kind: match.EventClosed}
			}
			s.handleDial(ev)

		case out := <-s.outcomes:
			s.outcomes = nil
			s.handleOutcome(out)

		case <-timerC(s.openTimer):
			s.openTimer = nil
			if s.Phase() == match.PhaseConnecting {
				s.logger.Error("own address acquisition timed out", "timeout", s.cfg.OpenTimeout)
				s.fail(match.NoticeOpenTimeout)
			}

		case <-timerC(s.delayTimer):
			s.delayTimer = nil
			s.startDial(ctx)

		case <-timerC(s.dialTimer):
			s.dialTimer = nil
			s.logger.Warn("dial timed out", "peer", s.dialTarget, "timeout", s.cfg.DialTimeout)
			s.dialFailed()

		case <-timerC(s.awaitTimer):
			s.awaitTimer = nil
			s.logger.Warn("no incoming session after being claimed", "timeout", s.cfg.AwaitIncomingTimeout)
			s.setSearch(match.SearchIdle)
			s.setPhase(match.PhaseReady)
			s.notice(match.NoticeConnectFailed)

		case <-timerC(s.reopenTimer):
			s.reopenTimer = nil
			s.openTimer = time.NewTimer(s.cfg.OpenTimeout)
			if err := s.endpoint.Reopen(ctx); err != nil {
				s.logger.Error("reopening transport endpoint failed", "error", err)
				s.fail(match.NoticeFatal)
			}

		case cmd := <-s.commands:
			cmd.reply <- s.handleCommand(ctx, cmd)
		}
	}
}

// Search enters SEARCHING. It requires READY and no open or pending chat session.
func (s *Session) Search() error { return s.do(command{kind: cmdSearch}) }

// Cancel stops a running search. It is a no-op when not searching.
func (s *Session) Cancel() error { return s.do(command{kind: cmdCancel}) }

// Disconnect closes the active chat session and cancels any search.
func (s *Session) Disconnect() error { return s.do(command{kind: cmdDisconnect}) }

// Send delivers text to the connected stranger and logs it.
func (s *Session) Send(text string) error { return s.do(command{kind: cmdSend, text: text}) }

func (s *Session) Phase() match.Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

func (s *Session) SearchState() match.SearchState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.searchState
}

// Address is the current own transport address, empty until registered.
func (s *Session) Address() match.TransportAddress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.self
}

// Log returns a copy of the session log.
func (s *Session) Log() []match.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]match.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *Session) OnlineCount() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.online
}

func (s *Session) do(cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case s.commands <- cmd:
	case <-s.stopped:
		return match.ErrSessionTerminated
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-s.stopped:
		return match.ErrSessionTerminated
	}
}

func (s *Session) handleCommand(ctx context.Context, cmd command) error {
	switch cmd.kind {
	case cmdSearch:
		return s.startSearch(ctx)
	case cmdCancel:
		s.cancelSearch(ctx)
		return nil
	case cmdDisconnect:
		if s.active != nil {
			s.logger.Info("closing chat session", "peer", s.active.Peer())
			_ = s.active.Close()
			s.clearActive()
			s.settleAfterChat()
			s.notice(match.NoticeYouLeft)
		}
		s.cancelSearch(ctx)
		return nil
	case cmdSend:
		if s.active == nil || !s.activeOpen {
			return match.ErrNotConnected
		}
		entry, err := match.NewChatEntry(match.SenderMe, cmd.text, s.now())
		if err != nil {
			return err
		}
		if err := s.active.Send(entry.Text); err != nil {
			return fmt.Errorf("lifecycle: send: %w", err)
		}
		s.appendEntry(entry)
		return nil
	default:
		return fmt.Errorf("lifecycle: unknown command %d", cmd.kind)
	}
}

func (s *Session) startSearch(ctx context.Context) error {
	if !s.address.Valid() {
		return match.ErrAddressNotReady
	}
	if s.active != nil || s.dialing != nil {
		return match.ErrSessionActive
	}
	switch s.Phase() {
	case match.PhaseReady:
	case match.PhaseSearching:
		return match.ErrAlreadySearching
	default:
		return match.ErrNotReady
	}

	outcomes, err := s.matcher.Search(ctx, s.address)
	if err != nil {
		return err
	}
	s.outcomes = outcomes
	s.clearLog()
	s.notice(match.NoticeLooking)
	s.setSearch(match.SearchPolling)
	s.setPhase(match.PhaseSearching)
	return nil
}

// cancelSearch ends every part of a search in progress: polling, the pending
// dial, and the wait for an inbound session.
func (s *Session) cancelSearch(ctx context.Context) {
	s.matcher.Cancel(ctx)
	s.outcomes = nil
	stopTimer(&s.delayTimer)
	stopTimer(&s.awaitTimer)
	if s.dialing != nil {
		_ = s.dialing.Close()
		s.dialing = nil
		stopTimer(&s.dialTimer)
	}
	s.setSearch(match.SearchIdle)
	if s.Phase() == match.PhaseSearching {
		s.setPhase(match.PhaseReady)
	}
}

func (s *Session) handleOutcome(out usecase.Outcome) {
	s.logger.Info("search finished", "outcome", out.Kind.String(), "attempts", out.Attempts, "counterpart", out.Counterpart)
	switch out.Kind {
	case usecase.OutcomeMatched:
		s.dialTarget = out.Counterpart
		s.setSearch(match.SearchDialing)
		s.notice(match.NoticeFound)
		s.delayTimer = time.NewTimer(s.cfg.DialDelay)
	case usecase.OutcomeClaimed:
		s.setSearch(match.SearchAwaitingIncoming)
		s.awaitTimer = time.NewTimer(s.cfg.AwaitIncomingTimeout)
	case usecase.OutcomeExhausted:
		s.setSearch(match.SearchIdle)
		s.setPhase(match.PhaseReady)
		s.notice(match.NoticeNoOne)
	}
}

func (s *Session) startDial(ctx context.Context) {
	s.logger.Info("dialing matched peer", "peer", s.dialTarget)
	conn, err := s.endpoint.Dial(ctx, s.dialTarget)
	if err != nil {
		s.logger.Warn("dial failed", "peer", s.dialTarget, "error", err)
		s.dialFailed()
		return
	}
	s.dialing = conn
	s.dialTimer = time.NewTimer(s.cfg.DialTimeout)
}

func (s *Session) handleDial(ev match.Event) {
	switch {
	case ev.Kind == match.EventOpened:
		stopTimer(&s.dialTimer)
		s.active = s.dialing
		s.activeOpen = true
		s.dialing = nil
		s.logger.Info("outbound chat session open", "peer", s.active.Peer())
		s.setSearch(match.SearchIdle)
		s.setPhase(match.PhaseConnected)
		s.notice(match.NoticeConnected)
	case ev.Terminal():
		s.logger.Warn("outbound session failed", "peer", s.dialTarget, "event", ev.Kind.String(), "error", ev.Err)
		s.dialFailed()
	}
}

func (s *Session) dialFailed() {
	stopTimer(&s.dialTimer)
	if s.dialing != nil {
		_ = s.dialing.Close()
		s.dialing = nil
	}
	s.setSearch(match.SearchIdle)
	if s.Phase() == match.PhaseSearching {
		s.setPhase(match.PhaseReady)
	}
	s.notice(match.NoticeConnectFailed)
}

func (s *Session) handleActive(ev match.Event) {
	switch ev.Kind {
	case match.EventOpened:
		s.activeOpen = true
		s.notice(match.NoticeConnected)
	case match.EventData:
		// Received text is logged exactly as sent.
		s.appendEntry(match.Entry{Sender: match.SenderThem, Text: ev.Payload, Time: s.now()})
	case match.EventClosed:
		s.logger.Info("chat session closed by peer", "peer", s.active.Peer())
		s.clearActive()
		s.settleAfterChat()
		s.notice(match.NoticeStrangerLeft)
	case match.EventErrored:
		s.logger.Warn("chat session error", "peer", s.active.Peer(), "error", ev.Err)
		_ = s.active.Close()
		s.clearActive()
		s.settleAfterChat()
		s.notice(match.NoticeConnectionError)
	}
}

// settleAfterChat returns to READY unless the rendezvous link is down, in which
// case the reopen decides.
func (s *Session) settleAfterChat() {
	if s.Phase() == match.PhaseConnected {
		s.setPhase(match.PhaseReady)
	}
}

func (s *Session) handleEndpoint(ctx context.Context, ev EndpointEvent) {
	if s.Phase() == match.PhaseError {
		if ev.Kind == EndpointConnection && ev.Conn != nil {
			_ = ev.Conn.Close()
		}
		return
	}

	switch ev.Kind {
	case EndpointOpened:
		stopTimer(&s.openTimer)
		s.address = ev.Address
		s.setSelf(ev.Address)
		s.logger.Info("registered with rendezvous service", "address", ev.Address)

		// A chat that outlived the registration keeps the session CONNECTED.
		if phase := s.Phase(); phase == match.PhaseConnecting || phase == match.PhaseDisconnected {
			switch {
			case s.active != nil:
				s.setPhase(match.PhaseConnected)
			case phase == match.PhaseConnecting:
				s.setPhase(match.PhaseReady)
				s.notice(match.NoticeReady)
			default:
				s.setPhase(match.PhaseReady)
			}
		}
		_ = s.presence.RefreshPresence(ctx, s.identity, ev.Address)

	case EndpointConnection:
		s.acceptInbound(ctx, ev.Conn)

	case EndpointDisconnected:
		s.logger.Warn("rendezvous link lost, waiting for automatic reconnection")
		if s.Phase() == match.PhaseSearching && s.dialing == nil {
			s.cancelSearch(ctx)
			s.notice(match.NoticeSearchInterrupted)
		}
		if s.Phase() != match.PhaseConnecting {
			s.setPhase(match.PhaseDisconnected)
			s.notice(match.NoticeServerLost)
		}

	case EndpointFailed:
		stopTimer(&s.openTimer)
		if ev.Retryable {
			s.logger.Warn("rendezvous registration rejected, reopening", "error", ev.Err, "delay", s.cfg.ReconnectDelay)
			s.cancelSearch(ctx)
			s.address = ""
			s.setSelf("")
			s.setPhase(match.PhaseConnecting)
			s.notice(match.NoticeReconnecting)
			stopTimer(&s.reopenTimer)
			s.reopenTimer = time.NewTimer(s.cfg.ReconnectDelay)
			return
		}
		s.logger.Error("rendezvous signaling failed", "error", ev.Err)
		s.fail(match.NoticeFatal)
	}
}

// acceptInbound enforces the single-session policy: an inbound session is adopted
// only when no chat is active or being dialed.
func (s *Session) acceptInbound(ctx context.Context, conn Conn) {
	if conn == nil {
		return
	}
	if s.active != nil || s.dialing != nil || s.Phase() == match.PhaseConnecting {
		s.logger.Info("rejecting inbound session, already busy", "peer", conn.Peer())
		_ = conn.Close()
		return
	}

	s.logger.Info("accepting inbound session", "peer", conn.Peer())
	s.cancelSearch(ctx)
	s.active = conn
	s.activeOpen = false
	s.setPhase(match.PhaseConnected)
}

func (s *Session) fail(notice string) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.cancelSearch(ctx)
	if s.active != nil {
		_ = s.active.Close()
		s.clearActive()
	}
	stopTimer(&s.openTimer)
	stopTimer(&s.reopenTimer)
	s.setPhase(match.PhaseError)
	s.notice(notice)
}

func (s *Session) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("session shutting down", "identity", s.identity)
	s.cancelSearch(ctx)
	if s.active != nil {
		_ = s.active.Close()
		s.clearActive()
	}
	for _, t := range []**time.Timer{&s.openTimer, &s.delayTimer, &s.dialTimer, &s.awaitTimer, &s.reopenTimer} {
		stopTimer(t)
	}
	_ = s.presence.RemovePresence(ctx, s.identity)
	s.presence.Stop()
	if err := s.endpoint.Close(); err != nil {
		s.logger.Warn("closing transport endpoint failed", "error", err)
	}
}

func (s *Session) countLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CountInterval)
	defer ticker.Stop()
	for {
		if n, err := s.presence.CountActive(ctx); err == nil {
			s.mu.Lock()
			s.online = n
			s.mu.Unlock()
			if s.hooks.OnCount != nil {
				s.hooks.OnCount(n)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Session) clearActive() {
	s.active = nil
	s.activeOpen = false
}

func (s *Session) setPhase(p match.Phase) {
	s.mu.Lock()
	changed := s.phase != p
	s.phase = p
	s.mu.Unlock()
	if changed {
		s.logger.Info("phase changed", "phase", p.String())
		if s.hooks.OnPhase != nil {
			s.hooks.OnPhase(p)
		}
	}
}

func (s *Session) setSearch(state match.SearchState) {
	s.mu.Lock()
	s.searchState = state
	s.mu.Unlock()
}

func (s *Session) setSelf(addr match.TransportAddress) {
	s.mu.Lock()
	s.self = addr
	s.mu.Unlock()
}

func (s *Session) notice(text string) {
	s.appendEntry(match.Entry{Sender: match.SenderSystem, Text: text, Time: s.now()})
}

func (s *Session) appendEntry(e match.Entry) {
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()
	if s.hooks.OnEntry != nil {
		s.hooks.OnEntry(e)
	}
}

func (s *Session) clearLog() {
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
