// Package session runs lap machines for connected devices. Each session has
// exactly one goroutine that owns its machine; every mutation and query is
// marshaled onto it as a command.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kdimtricp/laptimer/internal/classify"
	"github.com/kdimtricp/laptimer/internal/lapping"
	"github.com/kdimtricp/laptimer/internal/models"
	"github.com/kdimtricp/laptimer/internal/perflog"
	"github.com/kdimtricp/laptimer/internal/storage"
	"github.com/kdimtricp/laptimer/internal/timeutil"
)

// displayLabels is how many ranked labels a frame shows regardless of TopK.
const displayLabels = 2

var (
	ErrNotFound = errors.New("session not found")
	ErrClosed   = errors.New("session closed")
)

type SessionStore interface {
	Insert(ctx context.Context, session *models.Session) error
	MarkClosed(ctx context.Context, id string, closedAt time.Time) error
}

type LapStore interface {
	Insert(ctx context.Context, lap *models.Lap) error
}

type Config struct {
	Lapping lapping.Config
	// Clock drives lap timestamps and the display tick. Defaults to wall time.
	Clock timeutil.Clock
	// UpdateBuffer is the per-subscriber update queue length.
	UpdateBuffer int
	// PersistBuffer is how many completed laps may wait for the writer.
	PersistBuffer int
}

type Service struct {
	cfg        Config
	sessions   SessionStore
	laps       LapStore
	logs       storage.Storage
	live       map[string]*Session
	closed     bool
	liveMu     sync.RWMutex
	loops      sync.WaitGroup
	persist    chan queuedLap
	writerDone chan struct{}
	closeOnce  sync.Once
}

// queuedLap is a completed lap waiting for the writer. written is called
// once the insert has been attempted.
type queuedLap struct {
	lap     models.Lap
	written func()
}

// NewService starts the lap writer. logs may be nil to disable the
// per-session diagnostic log.
func NewService(sessions SessionStore, laps LapStore, logs storage.Storage, config Config) (*Service, error) {
	if err := config.Lapping.Validate(); err != nil {
		return nil, fmt.Errorf("invalid lapping config: %w", err)
	}
	if config.Clock == nil {
		config.Clock = timeutil.RealClock{}
	}
	if config.UpdateBuffer == 0 {
		config.UpdateBuffer = 64
	}
	if config.PersistBuffer == 0 {
		config.PersistBuffer = 256
	}

	s := &Service{
		cfg:        config,
		sessions:   sessions,
		laps:       laps,
		logs:       logs,
		live:       make(map[string]*Session),
		persist:    make(chan queuedLap, config.PersistBuffer),
		writerDone: make(chan struct{}),
	}
	go s.runWriter()
	return s, nil
}

// Create registers a session and starts its loop. It fails with ErrClosed
// once Close has been called.
func (s *Service) Create(ctx context.Context, model classify.ModelType) (*Session, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	record := models.NewSession(model.String())
	record.CreatedAt = s.cfg.Clock.Now()
	if err := s.sessions.Insert(ctx, record); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	session := &Session{
		ID:        record.ID,
		Model:     model,
		CreatedAt: record.CreatedAt,
		cmds:      make(chan command),
		done:      make(chan struct{}),
		cancel:    cancel,
		hub:       newHub(s.cfg.UpdateBuffer),
		machine:   lapping.New(s.cfg.Lapping, s.cfg.Clock),
		laps:      []models.Lap{},
	}
	if s.logs != nil {
		session.perf = perflog.NewRecorder(s.logs, session.ID+".csv")
	}

	// Registration and loops.Add share the lock with Close so no loop can
	// start after Close has begun waiting.
	s.liveMu.Lock()
	if s.closed {
		s.liveMu.Unlock()
		cancel()
		if err := s.sessions.MarkClosed(ctx, record.ID, s.cfg.Clock.Now()); err != nil {
			log.Printf("[SESSION] Failed to mark session %s closed: %v", record.ID, err)
		}
		return nil, ErrClosed
	}
	s.live[session.ID] = session
	s.loops.Add(1)
	s.liveMu.Unlock()

	go s.runLoop(loopCtx, session)

	log.Printf("[SESSION] Created session %s (model %s)", session.ID, model)
	return session, nil
}

func (s *Service) Get(id string) (*Session, bool) {
	s.liveMu.RLock()
	defer s.liveMu.RUnlock()

	session, ok := s.live[id]
	return session, ok
}

func (s *Service) isClosed() bool {
	s.liveMu.RLock()
	defer s.liveMu.RUnlock()
	return s.closed
}

func (s *Service) Start(ctx context.Context, id string) (Snapshot, error) {
	return s.do(ctx, id, func(sess *Session) []lapping.Change {
		return sess.machine.Start()
	})
}

func (s *Service) Stop(ctx context.Context, id string) (Snapshot, error) {
	return s.do(ctx, id, func(sess *Session) []lapping.Change {
		return sess.machine.Stop()
	})
}

// Observe feeds ranked observations, best first.
func (s *Service) Observe(ctx context.Context, id string, obs []lapping.Observation) (Snapshot, error) {
	top := make([]classify.Label, len(obs))
	for i, o := range obs {
		top[i] = classify.Label{Name: o.Label, Confidence: o.Confidence}
	}
	return s.observe(ctx, id, top, obs)
}

// observe shows top on displays and feeds obs to the machine.
func (s *Service) observe(ctx context.Context, id string, top []classify.Label, obs []lapping.Observation) (Snapshot, error) {
	return s.do(ctx, id, func(sess *Session) []lapping.Change {
		sess.top = top
		return sess.machine.ObserveRanked(obs)
	})
}

// ObserveFrame ranks a full probability map, feeds the best TopK entries and
// appends a diagnostic log line for the frame. Displays always get at least
// the two best labels.
func (s *Service) ObserveFrame(ctx context.Context, id string, frame Frame) (Snapshot, error) {
	session, ok := s.Get(id)
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	if session.perf != nil {
		session.perf.Record(frame.Latency, frame.FramesDropped)
	}

	topK := s.cfg.Lapping.TopK
	top := classify.Rank(frame.Probabilities, max(topK, displayLabels))
	return s.observe(ctx, id, top, classify.Observations(top[:min(topK, len(top))]))
}

func (s *Service) Snapshot(ctx context.Context, id string) (Snapshot, error) {
	return s.do(ctx, id, func(*Session) []lapping.Change { return nil })
}

// Subscribe returns a channel of updates for the session. The channel is
// closed when the session ends or Unsubscribe is called.
func (s *Service) Subscribe(id string) (<-chan Update, func(), error) {
	session, ok := s.Get(id)
	if !ok {
		return nil, nil, ErrNotFound
	}

	ch := session.hub.subscribe()
	return ch, func() { session.hub.unsubscribe(ch) }, nil
}

// CloseSession stops the session loop. A running lap is stopped and recorded,
// and CloseSession returns only after the session's laps have been written.
func (s *Service) CloseSession(ctx context.Context, id string) error {
	s.liveMu.Lock()
	session, ok := s.live[id]
	delete(s.live, id)
	s.liveMu.Unlock()

	if !ok {
		return ErrNotFound
	}

	session.cancel()
	select {
	case <-session.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	written := make(chan struct{})
	go func() {
		session.pending.Wait()
		close(written)
	}()
	select {
	case <-written:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := s.sessions.MarkClosed(ctx, id, s.cfg.Clock.Now()); err != nil {
		return fmt.Errorf("closing session: %w", err)
	}

	log.Printf("[SESSION] Closed session %s", id)
	return nil
}

// Close stops every session and waits for pending laps to be written.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.liveMu.Lock()
		s.closed = true
		sessions := s.live
		s.live = make(map[string]*Session)
		s.liveMu.Unlock()

		for _, session := range sessions {
			session.cancel()
		}
		s.loops.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for id := range sessions {
			if err := s.sessions.MarkClosed(ctx, id, s.cfg.Clock.Now()); err != nil {
				log.Printf("[SESSION] Failed to mark session %s closed: %v", id, err)
			}
		}

		close(s.persist)
		<-s.writerDone
	})
}

func (s *Service) do(ctx context.Context, id string, apply func(*Session) []lapping.Change) (Snapshot, error) {
	session, ok := s.Get(id)
	if !ok {
		return Snapshot{}, ErrNotFound
	}

	cmd := command{apply: apply, reply: make(chan Snapshot, 1)}

	select {
	case session.cmds <- cmd:
	case <-session.done:
		return Snapshot{}, ErrClosed
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}

	select {
	case snap := <-cmd.reply:
		return snap, nil
	case <-session.done:
		return Snapshot{}, ErrClosed
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (s *Service) runLoop(ctx context.Context, session *Session) {
	defer s.loops.Done()
	defer close(session.done)
	defer session.hub.close()

	for {
		select {
		case <-ctx.Done():
			s.apply(session, session.machine.Stop())
			session.hub.publish(Update{Type: UpdateClosed, Data: s.snapshot(session)})
			return

		case cmd := <-session.cmds:
			s.apply(session, cmd.apply(session))
			cmd.reply <- s.snapshot(session)

		case <-session.machine.Ticks():
			elapsed := session.machine.Elapsed()
			session.hub.publish(Update{
				Type: UpdateTick,
				Data: TickData{Elapsed: elapsed, Clock: lapping.ClockFormat(elapsed)},
			})
		}
	}
}

// apply turns machine changes into updates and queues completed laps for
// the writer. It never waits on I/O.
func (s *Service) apply(session *Session, changes []lapping.Change) {
	for _, c := range changes {
		switch c.Kind {
		case lapping.ChangeState:
			session.hub.publish(Update{Type: UpdateState, Data: StateData{From: c.From, To: c.To}})

		case lapping.ChangeSelection:
			session.hub.publish(Update{Type: UpdateSelection, Data: *c.Selected})

		case lapping.ChangeLap:
			lap := models.NewLap(session.ID, c.Lap.Name, c.Lap.Duration, c.Lap.StartedAt, c.Lap.EndedAt, string(c.Lap.Reason))
			session.laps = append(session.laps, *lap)
			session.hub.publish(Update{Type: UpdateLap, Data: *lap})

			log.Printf("[SESSION] Lap recorded for %s: %s in %s (%s)",
				session.ID, lap.Subject, lapping.ClockFormat(lap.Duration), lap.Reason)

			session.pending.Add(1)
			select {
			case s.persist <- queuedLap{lap: *lap, written: session.pending.Done}:
			default:
				session.pending.Done()
				log.Printf("[SESSION] Lap writer queue full, dropping lap %s", lap.ID)
			}
		}
	}
}

func (s *Service) snapshot(session *Session) Snapshot {
	m := session.machine
	elapsed := m.Elapsed()

	snap := Snapshot{
		SessionID: session.ID,
		Model:     session.Model,
		State:     m.State(),
		Elapsed:   elapsed,
		Clock:     lapping.ClockFormat(elapsed),
		Top:       append([]classify.Label{}, session.top...),
		Laps:      append([]models.Lap{}, session.laps...),
	}
	if selected, ok := m.Selected(); ok {
		snap.Selected = &selected
	}
	return snap
}

func (s *Service) runWriter() {
	defer close(s.writerDone)

	for item := range s.persist {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.laps.Insert(ctx, &item.lap); err != nil {
			log.Printf("[SESSION] Failed to persist lap %s: %v", item.lap.ID, err)
		}
		cancel()
		item.written()
	}
}
