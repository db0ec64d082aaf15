package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/zhouzirui/webverse/backend/internal/model/story"
	"github.com/zhouzirui/webverse/backend/internal/service/dispatch"
)

// DefaultSeedPrompt opens every new story.
const DefaultSeedPrompt = "Start a new Spider-Verse comic adventure. Miles Morales swings into a glitching Brooklyn where two universes are colliding. Introduce the scene and offer the reader a choice."

var (
	// ErrBusy is returned when a request is already in flight. Nothing is sent.
	ErrBusy = errors.New("session busy: a request is already in flight")
	// ErrInvalidTransition is returned when the operation is not allowed in the current status.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrUnknownChoice is returned when the choice is not on the current page.
	ErrUnknownChoice = errors.New("choice not on current page")
	// ErrSessionReset is returned when the session was reset while the request was in flight.
	ErrSessionReset = errors.New("session reset while request was in flight")
)

// Sender delivers one story request.
type Sender interface {
	Send(ctx context.Context, env dispatch.Envelope) (*story.Page, error)
}

type request struct {
	env        dispatch.Envelope
	advance    bool
	historyLen int
}

// Machine drives a single Session. At most one request is in flight; a
// transition attempted meanwhile fails with ErrBusy instead of queueing.
type Machine struct {
	sender Sender
	seed   string
	log    *zap.Logger

	busy atomic.Bool

	mu      sync.Mutex
	state   Session
	gen     uint64
	pending *request
}

// Option customizes a Machine.
type Option func(*Machine)

// WithSeedPrompt overrides the prompt sent by Start.
func WithSeedPrompt(prompt string) Option {
	return func(m *Machine) {
		if prompt != "" {
			m.seed = prompt
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(m *Machine) {
		if log != nil {
			m.log = log
		}
	}
}

// NewMachine creates a Machine holding an uninitialized session.
func NewMachine(sender Sender, opts ...Option) *Machine {
	m := &Machine{
		sender: sender,
		seed:   DefaultSeedPrompt,
		log:    zap.NewNop(),
		state:  New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.Named("session")
	return m
}

// Snapshot returns a copy of the current session.
func (m *Machine) Snapshot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// Busy reports whether a request is in flight.
func (m *Machine) Busy() bool {
	return m.busy.Load()
}

// Start requests the first page. Allowed from any status but loading; from
// ready it begins over without discarding state until the new page arrives.
func (m *Machine) Start(ctx context.Context) (Session, error) {
	if !m.busy.CompareAndSwap(false, true) {
		return m.Snapshot(), ErrBusy
	}
	defer m.busy.Store(false)

	return m.begin(ctx, request{env: dispatch.InitialRequest(m.seed)}, StartRequested{})
}

// Advance moves the story forward with a choice from the current page.
func (m *Machine) Advance(ctx context.Context, choiceID int, label string) (Session, error) {
	if !m.busy.CompareAndSwap(false, true) {
		return m.Snapshot(), ErrBusy
	}
	defer m.busy.Store(false)

	m.mu.Lock()
	if m.state.Status != StatusReady {
		status := m.state.Status
		m.mu.Unlock()
		return m.Snapshot(), fmt.Errorf("%w: advance from %s", ErrInvalidTransition, status)
	}
	choice, ok := m.state.FindChoice(choiceID)
	if !ok {
		m.mu.Unlock()
		return m.Snapshot(), fmt.Errorf("%w: %d", ErrUnknownChoice, choiceID)
	}
	if label == "" {
		label = choice.Label
	}
	snapshot := m.state.History
	m.mu.Unlock()

	req := request{
		env:        dispatch.AdvanceRequest(snapshot, label),
		advance:    true,
		historyLen: len(snapshot),
	}
	return m.begin(ctx, req, AdvanceRequested{})
}

// Restart discards the current story and starts a new one.
func (m *Machine) Restart(ctx context.Context) (Session, error) {
	if !m.busy.CompareAndSwap(false, true) {
		return m.Snapshot(), ErrBusy
	}
	defer m.busy.Store(false)

	m.reset()
	return m.begin(ctx, request{env: dispatch.InitialRequest(m.seed)}, StartRequested{})
}

// Retry re-sends the request that put the session into error.
func (m *Machine) Retry(ctx context.Context) (Session, error) {
	if !m.busy.CompareAndSwap(false, true) {
		return m.Snapshot(), ErrBusy
	}
	defer m.busy.Store(false)

	m.mu.Lock()
	if m.state.Status != StatusError || m.pending == nil {
		status := m.state.Status
		m.mu.Unlock()
		return m.Snapshot(), fmt.Errorf("%w: retry from %s", ErrInvalidTransition, status)
	}
	req := *m.pending
	m.mu.Unlock()

	var ev Event = StartRequested{}
	if req.advance {
		ev = AdvanceRequested{}
	}
	return m.begin(ctx, req, ev)
}

// Reset returns the session to uninitialized. A request still in flight is
// discarded when it completes.
func (m *Machine) Reset() Session {
	m.reset()
	return m.Snapshot()
}

func (m *Machine) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.pending = nil
	m.state = Reduce(m.state, ResetRequested{})
}

func (m *Machine) begin(ctx context.Context, req request, ev Event) (Session, error) {
	m.mu.Lock()
	gen := m.gen
	m.state = Reduce(m.state, ev)
	m.mu.Unlock()

	page, err := m.sender.Send(ctx, req.env)
	switch {
	case err != nil:
	case page == nil:
		err = &story.DecodeError{Field: "writer", Err: errors.New("no page returned")}
	case req.advance && len(page.History) != req.historyLen+1:
		err = &story.DecodeError{
			Field: "writer.history",
			Err:   fmt.Errorf("expected %d turns, got %d", req.historyLen+1, len(page.History)),
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		m.log.Debug("discarding result for reset session")
		return m.state.Clone(), ErrSessionReset
	}

	if err != nil {
		m.state = Reduce(m.state, RequestFailed{Message: FailureMessage(err), Replace: !req.advance})
		m.pending = &req
		m.log.Warn("story request failed",
			zap.String("session_id", m.state.ID),
			zap.Bool("advance", req.advance),
			zap.Int("page", m.state.PageNumber),
			zap.Error(err),
		)
		return m.state.Clone(), err
	}

	m.pending = nil
	if req.advance {
		m.state = Reduce(m.state, Advanced{Page: page})
	} else {
		m.state = Reduce(m.state, Started{Page: page})
	}
	m.log.Info("page loaded",
		zap.String("session_id", m.state.ID),
		zap.Int("page", m.state.PageNumber),
		zap.Int("choices", len(m.state.Choices)),
	)
	return m.state.Clone(), nil
}
