// Package session keeps the counting-session ledger: one live change record
// per product, gated by a none/active/completed state machine, plus the set
// of products counted during the session.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"gizmo-stock/internal/clock"
	"gizmo-stock/internal/model"
)

// Status of the ledger.
type Status string

const (
	StatusNone      Status = "none"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

const (
	eventStart = "start"
	eventEnd   = "end"
	eventClear = "clear"
)

// SnapshotKey is the blob key the session is persisted under.
const SnapshotKey = "gizmo.countingSession"

// ErrAlreadyStarted is returned by Start when a session exists.
var ErrAlreadyStarted = fmt.Errorf("%w: a counting session already exists", model.ErrConflict)

// Session is a counting session. Values returned by the Ledger are copies.
type Session struct {
	ID            string               `json:"id"`
	StartedAt     time.Time            `json:"startedAt"`
	EndedAt       *time.Time           `json:"endedAt,omitempty"`
	Status        Status               `json:"status"`
	Changes       []model.ChangeRecord `json:"changes"`
	TotalChanges  int                  `json:"totalChanges"`
	TotalProducts int                  `json:"totalProducts"`
}

func (s *Session) clone() *Session {
	c := *s
	c.Changes = append([]model.ChangeRecord(nil), s.Changes...)
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	return &c
}

// recount derives the totals from the change list.
func (s *Session) recount() {
	ids := make(map[string]struct{}, len(s.Changes))
	for _, c := range s.Changes {
		ids[c.ProductID] = struct{}{}
	}
	s.TotalChanges = len(s.Changes)
	s.TotalProducts = len(ids)
}

// Store persists ledger state.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	ReplaceCounted(ctx context.Context, ids []string) error
	Counted(ctx context.Context) ([]string, error)
}

// Options configures a Ledger.
type Options struct {
	Clock  clock.Clock
	Store  Store
	Logger *slog.Logger

	// NewID generates session ids. Defaults to random UUIDs.
	NewID func() string
}

// Ledger is safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	machine *fsm.FSM
	session *Session
	counted map[string]struct{}

	clock  clock.Clock
	store  Store
	logger *slog.Logger
	newID  func() string
}

// New creates a ledger and restores any persisted state. A malformed
// snapshot is discarded.
func New(ctx context.Context, opts Options) (*Ledger, error) {
	l := &Ledger{
		counted: make(map[string]struct{}),
		clock:   opts.Clock,
		store:   opts.Store,
		logger:  opts.Logger,
		newID:   opts.NewID,
	}
	if l.clock == nil {
		l.clock = clock.New()
	}
	if l.logger == nil {
		l.logger = slog.New(slog.DiscardHandler)
	}
	if l.newID == nil {
		l.newID = uuid.NewString
	}

	l.machine = fsm.NewFSM(
		string(StatusNone),
		fsm.Events{
			{Name: eventStart, Src: []string{string(StatusNone)}, Dst: string(StatusActive)},
			{Name: eventEnd, Src: []string{string(StatusActive)}, Dst: string(StatusCompleted)},
			{Name: eventClear, Src: []string{string(StatusActive), string(StatusCompleted)}, Dst: string(StatusNone)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				l.logger.Info("counting session transition",
					slog.String("event", e.Event),
					slog.String("from", e.Src),
					slog.String("to", e.Dst),
				)
			},
		},
	)

	if err := l.restore(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) restore(ctx context.Context) error {
	if l.store == nil {
		return nil
	}

	data, ok, err := l.store.Get(ctx, SnapshotKey)
	if err != nil {
		return fmt.Errorf("restoring counting session: %w", err)
	}
	if ok {
		var s Session
		switch err := json.Unmarshal(data, &s); {
		case err != nil:
			l.logger.Warn("discarding malformed counting session", slog.String("error", err.Error()))
		case s.Status != StatusActive && s.Status != StatusCompleted:
			l.logger.Warn("discarding counting session with unknown status", slog.String("status", string(s.Status)))
		default:
			s.recount()
			l.session = &s
			l.machine.SetState(string(s.Status))
		}
	}

	ids, err := l.store.Counted(ctx)
	if err != nil {
		return fmt.Errorf("restoring counted products: %w", err)
	}
	for _, id := range ids {
		l.counted[id] = struct{}{}
	}
	return nil
}

// Status returns the current state.
func (l *Ledger) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Status(l.machine.Current())
}

// Active reports whether changes are currently being recorded.
func (l *Ledger) Active() bool {
	return l.Status() == StatusActive
}

// Session returns a copy of the current session.
func (l *Ledger) Session() (Session, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session == nil {
		return Session{}, false
	}
	return *l.session.clone(), true
}

// Start opens a new session. It fails if a session, active or completed,
// already exists.
func (l *Ledger) Start(ctx context.Context) (Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.machine.Event(ctx, eventStart); err != nil {
		return Session{}, ErrAlreadyStarted
	}
	l.session = &Session{
		ID:        l.newID(),
		StartedAt: l.clock.Now(),
		Status:    StatusActive,
		Changes:   []model.ChangeRecord{},
	}
	clear(l.counted)

	l.persistSession(ctx)
	l.persistCounted(ctx)
	return *l.session.clone(), nil
}

// End completes the active session.
func (l *Ledger) End(ctx context.Context) (Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.machine.Event(ctx, eventEnd); err != nil {
		return Session{}, model.ErrSessionInactive
	}
	now := l.clock.Now()
	l.session.EndedAt = &now
	l.session.Status = StatusCompleted

	l.persistSession(ctx)
	return *l.session.clone(), nil
}

// Clear discards the session and the counted set, from any state.
func (l *Ledger) Clear(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.machine.Current() != string(StatusNone) {
		if err := l.machine.Event(ctx, eventClear); err != nil {
			l.logger.Error("clearing counting session", slog.String("error", err.Error()))
			l.machine.SetState(string(StatusNone))
		}
	}
	l.session = nil
	clear(l.counted)

	l.persistSession(ctx)
	l.persistCounted(ctx)
}

// AddChange records rec, replacing any earlier record for the same product
// in place. It reports whether the record was stored; outside an active
// session it does nothing.
func (l *Ledger) AddChange(ctx context.Context, rec model.ChangeRecord) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.machine.Current() != string(StatusActive) {
		return false
	}

	replaced := false
	for i := range l.session.Changes {
		if l.session.Changes[i].ProductID == rec.ProductID {
			l.session.Changes[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		l.session.Changes = append(l.session.Changes, rec)
	}
	l.session.recount()

	l.persistSession(ctx)
	return true
}

// MarkCounted adds products to the counted set. It does nothing outside an
// active session.
func (l *Ledger) MarkCounted(ctx context.Context, ids ...string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.machine.Current() != string(StatusActive) || len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		l.counted[id] = struct{}{}
	}
	l.persistCounted(ctx)
	return true
}

// IsCounted reports whether id is in the counted set.
func (l *Ledger) IsCounted(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.counted[id]
	return ok
}

// CountedIDs returns the counted set, sorted.
func (l *Ledger) CountedIDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.countedLocked()
}

func (l *Ledger) countedLocked() []string {
	ids := make([]string, 0, len(l.counted))
	for id := range l.counted {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Persistence is best effort: the in-memory ledger stays authoritative and
// failures are logged.

func (l *Ledger) persistSession(ctx context.Context) {
	if l.store == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	var err error
	if l.session == nil {
		err = l.store.Delete(ctx, SnapshotKey)
	} else {
		var data []byte
		if data, err = json.Marshal(l.session); err == nil {
			err = l.store.Put(ctx, SnapshotKey, data)
		}
	}
	if err != nil {
		l.logger.Warn("persisting counting session", slog.String("error", err.Error()))
	}
}

func (l *Ledger) persistCounted(ctx context.Context) {
	if l.store == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := l.store.ReplaceCounted(ctx, l.countedLocked()); err != nil {
		l.logger.Warn("persisting counted products", slog.String("error", err.Error()))
	}
}
