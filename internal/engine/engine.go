// Package engine runs multi-model debates. A Manager owns the live
// sessions; each session gets an Orchestrator that drives the turn loop
// in its own goroutine, fans events out to subscribers, and walks the
// session through its status lifecycle.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/parleyhq/parley/backend"
	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/cost"
	"github.com/parleyhq/parley/internal/persona"
	"github.com/parleyhq/parley/internal/prompt"
	"github.com/parleyhq/parley/internal/storage"
)

var (
	// ErrInsufficientParticipants means fewer than two available
	// backends were resolvable for the requested roster. No session is
	// created when this is returned.
	ErrInsufficientParticipants = errors.New("debate requires at least 2 available backends")
	// ErrSessionNotFound means the manager has no session with that ID.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionNotActive means the session has already reached a
	// terminal status and can no longer accept interjections or
	// end/cancel requests.
	ErrSessionNotActive = errors.New("session is not active")
	// ErrInterjectionQueueFull means too many interjections are pending
	// for the current turn boundary.
	ErrInterjectionQueueFull = errors.New("interjection queue is full")
)

const (
	defaultMaxTurns       = 10
	defaultRetryDelay     = 2 * time.Second
	defaultSessionTimeout = 30 * time.Minute
	interjectionQueueSize = 16
	subscriberBuffer      = 256
)

// Options configures a single debate session.
type Options struct {
	// Roster lists backend IDs in speaking order. Empty means the
	// registry's default roster.
	Roster []string
	// MaxTurns caps participant-authored messages. Zero means the
	// default of 10. Interjections do not count against it.
	MaxTurns int
	// AppContext is optional environment framing included in the
	// opening prompt.
	AppContext string
	// SynthesisBackend names the backend that writes the consensus.
	// Empty means the first participant's backend.
	SynthesisBackend string

	MaxTokens       int
	Temperature     float64
	ReasoningBudget int

	// Detector overrides the agreement predicate. Nil means
	// DetectAgreement.
	Detector Detector
	// RetryDelay is the pause before the single per-turn retry.
	// Negative disables the delay; zero means the 2s default.
	RetryDelay time.Duration
	// SessionTimeout bounds the whole debate. Zero means 30 minutes.
	SessionTimeout time.Duration
}

func (o Options) maxTurns() int {
	if o.MaxTurns > 0 {
		return o.MaxTurns
	}
	return defaultMaxTurns
}

func (o Options) retryDelay() time.Duration {
	if o.RetryDelay < 0 {
		return 0
	}
	if o.RetryDelay == 0 {
		return defaultRetryDelay
	}
	return o.RetryDelay
}

func (o Options) sessionTimeout() time.Duration {
	if o.SessionTimeout > 0 {
		return o.SessionTimeout
	}
	return defaultSessionTimeout
}

// Manager owns live debate sessions.
type Manager struct {
	registry *backend.Registry
	prompts  *prompt.Builder
	store    storage.SaveHook
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Orchestrator
}

// NewManager builds a Manager. store may be nil for in-memory-only
// operation; logger may be nil for slog.Default().
func NewManager(registry *backend.Registry, store storage.SaveHook, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		registry: registry,
		prompts:  prompt.NewBuilder(),
		store:    store,
		logger:   logger,
		sessions: make(map[string]*Orchestrator),
	}
}

// StartDebate validates the roster, creates the session, and launches
// its turn loop. Roster validation happens before any session state is
// allocated; an invalid roster leaves no trace.
func (m *Manager) StartDebate(question string, opts Options) (*Orchestrator, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.New("question must not be empty")
	}

	ids := opts.Roster
	if len(ids) == 0 {
		for _, b := range m.registry.DefaultRoster() {
			ids = append(ids, b.Name())
		}
	}
	var participants []core.Participant
	for i, id := range ids {
		b, err := m.registry.Resolve(id)
		if err != nil {
			return nil, fmt.Errorf("roster backend %q: %w", id, err)
		}
		if !b.Available() {
			m.logger.Warn("skipping unavailable backend", "backend", id)
			continue
		}
		role := persona.ForRosterIndex(i)
		participants = append(participants, core.Participant{
			ID:           core.NewID(),
			BackendID:    id,
			Role:         role.ID,
			Name:         fmt.Sprintf("%s (%s)", b.Descriptor().DisplayName, role.Name),
			SystemPrompt: m.prompts.SystemPromptFor(role.ID),
		})
	}
	if len(participants) < 2 {
		return nil, ErrInsufficientParticipants
	}

	now := time.Now()
	session := &core.Session{
		ID:           core.NewID(),
		Question:     question,
		AppContext:   opts.AppContext,
		Participants: participants,
		Status:       core.StatusIdle,
		MaxTurns:     opts.maxTurns(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	detector := opts.Detector
	if detector == nil {
		detector = DetectAgreement
	}
	ctx, cancel := context.WithTimeout(context.Background(), opts.sessionTimeout())
	o := &Orchestrator{
		manager:       m,
		opts:          opts,
		detect:        detector,
		session:       session,
		costs:         cost.NewAggregator(m.estimator()),
		subs:          make(map[int]chan Event),
		interjections: make(chan core.Interjection, interjectionQueueSize),
		endCh:         make(chan struct{}),
		done:          make(chan struct{}),
		cancel:        cancel,
	}

	m.mu.Lock()
	m.sessions[session.ID] = o
	m.mu.Unlock()

	o.persistSession()
	go o.run(ctx)
	return o, nil
}

// Get returns the live orchestrator for a session ID.
func (m *Manager) Get(id string) (*Orchestrator, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.sessions[id]
	return o, ok
}

// Sessions returns all live orchestrators, newest first.
func (m *Manager) Sessions() []*Orchestrator {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Orchestrator, 0, len(m.sessions))
	for _, o := range m.sessions {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Session().CreatedAt.After(out[j].Session().CreatedAt)
	})
	return out
}

// Interject queues a human interjection on a running session.
func (m *Manager) Interject(id string, ij core.Interjection) error {
	o, ok := m.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	return o.Interject(ij)
}

// EndDebate requests an early transition to synthesis.
func (m *Manager) EndDebate(id string) error {
	o, ok := m.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	return o.EndDebate()
}

// Cancel aborts a session, including any in-flight model call.
func (m *Manager) Cancel(id string) error {
	o, ok := m.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	return o.Cancel()
}

// estimator maps backend IDs to their pricing for the cost aggregator.
func (m *Manager) estimator() cost.Estimator {
	return func(backendID string, inputTokens, outputTokens int) float64 {
		b, err := m.registry.Resolve(backendID)
		if err != nil {
			return 0
		}
		return b.EstimateCost(inputTokens, outputTokens)
	}
}

// Orchestrator drives one debate session. All exported methods are safe
// for concurrent use.
type Orchestrator struct {
	manager *Manager
	opts    Options
	detect  Detector
	costs   *cost.Aggregator

	mu      sync.Mutex
	session *core.Session
	turn    int
	subs    map[int]chan Event
	nextSub int
	closed  bool

	interjections chan core.Interjection
	endOnce       sync.Once
	endCh         chan struct{}
	done          chan struct{}
	cancel        context.CancelFunc
}

// ID returns the session ID.
func (o *Orchestrator) ID() string {
	return o.session.ID
}

// Done is closed when the session reaches a terminal status.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// Session returns a snapshot of the session. The message slice is
// copied; messages themselves are append-only and never mutated.
func (o *Orchestrator) Session() *core.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() *core.Session {
	s := *o.session
	s.Messages = make([]*core.Message, len(o.session.Messages))
	copy(s.Messages, o.session.Messages)
	s.Participants = make([]core.Participant, len(o.session.Participants))
	copy(s.Participants, o.session.Participants)
	s.Cost = o.costs.Snapshot()
	return &s
}

// Subscribe registers for session events. The returned cancel func must
// be called when the subscriber is done. Subscribing to a finished
// session yields an already-closed channel.
func (o *Orchestrator) Subscribe() (<-chan Event, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}
	id := o.nextSub
	o.nextSub++
	ch := make(chan Event, subscriberBuffer)
	o.subs[id] = ch
	return ch, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if sub, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(sub)
		}
	}
}

// Interject queues a human interjection. It is applied at the next turn
// boundary and never interrupts an in-flight model call.
func (o *Orchestrator) Interject(ij core.Interjection) error {
	if !ij.Kind.Valid() {
		return fmt.Errorf("invalid interjection kind %q", ij.Kind)
	}
	if strings.TrimSpace(ij.Content) == "" {
		return errors.New("interjection content must not be empty")
	}
	o.mu.Lock()
	active := !o.session.Status.Terminal() && o.session.Status != core.StatusSynthesizing
	o.mu.Unlock()
	if !active {
		return ErrSessionNotActive
	}
	select {
	case o.interjections <- ij:
		return nil
	default:
		return ErrInterjectionQueueFull
	}
}

// EndDebate asks the loop to skip remaining turns and synthesize. If a
// turn is in flight it completes first. Idempotent while active.
func (o *Orchestrator) EndDebate() error {
	o.mu.Lock()
	terminal := o.session.Status.Terminal()
	o.mu.Unlock()
	if terminal {
		return ErrSessionNotActive
	}
	o.endOnce.Do(func() { close(o.endCh) })
	return nil
}

// Cancel aborts the session immediately. A partial in-flight turn is
// discarded; the message log keeps only fully appended messages.
func (o *Orchestrator) Cancel() error {
	o.mu.Lock()
	terminal := o.session.Status.Terminal()
	o.mu.Unlock()
	if terminal {
		return ErrSessionNotActive
	}
	o.cancel()
	return nil
}

func (o *Orchestrator) endRequested() bool {
	select {
	case <-o.endCh:
		return true
	default:
		return false
	}
}

// run is the session goroutine. It owns the turn loop from start to
// terminal status.
func (o *Orchestrator) run(ctx context.Context) {
	defer o.cancel()
	defer close(o.done)
	defer o.closeSubs()
	logger := o.manager.logger.With("session", o.session.ID)

	o.transition(core.StatusStarting, "")
	o.transition(core.StatusDebating, "")
	logger.Info("debate started",
		"question", o.session.Question,
		"participants", len(o.session.Participants))

	cursor := 0
	spoken := 0
	maxTurns := o.opts.maxTurns()
	for {
		if ctx.Err() != nil {
			o.fail("debate cancelled")
			return
		}
		o.drainInterjections()
		if o.endRequested() || spoken >= maxTurns {
			break
		}

		p := o.session.Participants[cursor]
		msg, err := o.takeTurnWithRetry(ctx, p)
		if err != nil {
			if ctx.Err() != nil || backend.IsKind(err, backend.KindCancelled) {
				o.fail("debate cancelled")
			} else {
				logger.Error("turn failed", "participant", p.Name, "error", err)
				o.fail(fmt.Sprintf("turn failed for %s: %v", p.Name, err))
			}
			return
		}
		o.append(msg)
		spoken++
		cursor = (cursor + 1) % len(o.session.Participants)

		if o.mutualAgreement() {
			logger.Info("consensus signalled", "turns", spoken)
			break
		}
	}

	if ctx.Err() != nil {
		o.fail("debate cancelled")
		return
	}
	o.transition(core.StatusSynthesizing, "")
	consensus, err := o.synthesize(ctx)
	if err != nil {
		if ctx.Err() != nil || backend.IsKind(err, backend.KindCancelled) {
			o.fail("debate cancelled")
		} else {
			logger.Error("synthesis failed", "error", err)
			o.fail(fmt.Sprintf("synthesis failed: %v", err))
		}
		return
	}

	o.mu.Lock()
	o.session.Consensus = consensus
	o.mu.Unlock()
	o.transition(core.StatusComplete, "")
	logger.Info("debate complete",
		"messages", len(o.Session().Messages),
		"cost", o.costs.Snapshot().TotalCost)
}

// takeTurnWithRetry executes one participant turn, retrying once on a
// non-cancellation failure.
func (o *Orchestrator) takeTurnWithRetry(ctx context.Context, p core.Participant) (*core.Message, error) {
	msg, err := o.takeTurn(ctx, p)
	if err == nil {
		return msg, nil
	}
	if ctx.Err() != nil || backend.IsKind(err, backend.KindCancelled) {
		return nil, err
	}
	o.manager.logger.Warn("retrying turn",
		"session", o.session.ID, "participant", p.Name, "error", err)
	if delay := o.opts.retryDelay(); delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, backend.WrapErr(p.BackendID, ctx.Err())
		}
	}
	return o.takeTurn(ctx, p)
}

// takeTurn streams one model response and assembles it into a message.
// Nothing is appended here; the caller appends only on success, so a
// failed or cancelled turn leaves the log untouched.
func (o *Orchestrator) takeTurn(ctx context.Context, p core.Participant) (*core.Message, error) {
	b, err := o.manager.registry.Resolve(p.BackendID)
	if err != nil {
		return nil, err
	}
	messages, turn := o.turnInput(p)
	ch, err := b.Stream(ctx, messages, backend.Options{
		System:          p.SystemPrompt,
		MaxTokens:       o.opts.MaxTokens,
		Temperature:     o.opts.Temperature,
		ReasoningBudget: o.opts.ReasoningBudget,
	})
	if err != nil {
		return nil, err
	}

	var content, reasoning strings.Builder
	var usage *backend.Usage
	for chunk := range ch {
		switch chunk.Kind {
		case backend.ChunkText:
			content.WriteString(chunk.Text)
			o.emit(Event{
				Type:      EventChunk,
				SessionID: o.session.ID,
				Time:      time.Now(),
				Chunk:     &ChunkEvent{ParticipantID: p.ID, Turn: turn, Text: chunk.Text},
			})
		case backend.ChunkReasoning:
			reasoning.WriteString(chunk.Text)
			o.emit(Event{
				Type:      EventChunk,
				SessionID: o.session.ID,
				Time:      time.Now(),
				Chunk:     &ChunkEvent{ParticipantID: p.ID, Turn: turn, Text: chunk.Text, Reasoning: true},
			})
		case backend.ChunkError:
			return nil, backend.WrapErr(p.BackendID, chunk.Err)
		case backend.ChunkDone:
			usage = chunk.Usage
		}
	}
	if ctx.Err() != nil {
		return nil, backend.WrapErr(p.BackendID, ctx.Err())
	}
	if usage == nil {
		return nil, &backend.Error{
			Kind:    backend.KindUpstream,
			Backend: p.BackendID,
			Message: "stream ended without a terminal chunk",
		}
	}

	o.costs.Record(p.BackendID, usage.InputTokens, usage.OutputTokens)
	text := content.String()
	return &core.Message{
		ID:            core.NewID(),
		ParticipantID: p.ID,
		Role:          p.Role,
		Content:       text,
		Reasoning:     reasoning.String(),
		IsAgreement:   o.detect(text),
		CreatedAt:     time.Now(),
	}, nil
}

// turnInput builds the conversation as seen from one participant: its
// own messages as assistant turns, everything else as attributed user
// turns, with the latest counterpart message framed for response.
func (o *Orchestrator) turnInput(p core.Participant) ([]backend.Message, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	prompts := o.manager.prompts

	msgs := []backend.Message{{
		Role:    backend.RoleUser,
		Content: prompts.OpeningPrompt(o.session.Question, o.session.AppContext),
	}}
	log := o.session.Messages
	for i, m := range log {
		if m.ParticipantID == p.ID {
			msgs = append(msgs, backend.Message{Role: backend.RoleAssistant, Content: m.Content})
			continue
		}
		var content string
		other := o.session.ParticipantByID(m.ParticipantID)
		switch {
		case m.Interjection != nil || other == nil:
			content = prompts.InterjectionFrame(interjectionKind(m), m.Content)
		case i == len(log)-1:
			content = prompts.ContextFrame(other.Name, other.Role, m.Content)
		default:
			content = fmt.Sprintf("%s said:\n%s", other.Name, m.Content)
		}
		msgs = append(msgs, backend.Message{Role: backend.RoleUser, Content: content})
	}
	return msgs, o.turn
}

func interjectionKind(m *core.Message) core.InterjectionKind {
	if m.Interjection != nil {
		return m.Interjection.Kind
	}
	return core.InterjectClarification
}

// append commits a completed message to the log under the current turn
// counter and notifies subscribers and storage.
func (o *Orchestrator) append(msg *core.Message) {
	o.mu.Lock()
	msg.Turn = o.turn
	o.turn++
	o.session.Messages = append(o.session.Messages, msg)
	o.session.UpdatedAt = time.Now()
	snapshot := o.snapshotLocked()
	o.mu.Unlock()

	o.emit(Event{
		Type:      EventMessage,
		SessionID: o.session.ID,
		Time:      time.Now(),
		Message:   msg,
	})
	if o.manager.store != nil {
		if err := o.manager.store.SaveMessage(snapshot, msg); err != nil {
			o.manager.logger.Warn("failed to persist message",
				"session", o.session.ID, "error", err)
		}
	}
}

// drainInterjections appends all queued interjections as human messages.
// Each takes the next turn number but the roster cursor is unaffected,
// so the participant who was up next still speaks next.
func (o *Orchestrator) drainInterjections() {
	for {
		select {
		case ij := <-o.interjections:
			msg := &core.Message{
				ID:            core.NewID(),
				ParticipantID: core.HumanParticipantID,
				Role:          "human",
				Content:       ij.Content,
				Interjection:  &ij,
				CreatedAt:     time.Now(),
			}
			o.append(msg)
		default:
			return
		}
	}
}

// mutualAgreement reports whether the last two messages both carry the
// agreement flag.
func (o *Orchestrator) mutualAgreement() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := len(o.session.Messages)
	if n < 2 {
		return false
	}
	return o.session.Messages[n-1].IsAgreement && o.session.Messages[n-2].IsAgreement
}

// transition moves the session to a new status and broadcasts it.
func (o *Orchestrator) transition(to core.Status, reason string) {
	o.mu.Lock()
	from := o.session.Status
	if !core.CanTransition(from, to) {
		o.mu.Unlock()
		o.manager.logger.Error("invalid status transition",
			"session", o.session.ID, "from", from, "to", to)
		return
	}
	o.session.Status = to
	o.session.StatusReason = reason
	o.session.UpdatedAt = time.Now()
	if to == core.StatusComplete || to == core.StatusError {
		now := time.Now()
		o.session.CompletedAt = &now
	}
	o.mu.Unlock()

	o.emit(Event{
		Type:      EventStatus,
		SessionID: o.session.ID,
		Time:      time.Now(),
		Status:    to,
		Reason:    reason,
	})
	o.persistSession()
}

// fail moves the session to the error status. The transcript and cost
// accumulated so far are preserved as-is.
func (o *Orchestrator) fail(reason string) {
	o.emit(Event{
		Type:      EventError,
		SessionID: o.session.ID,
		Time:      time.Now(),
		Reason:    reason,
	})
	o.transition(core.StatusError, reason)
}

func (o *Orchestrator) persistSession() {
	if o.manager.store == nil {
		return
	}
	if err := o.manager.store.SaveSession(o.Session()); err != nil {
		o.manager.logger.Warn("failed to persist session",
			"session", o.session.ID, "error", err)
	}
}

// emit delivers an event to every subscriber without blocking. A full
// subscriber loses the event rather than stalling the debate.
func (o *Orchestrator) emit(ev Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, ch := range o.subs {
		select {
		case ch <- ev:
		default:
			o.manager.logger.Warn("dropping event for slow subscriber",
				"session", o.session.ID, "subscriber", id, "type", ev.Type)
		}
	}
}

func (o *Orchestrator) closeSubs() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	for id, ch := range o.subs {
		delete(o.subs, id)
		close(ch)
	}
}
