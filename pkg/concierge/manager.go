package concierge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"entrust-concierge-be/internal/constant"
	"entrust-concierge-be/internal/pkg/logger"
	"entrust-concierge-be/pkg/availability"
	"entrust-concierge-be/pkg/cadence"
	"entrust-concierge-be/pkg/conversation"
	"entrust-concierge-be/pkg/llm"
)

const logModule = "Concierge"

var (
	ErrEmptyMessage       = errors.New("concierge: message is empty")
	ErrDeliveryInProgress = errors.New("concierge: a reply is still being delivered")
)

// Messages are the canned assistant turns used when no model reply exists.
type Messages struct {
	Offline           string
	InvalidCredential string
	AccessRestricted  string
	RateLimited       string
	Generic           string
}

type Config struct {
	SystemInstruction string
	Temperature       float64
	TopK              int
	TopP              float64
	InviteDelay       time.Duration
	Messages          Messages
}

// DefaultConfig carries the agency persona and generation settings.
func DefaultConfig() Config {
	return Config{
		SystemInstruction: constant.SystemInstruction,
		Temperature:       constant.ConciergeTemperature,
		TopK:              constant.ConciergeTopK,
		TopP:              constant.ConciergeTopP,
		InviteDelay:       constant.InviteDelay,
		Messages: Messages{
			Offline:           constant.OfflineNoticeMessage,
			InvalidCredential: constant.InvalidCredentialMessage,
			AccessRestricted:  constant.AccessRestrictedMessage,
			RateLimited:       constant.RateLimitedMessage,
			Generic:           constant.GenericFailureMessage,
		},
	}
}

// Deps are the collaborators shared by every visitor's manager.
type Deps struct {
	Store    *conversation.Store
	Provider llm.LLMProvider
	Monitor  *availability.Monitor
	Clock    cadence.Clock
	Notifier Notifier
	Logger   logger.ILogger
}

// Snapshot is what the widget renders: persisted turns plus transient state.
type Snapshot struct {
	VisitorID    string
	Turns        []conversation.Turn
	Typing       bool
	Delivering   bool
	Widget       WidgetState
	Availability availability.State
}

// Manager is the conversation controller of a single visitor. All turn
// mutations go through it, one delivery at a time.
type Manager struct {
	visitorID string
	store     *conversation.Store
	provider  llm.LLMProvider
	monitor   *availability.Monitor
	clock     cadence.Clock
	notifier  Notifier
	logger    logger.ILogger
	cfg       Config
	cadence   *cadence.Controller

	mu          sync.Mutex
	session     conversation.Session
	typing      bool
	busy        bool
	widget      WidgetState
	inviteTimer cadence.Timer
}

// NewManager loads the visitor's persisted session and returns its manager.
func NewManager(ctx context.Context, visitorID string, deps Deps, cfg Config) *Manager {
	if deps.Clock == nil {
		deps.Clock = cadence.SystemClock{}
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNopLogger()
	}
	if deps.Monitor == nil {
		deps.Monitor = availability.NewMonitor()
	}

	return &Manager{
		visitorID: visitorID,
		store:     deps.Store,
		provider:  deps.Provider,
		monitor:   deps.Monitor,
		clock:     deps.Clock,
		notifier:  deps.Notifier,
		logger:    deps.Logger,
		cfg:       cfg,
		cadence:   cadence.NewController(deps.Clock),
		session:   deps.Store.Load(ctx, visitorID),
	}
}

func (m *Manager) VisitorID() string {
	return m.visitorID
}

// Snapshot returns a copy of the renderable state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		VisitorID:    m.visitorID,
		Turns:        conversation.Clone(m.session).Turns,
		Typing:       m.typing,
		Delivering:   m.busy,
		Widget:       m.widget,
		Availability: m.monitor.State(),
	}
}

// Delivery is an accepted user message whose reply has not been produced yet.
type Delivery struct {
	m       *Manager
	text    string
	history []conversation.Turn
	once    sync.Once
}

// Text returns the accepted, trimmed user message.
func (d *Delivery) Text() string {
	return d.text
}

// Accept validates the message, claims the single-flight slot and appends the
// user turn so it is visible even if the reply fails.
func (m *Manager) Accept(ctx context.Context, text string) (*Delivery, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return nil, ErrDeliveryInProgress
	}
	m.busy = true
	history := conversation.Clone(m.session).Turns
	m.mu.Unlock()

	m.appendTurn(ctx, conversation.UserTurn(text))
	return &Delivery{m: m, text: text, history: history}, nil
}

// Send accepts text and delivers the reply before returning.
func (m *Manager) Send(ctx context.Context, text string) error {
	d, err := m.Accept(ctx, text)
	if err != nil {
		return err
	}
	d.Run(ctx)
	return nil
}

// Run produces the assistant turns for an accepted message and releases the
// single-flight slot. Every path appends at least one assistant turn.
func (d *Delivery) Run(ctx context.Context) {
	d.once.Do(func() {
		defer d.m.release()
		d.m.dispatch(ctx, d.text, d.history)
	})
}

func (m *Manager) release() {
	m.SetTyping(false)
	m.mu.Lock()
	m.busy = false
	m.mu.Unlock()
}

func (m *Manager) dispatch(ctx context.Context, text string, history []conversation.Turn) {
	if !m.monitor.IsAvailable() {
		m.logger.Info(logModule, "Service unavailable, answering with offline notice", map[string]interface{}{
			"visitor_id": m.visitorID,
			"state":      m.monitor.State().String(),
		})
		m.appendAnnotated(ctx, m.cfg.Messages.Offline, conversation.ContactCard())
		return
	}

	// Typing stays on while the model thinks; the cadence controller takes it
	// over for the first chunk.
	m.SetTyping(true)
	reply, err := m.provider.Chat(ctx, m.buildRequest(history, text), m.generationOptions()...)
	if err != nil {
		m.SetTyping(false)
		m.handleFailure(ctx, err)
		return
	}

	if err := m.cadence.Deliver(ctx, cadence.Split(reply), m); err != nil {
		m.logger.Error(logModule, "Cadence delivery interrupted", map[string]interface{}{
			"visitor_id": m.visitorID,
			"error":      err.Error(),
		})
		m.ensureAssistantReply(ctx)
		return
	}

	if annotation := conversation.Classify(text + "\n" + reply); annotation != nil {
		m.annotateLast(ctx, annotation)
	}
}

// buildRequest returns the alternating outbound history followed by the new
// user message.
func (m *Manager) buildRequest(history []conversation.Turn, text string) []llm.Message {
	normalized := conversation.NormalizeHistory(history)
	// The new message closes the request, so a trailing user turn would break
	// alternation. It can only exist if an earlier delivery left no reply.
	if n := len(normalized); n > 0 && normalized[n-1].Role == conversation.RoleUser {
		normalized = normalized[:n-1]
	}

	messages := make([]llm.Message, 0, len(normalized)+1)
	for _, t := range normalized {
		messages = append(messages, llm.Message{Role: t.Role.WireRole(), Content: t.Text})
	}
	return append(messages, llm.Message{Role: conversation.WireRoleUser, Content: text})
}

func (m *Manager) generationOptions() []llm.Option {
	opts := []llm.Option{
		llm.WithSystemInstruction(m.cfg.SystemInstruction),
		llm.WithTemperature(m.cfg.Temperature),
	}
	if m.cfg.TopK > 0 {
		opts = append(opts, llm.WithTopK(m.cfg.TopK))
	}
	if m.cfg.TopP > 0 {
		opts = append(opts, llm.WithTopP(m.cfg.TopP))
	}
	return opts
}

func (m *Manager) handleFailure(ctx context.Context, err error) {
	class := llm.ClassOf(err)
	details := map[string]interface{}{
		"visitor_id": m.visitorID,
		"provider":   m.provider.Name(),
		"class":      class.String(),
		"error":      err.Error(),
	}

	switch class {
	case llm.ClassUnauthorized:
		m.logger.Error(logModule, "Credential rejected, going offline", details)
		m.monitor.Downgrade(class.String())
		m.appendAnnotated(ctx, m.cfg.Messages.InvalidCredential, nil)
	case llm.ClassForbidden:
		m.logger.Error(logModule, "Access restricted, going offline", details)
		m.monitor.Downgrade(class.String())
		m.appendAnnotated(ctx, m.cfg.Messages.AccessRestricted, nil)
	case llm.ClassRateLimited:
		m.logger.Warn(logModule, "Rate limited", details)
		m.appendAnnotated(ctx, m.cfg.Messages.RateLimited, nil)
	default:
		m.logger.Error(logModule, "Generation failed", details)
		m.appendAnnotated(ctx, m.cfg.Messages.Generic, conversation.ContactCard())
	}
}

// ensureAssistantReply appends the generic fallback when an interrupted
// delivery left the user turn unanswered.
func (m *Manager) ensureAssistantReply(ctx context.Context) {
	m.mu.Lock()
	last, ok := m.session.Last()
	m.mu.Unlock()

	if ok && last.Role == conversation.RoleUser {
		m.appendAnnotated(ctx, m.cfg.Messages.Generic, conversation.ContactCard())
	}
}

// Clear empties the conversation and removes the persisted record.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return ErrDeliveryInProgress
	}
	m.session = conversation.Cleared()
	m.mu.Unlock()

	err := m.store.Clear(ctx, m.visitorID)
	m.emit(ctx, Event{Type: EventSessionCleared})
	return err
}

// SetTyping toggles the transient typing indicator. It is never persisted.
func (m *Manager) SetTyping(typing bool) {
	m.mu.Lock()
	changed := m.typing != typing
	m.typing = typing
	m.mu.Unlock()

	if changed {
		m.emit(context.Background(), Event{Type: EventTyping, Typing: typing})
	}
}

// Append adds one revealed chunk as an assistant turn.
func (m *Manager) Append(ctx context.Context, chunk string) error {
	m.appendTurn(ctx, conversation.AssistantTurn(chunk))
	return nil
}

func (m *Manager) appendAnnotated(ctx context.Context, text string, annotation *conversation.Annotation) {
	turn := conversation.AssistantTurn(text)
	turn.Annotation = annotation
	m.appendTurn(ctx, turn)
}

func (m *Manager) appendTurn(ctx context.Context, turn conversation.Turn) {
	m.mu.Lock()
	m.session = conversation.Append(m.session, turn)
	session := m.session
	index := session.Len() - 1
	m.mu.Unlock()

	m.persist(ctx, session)

	t := turn
	m.emit(ctx, Event{Type: EventTurnAppended, Index: index, Turn: &t})
}

func (m *Manager) annotateLast(ctx context.Context, annotation *conversation.Annotation) {
	m.mu.Lock()
	m.session = conversation.AnnotateLast(m.session, annotation)
	session := m.session
	index := session.Len() - 1
	last, _ := session.Last()
	m.mu.Unlock()

	m.persist(ctx, session)
	m.emit(ctx, Event{Type: EventTurnAnnotated, Index: index, Turn: &last})
}

// persist writes the session through. A failed write is logged and the
// in-memory transcript stays authoritative; the next mutation rewrites it.
func (m *Manager) persist(ctx context.Context, session conversation.Session) {
	if err := m.store.Persist(ctx, m.visitorID, session); err != nil {
		m.logger.Error(logModule, "Failed to persist session", map[string]interface{}{
			"visitor_id": m.visitorID,
			"turns":      session.Len(),
			"error":      err.Error(),
		})
	}
}

func (m *Manager) emit(ctx context.Context, event Event) {
	event.VisitorID = m.visitorID
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	m.notifier.Notify(ctx, event)
}
