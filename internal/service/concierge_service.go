package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"entrust-concierge-be/internal/constant"
	"entrust-concierge-be/internal/dto"
	"entrust-concierge-be/internal/pkg/logger"
	"entrust-concierge-be/internal/pkg/serverutils"
	"entrust-concierge-be/pkg/availability"
	"entrust-concierge-be/pkg/concierge"
	"entrust-concierge-be/pkg/events"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

type IConciergeService interface {
	IssueVisitor(ctx context.Context, req *dto.IssueVisitorRequest) (*dto.VisitorResponse, error)
	Status(ctx context.Context) *dto.StatusResponse
	GetSession(ctx context.Context, visitorID string) (*dto.SessionResponse, error)
	ClearSession(ctx context.Context, visitorID string) (*dto.SessionResponse, error)
	SendMessage(ctx context.Context, visitorID string, req *dto.SendMessageRequest) (*dto.SendMessageResponse, error)
	MountWidget(ctx context.Context, visitorID string) (*dto.SessionResponse, error)
	OpenWidget(ctx context.Context, visitorID string) (*dto.SessionResponse, error)
	CloseWidget(ctx context.Context, visitorID string) (*dto.SessionResponse, error)
	DismissInvite(ctx context.Context, visitorID string) (*dto.SessionResponse, error)
	HandleOpenRequested(ctx context.Context, event events.Event) error
	Shutdown(ctx context.Context) error
}

type conciergeService struct {
	deps     concierge.Deps
	cfg      concierge.Config
	tokens   *serverutils.VisitorTokens
	logger   logger.ILogger
	registry *cache.Cache

	mu       sync.Mutex
	inflight sync.WaitGroup
	// pins counts in-flight deliveries per visitor. A pinned manager never
	// expires, so a second manager cannot be rebuilt while one is busy.
	pins map[string]int

	// run executes an accepted delivery. Asynchronous in production so the
	// HTTP request returns 202 while the reply is still being paced.
	run func(task func())
}

// NewConciergeService owns one manager per visitor. Managers idle for longer
// than idleTTL are dropped and rebuilt from storage on the next request.
func NewConciergeService(
	deps concierge.Deps,
	cfg concierge.Config,
	tokens *serverutils.VisitorTokens,
	idleTTL time.Duration,
) IConciergeService {
	if deps.Logger == nil {
		deps.Logger = logger.NewNopLogger()
	}
	if deps.Monitor == nil {
		deps.Monitor = availability.NewMonitor()
	}

	s := &conciergeService{
		deps:     deps,
		cfg:      cfg,
		tokens:   tokens,
		logger:   deps.Logger,
		registry: cache.New(idleTTL, idleTTL/2),
		pins:     make(map[string]int),
		run:      func(task func()) { go task() },
	}

	if deps.Notifier != nil {
		deps.Monitor.OnChange(func(state availability.State) {
			deps.Notifier.Notify(context.Background(), concierge.Event{
				Type:         concierge.EventAvailability,
				Availability: state.Status(),
				OccurredAt:   time.Now(),
			})
		})
	}

	return s
}

func (s *conciergeService) manager(ctx context.Context, visitorID string) *concierge.Manager {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(ctx, visitorID)
}

// lookup returns the visitor's manager, creating it from storage when absent.
// Callers hold s.mu.
func (s *conciergeService) lookup(ctx context.Context, visitorID string) *concierge.Manager {
	if x, found := s.registry.Get(visitorID); found {
		m := x.(*concierge.Manager)
		// Sliding expiry: every access restarts the idle window.
		s.registry.Set(visitorID, m, s.expiration(visitorID))
		return m
	}

	m := concierge.NewManager(ctx, visitorID, s.deps, s.cfg)
	s.registry.Set(visitorID, m, s.expiration(visitorID))
	s.logger.Debug("ConciergeService", "Manager created", map[string]interface{}{
		"visitor_id": visitorID,
		"turns":      len(m.Snapshot().Turns),
	})
	return m
}

func (s *conciergeService) expiration(visitorID string) time.Duration {
	if s.pins[visitorID] > 0 {
		return cache.NoExpiration
	}
	return cache.DefaultExpiration
}

// pin returns the visitor's manager and keeps it registered until unpin.
func (s *conciergeService) pin(ctx context.Context, visitorID string) *concierge.Manager {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pins[visitorID]++
	return s.lookup(ctx, visitorID)
}

func (s *conciergeService) unpin(visitorID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pins[visitorID]--; s.pins[visitorID] <= 0 {
		delete(s.pins, visitorID)
	}
	if x, found := s.registry.Get(visitorID); found {
		s.registry.Set(visitorID, x, s.expiration(visitorID))
	}
}

func (s *conciergeService) IssueVisitor(ctx context.Context, req *dto.IssueVisitorRequest) (*dto.VisitorResponse, error) {
	visitorID := ""
	if req != nil && req.Token != "" {
		if id, err := s.tokens.Parse(req.Token); err == nil {
			visitorID = id
		}
	}
	if visitorID == "" {
		visitorID = uuid.NewString()
	}

	token, expiresAt, err := s.tokens.Issue(visitorID)
	if err != nil {
		return nil, serverutils.NewInternalError("Failed to issue visitor token", err)
	}

	return &dto.VisitorResponse{
		VisitorId: visitorID,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *conciergeService) Status(ctx context.Context) *dto.StatusResponse {
	state := s.deps.Monitor.State()
	return &dto.StatusResponse{
		Availability: state.Status(),
		Online:       state == availability.Available,
		Reason:       s.deps.Monitor.Reason(),
	}
}

func (s *conciergeService) GetSession(ctx context.Context, visitorID string) (*dto.SessionResponse, error) {
	return s.sessionResponse(s.manager(ctx, visitorID).Snapshot()), nil
}

func (s *conciergeService) ClearSession(ctx context.Context, visitorID string) (*dto.SessionResponse, error) {
	m := s.manager(ctx, visitorID)
	if err := m.Clear(ctx); err != nil {
		if errors.Is(err, concierge.ErrDeliveryInProgress) {
			return nil, serverutils.NewConflictError("A reply is still being delivered", err)
		}
		// The in-memory session is already empty; a stale record is only a
		// storage problem.
		s.logger.Error("ConciergeService", "Failed to remove stored session", map[string]interface{}{
			"visitor_id": visitorID,
			"error":      err.Error(),
		})
	}
	return s.sessionResponse(m.Snapshot()), nil
}

func (s *conciergeService) SendMessage(ctx context.Context, visitorID string, req *dto.SendMessageRequest) (*dto.SendMessageResponse, error) {
	// Pinned before Accept so the manager that claims the single-flight slot
	// is the one every later request sees until the reply is delivered.
	m := s.pin(ctx, visitorID)

	delivery, err := m.Accept(ctx, req.Text)
	if err != nil {
		s.unpin(visitorID)
	}
	switch {
	case errors.Is(err, concierge.ErrEmptyMessage):
		return nil, serverutils.NewBadRequestError("Message cannot be empty")
	case errors.Is(err, concierge.ErrDeliveryInProgress):
		return nil, serverutils.NewConflictError("A reply is still being delivered", err)
	case err != nil:
		return nil, serverutils.NewInternalError("Failed to accept message", err)
	}

	// The reply must survive the request: closing the widget or dropping the
	// connection does not cancel it.
	runCtx := context.WithoutCancel(ctx)
	s.inflight.Add(1)
	s.run(func() {
		defer s.inflight.Done()
		defer s.unpin(visitorID)
		delivery.Run(runCtx)
	})

	return &dto.SendMessageResponse{Accepted: delivery.Text()}, nil
}

func (s *conciergeService) MountWidget(ctx context.Context, visitorID string) (*dto.SessionResponse, error) {
	m := s.manager(ctx, visitorID)
	m.Mount()
	return s.sessionResponse(m.Snapshot()), nil
}

func (s *conciergeService) OpenWidget(ctx context.Context, visitorID string) (*dto.SessionResponse, error) {
	m := s.manager(ctx, visitorID)
	m.Open(ctx)
	return s.sessionResponse(m.Snapshot()), nil
}

func (s *conciergeService) CloseWidget(ctx context.Context, visitorID string) (*dto.SessionResponse, error) {
	m := s.manager(ctx, visitorID)
	m.Close(ctx)
	return s.sessionResponse(m.Snapshot()), nil
}

func (s *conciergeService) DismissInvite(ctx context.Context, visitorID string) (*dto.SessionResponse, error) {
	m := s.manager(ctx, visitorID)
	m.DismissInvite(ctx)
	return s.sessionResponse(m.Snapshot()), nil
}

// HandleOpenRequested serves the bus-level "open chat" signal. Events without
// a visitor are acknowledged and ignored.
func (s *conciergeService) HandleOpenRequested(ctx context.Context, event events.Event) error {
	visitorID, _ := event.Payload()["visitor_id"].(string)
	if visitorID == "" {
		s.logger.Warn("ConciergeService", "Open request without visitor_id", map[string]interface{}{
			"type": event.EventType(),
		})
		return nil
	}

	s.manager(ctx, visitorID).Open(ctx)
	return nil
}

// Shutdown waits for in-flight deliveries so no reply is cut mid-cadence.
func (s *conciergeService) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *conciergeService) sessionResponse(snap concierge.Snapshot) *dto.SessionResponse {
	res := &dto.SessionResponse{
		VisitorId:    snap.VisitorID,
		Name:         constant.ConciergeName,
		Turns:        snap.Turns,
		Typing:       snap.Typing,
		Delivering:   snap.Delivering,
		Availability: snap.Availability.Status(),
		Widget: dto.WidgetDTO{
			Open:          snap.Widget.Open,
			InviteVisible: snap.Widget.InviteVisible,
		},
		Contact: dto.ContactDTO{
			Phone:     constant.ContactPhone,
			PhoneLink: constant.ContactPhoneLink,
			Email:     constant.ContactEmail,
		},
	}

	if snap.Widget.InviteVisible {
		res.Widget.InviteText = constant.InviteHeadline
		res.Widget.InviteAction = constant.InviteCallToAct
	}
	if len(snap.Turns) == 0 {
		res.Suggestions = constant.StarterPrompts
	}
	if snap.Availability == availability.Unavailable && len(snap.Turns) > 0 {
		res.ConfigRequired = constant.ConfigurationNotice
	}
	return res
}
