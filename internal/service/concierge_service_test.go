package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"entrust-concierge-be/internal/constant"
	"entrust-concierge-be/internal/dto"
	"entrust-concierge-be/internal/pkg/serverutils"
	"entrust-concierge-be/internal/repository/memory"
	"entrust-concierge-be/pkg/availability"
	"entrust-concierge-be/pkg/cadence/cadencetest"
	"entrust-concierge-be/pkg/concierge"
	"entrust-concierge-be/pkg/conversation"
	"entrust-concierge-be/pkg/events"
	"entrust-concierge-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (p *stubProvider) Chat(context.Context, []llm.Message, ...llm.Option) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.reply, p.err
}

func (p *stubProvider) Name() string {
	return "stub"
}

type collectingNotifier struct {
	mu     sync.Mutex
	events []concierge.Event
}

func (n *collectingNotifier) Notify(_ context.Context, event concierge.Event) {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.mu.Unlock()
}

type serviceFixture struct {
	svc      *conciergeService
	provider *stubProvider
	monitor  *availability.Monitor
	clock    *cadencetest.Clock
	storage  *memory.StorageRepository
	notifier *collectingNotifier
}

func newServiceFixture(t *testing.T, credential string) *serviceFixture {
	t.Helper()
	return newServiceFixtureWithTTL(t, credential, time.Hour)
}

func newServiceFixtureWithTTL(t *testing.T, credential string, idleTTL time.Duration) *serviceFixture {
	t.Helper()
	storage := memory.NewStorageRepository()
	provider := &stubProvider{reply: "Happy to help."}
	monitor := availability.NewMonitor()
	notifier := &collectingNotifier{}
	clock := cadencetest.New()

	svc := NewConciergeService(concierge.Deps{
		Store:    conversation.NewStore(storage, nil),
		Provider: provider,
		Monitor:  monitor,
		Clock:    clock,
		Notifier: notifier,
	}, concierge.DefaultConfig(), serverutils.NewVisitorTokens("test-secret"), idleTTL).(*conciergeService)
	svc.run = func(task func()) { task() }

	monitor.Init(credential)

	return &serviceFixture{
		svc:      svc,
		provider: provider,
		monitor:  monitor,
		clock:    clock,
		storage:  storage,
		notifier: notifier,
	}
}

func appErrorCode(t *testing.T, err error) int {
	t.Helper()
	var appErr *serverutils.AppError
	require.ErrorAs(t, err, &appErr)
	return appErr.Code
}

func TestIssueVisitor(t *testing.T) {
	f := newServiceFixture(t, "key")
	ctx := context.Background()

	first, err := f.svc.IssueVisitor(ctx, &dto.IssueVisitorRequest{})
	require.NoError(t, err)
	assert.NotEmpty(t, first.VisitorId)
	assert.NotEmpty(t, first.Token)

	again, err := f.svc.IssueVisitor(ctx, &dto.IssueVisitorRequest{Token: first.Token})
	require.NoError(t, err)
	assert.Equal(t, first.VisitorId, again.VisitorId)

	fresh, err := f.svc.IssueVisitor(ctx, &dto.IssueVisitorRequest{Token: "garbage"})
	require.NoError(t, err)
	assert.NotEqual(t, first.VisitorId, fresh.VisitorId)
}

func TestSendMessage(t *testing.T) {
	f := newServiceFixture(t, "key")
	ctx := context.Background()

	res, err := f.svc.SendMessage(ctx, "v-1", &dto.SendMessageRequest{Text: "  Do you insure boats?  "})
	require.NoError(t, err)
	assert.Equal(t, "Do you insure boats?", res.Accepted)

	session, err := f.svc.GetSession(ctx, "v-1")
	require.NoError(t, err)
	require.Len(t, session.Turns, 2)
	assert.Equal(t, "Happy to help.", session.Turns[1].Text)
	assert.Empty(t, session.Suggestions)
	assert.Equal(t, "online", session.Availability)
	assert.Equal(t, constant.ContactPhone, session.Contact.Phone)
	assert.Empty(t, session.ConfigRequired)
}

func TestSendMessage_Rejections(t *testing.T) {
	f := newServiceFixture(t, "key")
	ctx := context.Background()

	_, err := f.svc.SendMessage(ctx, "v-1", &dto.SendMessageRequest{Text: "   "})
	assert.Equal(t, 400, appErrorCode(t, err))

	var pending func()
	f.svc.run = func(task func()) { pending = task }

	_, err = f.svc.SendMessage(ctx, "v-1", &dto.SendMessageRequest{Text: "first"})
	require.NoError(t, err)

	_, err = f.svc.SendMessage(ctx, "v-1", &dto.SendMessageRequest{Text: "second"})
	assert.Equal(t, 409, appErrorCode(t, err))

	_, err = f.svc.ClearSession(ctx, "v-1")
	assert.Equal(t, 409, appErrorCode(t, err))

	pending()
	session, err := f.svc.ClearSession(ctx, "v-1")
	require.NoError(t, err)
	assert.Empty(t, session.Turns)
	assert.Equal(t, constant.StarterPrompts, session.Suggestions)
}

func TestSendMessage_OfflineShowsConfigurationNotice(t *testing.T) {
	f := newServiceFixture(t, "")
	ctx := context.Background()

	_, err := f.svc.SendMessage(ctx, "v-1", &dto.SendMessageRequest{Text: "Hello"})
	require.NoError(t, err)

	session, err := f.svc.GetSession(ctx, "v-1")
	require.NoError(t, err)
	assert.Equal(t, "offline", session.Availability)
	assert.Equal(t, constant.ConfigurationNotice, session.ConfigRequired)
	assert.Zero(t, f.provider.calls)
}

func TestStatus_FollowsDowngrade(t *testing.T) {
	f := newServiceFixture(t, "key")
	f.provider.err = &llm.ProviderError{StatusCode: 401, Class: llm.ClassUnauthorized}

	assert.True(t, f.svc.Status(context.Background()).Online)

	_, err := f.svc.SendMessage(context.Background(), "v-1", &dto.SendMessageRequest{Text: "Hello"})
	require.NoError(t, err)

	status := f.svc.Status(context.Background())
	assert.False(t, status.Online)
	assert.Equal(t, "offline", status.Availability)
	assert.Equal(t, llm.ClassUnauthorized.String(), status.Reason)

	var availabilityEvents []concierge.Event
	for _, e := range f.notifier.events {
		if e.Type == concierge.EventAvailability {
			availabilityEvents = append(availabilityEvents, e)
		}
	}
	require.Len(t, availabilityEvents, 2)
	assert.Equal(t, "online", availabilityEvents[0].Availability)
	assert.Equal(t, "offline", availabilityEvents[1].Availability)
	assert.Empty(t, availabilityEvents[1].VisitorID)
}

func TestRegistry_RebuildsFromStorage(t *testing.T) {
	f := newServiceFixture(t, "key")
	ctx := context.Background()

	_, err := f.svc.SendMessage(ctx, "v-1", &dto.SendMessageRequest{Text: "Hello"})
	require.NoError(t, err)

	f.svc.registry.Flush()

	session, err := f.svc.GetSession(ctx, "v-1")
	require.NoError(t, err)
	assert.Len(t, session.Turns, 2)
}

func TestRegistry_KeepsBusyManagerPastIdleTTL(t *testing.T) {
	f := newServiceFixtureWithTTL(t, "key", 50*time.Millisecond)
	ctx := context.Background()

	var pending func()
	f.svc.run = func(task func()) { pending = task }

	_, err := f.svc.SendMessage(ctx, "v-1", &dto.SendMessageRequest{Text: "first"})
	require.NoError(t, err)

	// Several janitor sweeps pass while the reply is still outstanding.
	time.Sleep(200 * time.Millisecond)

	_, err = f.svc.SendMessage(ctx, "v-1", &dto.SendMessageRequest{Text: "second"})
	assert.Equal(t, 409, appErrorCode(t, err))

	pending()

	session, err := f.svc.GetSession(ctx, "v-1")
	require.NoError(t, err)
	require.Len(t, session.Turns, 2)
	assert.Equal(t, "first", session.Turns[0].Text)
	assert.Equal(t, "Happy to help.", session.Turns[1].Text)
	assert.False(t, session.Delivering)

	// Once delivered, the manager expires normally again.
	time.Sleep(200 * time.Millisecond)
	_, found := f.svc.registry.Get("v-1")
	assert.False(t, found)
}

func TestWidgetLifecycle(t *testing.T) {
	f := newServiceFixture(t, "key")
	ctx := context.Background()

	session, err := f.svc.MountWidget(ctx, "v-1")
	require.NoError(t, err)
	assert.False(t, session.Widget.InviteVisible)

	f.clock.Advance(constant.InviteDelay)

	session, err = f.svc.GetSession(ctx, "v-1")
	require.NoError(t, err)
	assert.True(t, session.Widget.InviteVisible)
	assert.Equal(t, constant.InviteHeadline, session.Widget.InviteText)

	session, err = f.svc.DismissInvite(ctx, "v-1")
	require.NoError(t, err)
	assert.False(t, session.Widget.InviteVisible)

	session, err = f.svc.OpenWidget(ctx, "v-1")
	require.NoError(t, err)
	assert.True(t, session.Widget.Open)

	session, err = f.svc.CloseWidget(ctx, "v-1")
	require.NoError(t, err)
	assert.False(t, session.Widget.Open)
}

func TestHandleOpenRequested(t *testing.T) {
	f := newServiceFixture(t, "key")
	ctx := context.Background()

	err := f.svc.HandleOpenRequested(ctx, events.BaseEvent{
		Type: events.ConciergeOpenRequested,
		Data: map[string]interface{}{"visitor_id": "v-7"},
	})
	require.NoError(t, err)

	session, err := f.svc.GetSession(ctx, "v-7")
	require.NoError(t, err)
	assert.True(t, session.Widget.Open)

	assert.NoError(t, f.svc.HandleOpenRequested(ctx, events.BaseEvent{Type: events.ConciergeOpenRequested}))
}

func TestShutdown(t *testing.T) {
	f := newServiceFixture(t, "key")
	release := make(chan struct{})
	f.svc.run = func(task func()) {
		go func() {
			<-release
			task()
		}()
	}

	_, err := f.svc.SendMessage(context.Background(), "v-1", &dto.SendMessageRequest{Text: "Hello"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.True(t, errors.Is(f.svc.Shutdown(ctx), context.DeadlineExceeded))

	close(release)
	assert.NoError(t, f.svc.Shutdown(context.Background()))
}
