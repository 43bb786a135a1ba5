package concierge_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"entrust-concierge-be/pkg/availability"
	"entrust-concierge-be/pkg/cadence"
	"entrust-concierge-be/pkg/cadence/cadencetest"
	"entrust-concierge-be/pkg/concierge"
	"entrust-concierge-be/pkg/conversation"
	"entrust-concierge-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapStorage struct {
	mu   sync.Mutex
	data map[string]string
}

func newMapStorage() *mapStorage {
	return &mapStorage{data: map[string]string{}}
}

func (m *mapStorage) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapStorage) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mapStorage) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

type fakeProvider struct {
	mu      sync.Mutex
	reply   string
	err     error
	calls   [][]llm.Message
	options []llm.Options
}

func (p *fakeProvider) Chat(_ context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, history)
	p.options = append(p.options, llm.Apply(llm.Options{}, opts...))
	return p.reply, p.err
}

func (p *fakeProvider) Name() string {
	return "fake"
}

func (p *fakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type recorder struct {
	mu     sync.Mutex
	events []concierge.Event
}

func (r *recorder) Notify(_ context.Context, event concierge.Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *recorder) Types() []concierge.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]concierge.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	storage  *mapStorage
	store    *conversation.Store
	provider *fakeProvider
	monitor  *availability.Monitor
	clock    *cadencetest.Clock
	events   *recorder
}

func newFixture(credential string) *fixture {
	storage := newMapStorage()
	monitor := availability.NewMonitor()
	monitor.Init(credential)
	return &fixture{
		storage:  storage,
		store:    conversation.NewStore(storage, nil),
		provider: &fakeProvider{},
		monitor:  monitor,
		clock:    cadencetest.New(),
		events:   &recorder{},
	}
}

func (f *fixture) manager(visitorID string) *concierge.Manager {
	return concierge.NewManager(context.Background(), visitorID, concierge.Deps{
		Store:    f.store,
		Provider: f.provider,
		Monitor:  f.monitor,
		Clock:    f.clock,
		Notifier: f.events,
	}, concierge.DefaultConfig())
}

func roles(turns []conversation.Turn) []conversation.Role {
	out := make([]conversation.Role, 0, len(turns))
	for _, t := range turns {
		out = append(out, t.Role)
	}
	return out
}

func TestSend_OfflineWithoutCredential(t *testing.T) {
	f := newFixture("")
	m := f.manager("visitor-1")

	require.NoError(t, m.Send(context.Background(), "Hello"))

	snap := m.Snapshot()
	require.Len(t, snap.Turns, 2)
	assert.Equal(t, conversation.UserTurn("Hello"), snap.Turns[0])
	assert.Equal(t, conversation.RoleAssistant, snap.Turns[1].Role)
	assert.Equal(t, concierge.DefaultConfig().Messages.Offline, snap.Turns[1].Text)
	assert.True(t, snap.Turns[1].HasContactCard())
	assert.Equal(t, availability.Unavailable, snap.Availability)
	assert.Zero(t, f.provider.Calls())
	assert.False(t, snap.Delivering)
}

func TestSend_TwoParagraphReplyIsPaced(t *testing.T) {
	f := newFixture("key")
	f.provider.reply = "Hi there.\n\nHow can I help?"
	m := f.manager("visitor-1")

	require.NoError(t, m.Send(context.Background(), "Hello"))

	snap := m.Snapshot()
	require.Len(t, snap.Turns, 3)
	assert.Equal(t, []conversation.Role{
		conversation.RoleUser, conversation.RoleAssistant, conversation.RoleAssistant,
	}, roles(snap.Turns))
	assert.Equal(t, "Hi there.", snap.Turns[1].Text)
	assert.Equal(t, "How can I help?", snap.Turns[2].Text)
	assert.Nil(t, snap.Turns[2].Annotation)
	assert.False(t, snap.Typing)

	assert.Equal(t, []time.Duration{
		cadence.Delay("Hi there."),
		cadence.Pause,
		cadence.Delay("How can I help?"),
	}, f.clock.Sleeps())
	for _, d := range []time.Duration{f.clock.Sleeps()[0], f.clock.Sleeps()[2]} {
		assert.GreaterOrEqual(t, d, cadence.MinDelay)
		assert.LessOrEqual(t, d, cadence.MaxDelay)
	}

	assert.Equal(t, []concierge.EventType{
		concierge.EventTurnAppended,
		concierge.EventTyping,
		concierge.EventTyping,
		concierge.EventTurnAppended,
		concierge.EventTyping,
		concierge.EventTyping,
		concierge.EventTurnAppended,
	}, f.events.Types())
}

func TestSend_RequestShape(t *testing.T) {
	f := newFixture("key")
	f.provider.reply = "Sure."
	m := f.manager("visitor-1")

	require.NoError(t, m.Send(context.Background(), "  First  "))
	require.NoError(t, m.Send(context.Background(), "Second"))

	require.Equal(t, 2, f.provider.Calls())
	assert.Equal(t, []llm.Message{{Role: "user", Content: "First"}}, f.provider.calls[0])
	assert.Equal(t, []llm.Message{
		{Role: "user", Content: "First"},
		{Role: "model", Content: "Sure."},
		{Role: "user", Content: "Second"},
	}, f.provider.calls[1])

	opts := f.provider.options[0]
	assert.Equal(t, 0.3, opts.Temperature)
	assert.Equal(t, 40, opts.TopK)
	assert.Equal(t, 0.95, opts.TopP)
	assert.NotEmpty(t, opts.SystemInstruction)
}

func TestSend_NormalizesConsecutiveUserTurns(t *testing.T) {
	f := newFixture("key")
	f.provider.reply = "Answer."
	session := conversation.Session{Turns: []conversation.Turn{
		conversation.UserTurn("A"),
		conversation.UserTurn("B"),
		conversation.AssistantTurn("C"),
	}}
	require.NoError(t, f.store.Persist(context.Background(), "visitor-1", session))
	m := f.manager("visitor-1")

	require.NoError(t, m.Send(context.Background(), "D"))

	assert.Equal(t, []llm.Message{
		{Role: "user", Content: "B"},
		{Role: "model", Content: "C"},
		{Role: "user", Content: "D"},
	}, f.provider.calls[0])
}

func TestSend_EmptyMessageIsRejected(t *testing.T) {
	f := newFixture("key")
	m := f.manager("visitor-1")

	err := m.Send(context.Background(), " \n\t ")

	assert.ErrorIs(t, err, concierge.ErrEmptyMessage)
	assert.Empty(t, m.Snapshot().Turns)
	assert.Empty(t, f.events.Types())
	assert.Zero(t, f.provider.Calls())
}

func TestSend_AnnotatesContactIntent(t *testing.T) {
	f := newFixture("key")
	f.provider.reply = "Of course.\n\nAn advisor will reach out."
	m := f.manager("visitor-1")

	require.NoError(t, m.Send(context.Background(), "Can I speak to an agent?"))

	snap := m.Snapshot()
	require.Len(t, snap.Turns, 3)
	assert.False(t, snap.Turns[1].HasContactCard())
	assert.True(t, snap.Turns[2].HasContactCard())

	types := f.events.Types()
	assert.Equal(t, concierge.EventTurnAnnotated, types[len(types)-1])

	reloaded := f.store.Load(context.Background(), "visitor-1")
	assert.True(t, reloaded.Turns[2].HasContactCard())
}

func TestSend_ProviderFailures(t *testing.T) {
	defaults := concierge.DefaultConfig().Messages
	tests := []struct {
		name        string
		err         error
		wantText    string
		wantCard    bool
		wantOffline bool
	}{
		{
			name:        "unauthorized",
			err:         &llm.ProviderError{StatusCode: 400, Class: llm.ClassUnauthorized, Reason: "API_KEY_INVALID"},
			wantText:    defaults.InvalidCredential,
			wantOffline: true,
		},
		{
			name:        "forbidden",
			err:         &llm.ProviderError{StatusCode: 403, Class: llm.ClassForbidden},
			wantText:    defaults.AccessRestricted,
			wantOffline: true,
		},
		{
			name:     "rate limited",
			err:      &llm.ProviderError{StatusCode: 429, Class: llm.ClassRateLimited},
			wantText: defaults.RateLimited,
		},
		{
			name:     "transport",
			err:      errors.New("dial tcp: connection refused"),
			wantText: defaults.Generic,
			wantCard: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture("key")
			f.provider.err = tt.err
			m := f.manager("visitor-1")

			require.NoError(t, m.Send(context.Background(), "Hello"))

			snap := m.Snapshot()
			require.Len(t, snap.Turns, 2)
			assert.Equal(t, tt.wantText, snap.Turns[1].Text)
			assert.Equal(t, tt.wantCard, snap.Turns[1].HasContactCard())
			assert.Equal(t, tt.wantOffline, !f.monitor.IsAvailable())
			assert.False(t, snap.Typing)
			assert.Equal(t, 1, f.provider.Calls())
		})
	}
}

func TestSend_AuthFailureShortCircuitsLaterSends(t *testing.T) {
	f := newFixture("key")
	f.provider.err = &llm.ProviderError{StatusCode: 401, Class: llm.ClassUnauthorized}
	m := f.manager("visitor-1")

	require.NoError(t, m.Send(context.Background(), "Hello"))
	require.NoError(t, m.Send(context.Background(), "Anyone there?"))

	assert.Equal(t, availability.Unavailable, f.monitor.State())
	assert.Equal(t, 1, f.provider.Calls())

	snap := m.Snapshot()
	require.Len(t, snap.Turns, 4)
	assert.Equal(t, concierge.DefaultConfig().Messages.Offline, snap.Turns[3].Text)
}

func TestAccept_SingleFlight(t *testing.T) {
	f := newFixture("key")
	f.provider.reply = "Done."
	m := f.manager("visitor-1")

	first, err := m.Accept(context.Background(), "one")
	require.NoError(t, err)

	_, err = m.Accept(context.Background(), "two")
	assert.ErrorIs(t, err, concierge.ErrDeliveryInProgress)
	assert.ErrorIs(t, m.Clear(context.Background()), concierge.ErrDeliveryInProgress)
	assert.True(t, m.Snapshot().Delivering)
	assert.Len(t, m.Snapshot().Turns, 1)

	first.Run(context.Background())
	first.Run(context.Background())

	assert.Equal(t, 1, f.provider.Calls())
	assert.False(t, m.Snapshot().Delivering)

	require.NoError(t, m.Send(context.Background(), "two"))
	assert.Len(t, m.Snapshot().Turns, 4)
}

func TestAccept_ConcurrentSendsAdmitOne(t *testing.T) {
	f := newFixture("key")
	m := f.manager("visitor-1")

	const senders = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted []*concierge.Delivery
		rejected int
	)
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := m.Accept(context.Background(), "hi")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rejected++
				return
			}
			accepted = append(accepted, d)
		}()
	}
	wg.Wait()

	require.Len(t, accepted, 1)
	assert.Equal(t, senders-1, rejected)
	assert.Len(t, m.Snapshot().Turns, 1)
}

func TestSend_PersistsAcrossManagers(t *testing.T) {
	f := newFixture("key")
	f.provider.reply = "Welcome."
	require.NoError(t, f.manager("visitor-1").Send(context.Background(), "Hello"))

	reloaded := f.manager("visitor-1").Snapshot()
	assert.Equal(t, []conversation.Turn{
		conversation.UserTurn("Hello"),
		conversation.AssistantTurn("Welcome."),
	}, reloaded.Turns)
	assert.Empty(t, f.manager("visitor-2").Snapshot().Turns)
}

func TestClear(t *testing.T) {
	f := newFixture("")
	m := f.manager("visitor-1")
	require.NoError(t, m.Send(context.Background(), "Hello"))

	require.NoError(t, m.Clear(context.Background()))

	assert.Empty(t, m.Snapshot().Turns)
	assert.Empty(t, f.storage.data)
	types := f.events.Types()
	assert.Equal(t, concierge.EventSessionCleared, types[len(types)-1])
}

func TestInvite(t *testing.T) {
	t.Run("shows after delay on an empty closed widget", func(t *testing.T) {
		f := newFixture("key")
		m := f.manager("visitor-1")

		m.Mount()
		m.Mount()
		assert.Equal(t, 1, f.clock.Pending())

		f.clock.Advance(3 * time.Second)
		assert.False(t, m.Snapshot().Widget.InviteVisible)

		f.clock.Advance(time.Second)
		assert.True(t, m.Snapshot().Widget.InviteVisible)
		assert.Equal(t, []concierge.EventType{concierge.EventWidgetChanged}, f.events.Types())

		state := m.DismissInvite(context.Background())
		assert.False(t, state.InviteVisible)
	})

	t.Run("opening first cancels it", func(t *testing.T) {
		f := newFixture("key")
		m := f.manager("visitor-1")

		m.Mount()
		state := m.Open(context.Background())
		assert.True(t, state.Open)
		assert.Zero(t, f.clock.Pending())

		f.clock.Advance(10 * time.Second)
		assert.False(t, m.Snapshot().Widget.InviteVisible)
	})

	t.Run("suppressed when a conversation exists", func(t *testing.T) {
		f := newFixture("")
		m := f.manager("visitor-1")
		require.NoError(t, m.Send(context.Background(), "Hello"))

		m.Mount()
		f.clock.Advance(5 * time.Second)

		assert.False(t, m.Snapshot().Widget.InviteVisible)
	})

	t.Run("opening hides a visible invite", func(t *testing.T) {
		f := newFixture("key")
		m := f.manager("visitor-1")
		m.Mount()
		f.clock.Advance(4 * time.Second)

		state := m.Open(context.Background())
		assert.Equal(t, concierge.WidgetState{Open: true}, state)

		state = m.Close(context.Background())
		assert.Equal(t, concierge.WidgetState{}, state)
	})
}
