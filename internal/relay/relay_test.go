package relay

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ObiAU/otprelay/internal/cache"
	"github.com/ObiAU/otprelay/internal/config"
	"github.com/ObiAU/otprelay/internal/models"
	"github.com/ObiAU/otprelay/internal/registry"
	"github.com/ObiAU/otprelay/internal/storage"
)

type fakeFetcher struct {
	mu      sync.Mutex
	calls   map[string]int
	respond func(ctx context.Context, p models.Panel, call int) ([]models.Message, error)
}

func (f *fakeFetcher) Fetch(ctx context.Context, p models.Panel) ([]models.Message, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[p.ID]++
	call := f.calls[p.ID]
	f.mu.Unlock()
	return f.respond(ctx, p, call)
}

func (f *fakeFetcher) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

type fakeNotifier struct {
	mu       sync.Mutex
	chats    []int64
	failChat map[int64]bool
	attempts map[int64]int
	events   []models.OTPEvent
	admin    []string
	fail     int
}

func (n *fakeNotifier) Destinations(context.Context) ([]int64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.chats) == 0 {
		return []int64{100}, nil
	}
	return append([]int64(nil), n.chats...), nil
}

func (n *fakeNotifier) Notify(ctx context.Context, chatID int64, ev models.OTPEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.attempts == nil {
		n.attempts = map[int64]int{}
	}
	n.attempts[chatID]++
	if n.failChat[chatID] {
		return errors.New("chat not found")
	}
	if n.fail > 0 {
		n.fail--
		return errors.New("telegram unavailable")
	}
	n.events = append(n.events, ev)
	return nil
}

func (n *fakeNotifier) attemptsFor(chatID int64) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.attempts[chatID]
}

func (n *fakeNotifier) NotifyAdmin(ctx context.Context, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.admin = append(n.admin, text)
}

func (n *fakeNotifier) delivered() []models.OTPEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.OTPEvent(nil), n.events...)
}

type fakeClassifier struct{ name string }

func (c fakeClassifier) ClassifyService(context.Context, string) (string, error) {
	return c.name, nil
}

type fixture struct {
	relay    *Relay
	panels   *registry.Registry
	cache    *cache.Cache
	fetcher  *fakeFetcher
	notifier *fakeNotifier
}

func testConfig() *config.Config {
	return &config.Config{
		PollInterval:  20 * time.Millisecond,
		FetchTimeout:  200 * time.Millisecond,
		NotifyTimeout: 200 * time.Millisecond,
		ServerPort:    "0",
	}
}

func newFixture(t *testing.T, respond func(ctx context.Context, p models.Panel, call int) ([]models.Message, error)) *fixture {
	t.Helper()
	store, err := storage.OpenBolt(filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	delivered, err := cache.New(context.Background(), store)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}

	f := &fixture{
		panels:   registry.New(store),
		cache:    delivered,
		fetcher:  &fakeFetcher{respond: respond},
		notifier: &fakeNotifier{},
	}
	f.relay = New(testConfig(), f.panels, f.fetcher, f.cache, f.notifier)
	return f
}

func (f *fixture) addPanel(t *testing.T, name string) models.Panel {
	t.Helper()
	p, err := f.panels.Create(context.Background(), models.PanelInput{
		Name:          name,
		BaseURL:       "http://" + name + ".example",
		Mode:          models.ModeSMS,
		LoginStrategy: models.LoginToken,
		Credentials:   models.Credentials{Token: "t"},
		SMSPath:       "/sms",
	})
	if err != nil {
		t.Fatalf("create panel: %v", err)
	}
	return p
}

func telegramCode(ctx context.Context, p models.Panel, call int) ([]models.Message, error) {
	return []models.Message{{
		RawText:      "Your Telegram code is 123456",
		Timestamp:    "2024-01-01 00:00:00",
		SenderNumber: "14155552671",
	}}, nil
}

func TestCycleDeliversOnce(t *testing.T) {
	f := newFixture(t, telegramCode)
	p := f.addPanel(t, "source1")
	ctx := context.Background()

	if err := f.relay.RunCycle(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	events := f.notifier.delivered()
	if len(events) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(events))
	}
	ev := events[0]
	if ev.OTP != "123456" || ev.Service != "Telegram" || ev.Country != "United States" || ev.PanelName != "source1" || ev.SourceID != p.ID {
		t.Errorf("unexpected event %+v", ev)
	}

	if err := f.relay.RunCycle(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if n := len(f.notifier.delivered()); n != 1 {
		t.Errorf("repeat cycle must not notify again, got %d notifications", n)
	}

	st := f.relay.Status()
	if st.Cycles != 2 || st.Delivered != 1 || st.KnownMessages != 1 {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestDeliveredSurvivesRestart(t *testing.T) {
	store, err := storage.OpenBolt(filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	panels := registry.New(store)
	if _, err := panels.Create(ctx, models.PanelInput{
		Name: "p", BaseURL: "http://p.example", Mode: models.ModeSMS,
		LoginStrategy: models.LoginToken, Credentials: models.Credentials{Token: "t"}, SMSPath: "/sms",
	}); err != nil {
		t.Fatal(err)
	}

	first, _ := cache.New(ctx, store)
	n1 := &fakeNotifier{}
	_ = New(testConfig(), panels, &fakeFetcher{respond: telegramCode}, first, n1).RunCycle(ctx)

	second, _ := cache.New(ctx, store)
	n2 := &fakeNotifier{}
	_ = New(testConfig(), panels, &fakeFetcher{respond: telegramCode}, second, n2).RunCycle(ctx)

	if len(n1.delivered()) != 1 || len(n2.delivered()) != 0 {
		t.Errorf("expected exactly one notification across restarts, got %d and %d", len(n1.delivered()), len(n2.delivered()))
	}
}

func TestDisabledPanelIsNotFetched(t *testing.T) {
	f := newFixture(t, telegramCode)
	a := f.addPanel(t, "a")
	b := f.addPanel(t, "b")
	ctx := context.Background()

	if err := f.panels.SetEnabled(ctx, b.ID, false); err != nil {
		t.Fatal(err)
	}
	_ = f.relay.RunCycle(ctx)

	if f.fetcher.count(b.ID) != 0 {
		t.Errorf("disabled panel fetched %d times", f.fetcher.count(b.ID))
	}
	if f.fetcher.count(a.ID) != 1 {
		t.Errorf("enabled panel fetched %d times", f.fetcher.count(a.ID))
	}
}

func TestFetchTimeoutIsIsolated(t *testing.T) {
	var slowID string
	f := newFixture(t, func(ctx context.Context, p models.Panel, call int) ([]models.Message, error) {
		if p.ID == slowID {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return telegramCode(ctx, p, call)
	})
	slowID = f.addPanel(t, "slow").ID
	f.addPanel(t, "fast")
	ctx := context.Background()

	start := time.Now()
	if err := f.relay.RunCycle(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("cycle was not bounded by the fetch timeout")
	}
	if len(f.notifier.delivered()) != 1 {
		t.Errorf("healthy panel should still be notified")
	}

	_ = f.relay.RunCycle(ctx)
	if f.fetcher.count(slowID) != 2 {
		t.Errorf("timed out panel should be retried next cycle, fetched %d times", f.fetcher.count(slowID))
	}
	if f.relay.Status().FetchErrors != 2 {
		t.Errorf("expected 2 fetch errors, got %d", f.relay.Status().FetchErrors)
	}
}

func TestNotifyFailureIsRetried(t *testing.T) {
	f := newFixture(t, telegramCode)
	f.addPanel(t, "p")
	f.notifier.fail = 1
	ctx := context.Background()

	_ = f.relay.RunCycle(ctx)
	if f.cache.Len() != 0 {
		t.Fatal("message must stay unmarked after a failed notification")
	}

	_ = f.relay.RunCycle(ctx)
	if len(f.notifier.delivered()) != 1 || f.cache.Len() != 1 {
		t.Errorf("expected retry to deliver and mark, got %d notifications and %d marked",
			len(f.notifier.delivered()), f.cache.Len())
	}
	if f.relay.Status().NotifyErrors != 1 {
		t.Errorf("expected 1 notify error, got %d", f.relay.Status().NotifyErrors)
	}
}

func TestFailingChatDoesNotRepeatToOthers(t *testing.T) {
	f := newFixture(t, telegramCode)
	f.addPanel(t, "p")
	f.notifier.chats = []int64{10, 20}
	f.notifier.failChat = map[int64]bool{20: true}
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = f.relay.RunCycle(ctx)
	}

	if n := f.notifier.attemptsFor(10); n != 1 {
		t.Errorf("healthy chat should get the code once, got %d sends", n)
	}
	if n := f.notifier.attemptsFor(20); n != 5 {
		t.Errorf("failing chat should be retried every cycle, got %d attempts", n)
	}
	if f.cache.Len() != 1 {
		t.Errorf("only the healthy chat should be marked, got %d keys", f.cache.Len())
	}

	st := f.relay.Status()
	if st.Delivered != 1 || st.NotifyErrors != 5 {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestNoDestinationChatsLeavesMessagesUnmarked(t *testing.T) {
	f := newFixture(t, telegramCode)
	f.addPanel(t, "p")
	f.relay.notifier = &emptyNotifier{}

	if err := f.relay.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if f.cache.Len() != 0 {
		t.Error("nothing may be marked without a destination chat")
	}
}

type emptyNotifier struct{ fakeNotifier }

func (n *emptyNotifier) Destinations(context.Context) ([]int64, error) { return nil, nil }

func TestMessagesWithoutOTPAreDropped(t *testing.T) {
	f := newFixture(t, func(context.Context, models.Panel, int) ([]models.Message, error) {
		return []models.Message{{RawText: "Welcome to our service", SenderNumber: "1"}}, nil
	})
	f.addPanel(t, "p")

	_ = f.relay.RunCycle(context.Background())
	if len(f.notifier.delivered()) != 0 || f.cache.Len() != 0 {
		t.Error("message without a code must be neither notified nor marked")
	}
}

func TestSameMessageFromTwoPanelsNotifiedOnce(t *testing.T) {
	f := newFixture(t, telegramCode)
	f.addPanel(t, "a")
	f.addPanel(t, "b")

	_ = f.relay.RunCycle(context.Background())
	if n := len(f.notifier.delivered()); n != 1 {
		t.Errorf("expected 1 notification, got %d", n)
	}
}

func TestNotificationsFollowPanelOrder(t *testing.T) {
	var firstID string
	f := newFixture(t, func(ctx context.Context, p models.Panel, call int) ([]models.Message, error) {
		if p.ID == firstID {
			time.Sleep(50 * time.Millisecond)
			return []models.Message{{RawText: "WhatsApp code 111111", SenderNumber: "447911123456"}}, nil
		}
		return []models.Message{{RawText: "Discord code 222222", SenderNumber: "447911123456"}}, nil
	})
	firstID = f.addPanel(t, "first").ID
	f.addPanel(t, "second")

	_ = f.relay.RunCycle(context.Background())
	events := f.notifier.delivered()
	if len(events) != 2 || events[0].OTP != "111111" || events[1].OTP != "222222" {
		t.Errorf("notifications out of panel order: %+v", events)
	}
}

func TestPanicInFetcherIsRecovered(t *testing.T) {
	var badID string
	f := newFixture(t, func(ctx context.Context, p models.Panel, call int) ([]models.Message, error) {
		if p.ID == badID {
			panic("malformed row")
		}
		return telegramCode(ctx, p, call)
	})
	badID = f.addPanel(t, "bad").ID
	f.addPanel(t, "good")

	if err := f.relay.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(f.notifier.delivered()) != 1 {
		t.Error("good panel should still be notified")
	}
}

func TestRepeatedFailuresAlertAdminOnce(t *testing.T) {
	f := newFixture(t, func(context.Context, models.Panel, int) ([]models.Message, error) {
		return nil, errors.New("login failed")
	})
	f.addPanel(t, "down")

	for i := 0; i < failureAlertThreshold+2; i++ {
		_ = f.relay.RunCycle(context.Background())
	}
	if len(f.notifier.admin) != 1 {
		t.Errorf("expected a single admin alert, got %v", f.notifier.admin)
	}
}

func TestClassifierNamesUnknownService(t *testing.T) {
	f := newFixture(t, func(context.Context, models.Panel, int) ([]models.Message, error) {
		return []models.Message{{RawText: "Acme verification 482913", SenderNumber: "14155552671"}}, nil
	})
	f.addPanel(t, "p")
	f.relay.SetClassifier(fakeClassifier{name: "Discord"})

	_ = f.relay.RunCycle(context.Background())
	events := f.notifier.delivered()
	if len(events) != 1 || events[0].Service != "Discord" {
		t.Errorf("expected classifier to name the service, got %+v", events)
	}
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t, telegramCode)
	handler := f.relay.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("fresh relay should be healthy, got %d", rec.Code)
	}

	f.relay.mu.Lock()
	f.relay.lastCycleEnd = time.Now().Add(-time.Hour)
	f.relay.mu.Unlock()

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("stale relay should report 503, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/json" {
		t.Errorf("unexpected stats response %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}

	var stats struct {
		Relay       models.RelayStatus     `json:"relay"`
		DeliveryLog map[string]interface{} `json:"delivery_log"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.DeliveryLog["delivered"] != float64(0) || stats.DeliveryLog["loaded_at"] == nil {
		t.Errorf("expected delivery log stats, got %v", stats.DeliveryLog)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, telegramCode)
	f.addPanel(t, "p")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.relay.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for len(f.notifier.delivered()) == 0 {
		select {
		case <-deadline:
			t.Fatal("first cycle did not run")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("run did not stop")
	}
	if f.relay.State() != StateStopped {
		t.Errorf("expected stopped state, got %s", f.relay.State())
	}
}

type panickyNotifier struct{ fakeNotifier }

func (n *panickyNotifier) Notify(ctx context.Context, chatID int64, ev models.OTPEvent) error {
	if ev.PanelName == "broken" {
		panic("nil chat")
	}
	return n.fakeNotifier.Notify(ctx, chatID, ev)
}

func TestPanicWhileNotifyingIsContained(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, p models.Panel, call int) ([]models.Message, error) {
		if p.Name == "broken" {
			return []models.Message{{RawText: "WhatsApp code 111111", SenderNumber: "447911123456"}}, nil
		}
		return telegramCode(ctx, p, call)
	})
	f.addPanel(t, "broken")
	f.addPanel(t, "good")

	n := &panickyNotifier{}
	f.relay.notifier = n

	if err := f.relay.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(n.delivered()) != 1 {
		t.Errorf("other panels must still be notified, got %d", len(n.delivered()))
	}
	if len(n.admin) != 1 {
		t.Errorf("expected an admin alert, got %v", n.admin)
	}
}
