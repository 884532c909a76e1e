package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ObiAU/otprelay/internal/config"
	"github.com/ObiAU/otprelay/internal/models"
	"github.com/ObiAU/otprelay/internal/parser"
)

// A panel that fails this many cycles in a row is reported to the admin once.
const failureAlertThreshold = 3

type PanelSource interface {
	ListEnabled(ctx context.Context) ([]models.Panel, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, panel models.Panel) ([]models.Message, error)
}

type DeliveryLog interface {
	HasBeenDelivered(key string) bool
	MarkDelivered(ctx context.Context, key string) error
	Len() int
	Stats() map[string]interface{}
}

// Notifier sends one event to one destination chat.
type Notifier interface {
	Destinations(ctx context.Context) ([]int64, error)
	Notify(ctx context.Context, chatID int64, ev models.OTPEvent) error
	NotifyAdmin(ctx context.Context, text string)
}

type Classifier interface {
	ClassifyService(ctx context.Context, text string) (string, error)
}

type Relay struct {
	config     *config.Config
	panels     PanelSource
	fetcher    Fetcher
	delivered  DeliveryLog
	notifier   Notifier
	classifier Classifier
	webhook    http.HandlerFunc

	state     atomic.Int32
	startedAt time.Time

	mu             sync.RWMutex
	cycles         int64
	deliveredCount int64
	fetchErrors    int64
	notifyErrors   int64
	lastCycleStart time.Time
	lastCycleEnd   time.Time
	failures       map[string]int
}

func New(cfg *config.Config, panels PanelSource, fetcher Fetcher, delivered DeliveryLog, notifier Notifier) *Relay {
	return &Relay{
		config:    cfg,
		panels:    panels,
		fetcher:   fetcher,
		delivered: delivered,
		notifier:  notifier,
		startedAt: time.Now(),
		failures:  make(map[string]int),
	}
}

// SetClassifier enables the fallback service lookup for messages the keyword
// table cannot name.
func (r *Relay) SetClassifier(c Classifier) {
	r.classifier = c
}

func (r *Relay) SetWebhookHandler(h http.HandlerFunc) {
	r.webhook = h
}

// Run polls until ctx is done, serving the HTTP endpoints alongside. A cycle
// that is in flight when ctx is cancelled runs to completion.
func (r *Relay) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if starter, ok := r.notifier.(interface{ Start(context.Context) error }); ok {
		g.Go(func() error {
			if err := starter.Start(ctx); err != nil {
				return fmt.Errorf("failed to start telegram bot: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error { return r.serveHTTP(ctx) })
	g.Go(func() error { return r.pollLoop(ctx) })

	if r.config.StatusReportSpec != "" {
		scheduler := cron.New()
		_, err := scheduler.AddFunc(r.config.StatusReportSpec, func() {
			r.notifier.NotifyAdmin(ctx, r.statusReport())
		})
		if err != nil {
			zap.L().Warn("invalid status report schedule", zap.String("spec", r.config.StatusReportSpec), zap.Error(err))
		} else {
			scheduler.Start()
			defer scheduler.Stop()
		}
	}

	err := g.Wait()
	r.setState(StateStopped)
	zap.L().Info("relay stopped")
	return err
}

func (r *Relay) pollLoop(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		if err := r.RunCycle(context.WithoutCancel(ctx)); err != nil {
			zap.L().Error("poll cycle failed", zap.Error(err))
		}

		r.setState(StateSleeping)
		timer.Reset(r.config.PollInterval)
	}
}

// RunCycle fetches every enabled panel concurrently, then notifies new OTPs
// one at a time in panel order. Delivery is tracked per destination chat: a
// chat is marked only after the notifier confirmed the send to it.
func (r *Relay) RunCycle(ctx context.Context) error {
	r.mu.Lock()
	r.lastCycleStart = time.Now()
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.cycles++
		r.lastCycleEnd = time.Now()
		r.mu.Unlock()
	}()

	r.setState(StateFetchingAll)

	panels, err := r.panels.ListEnabled(ctx)
	if err != nil {
		r.notifier.NotifyAdmin(ctx, fmt.Sprintf("⚠️ Could not load panels: %v", err))
		return fmt.Errorf("failed to list panels: %w", err)
	}

	results := r.fetchAll(ctx, panels)

	chats, err := r.notifier.Destinations(ctx)
	if err != nil {
		r.notifier.NotifyAdmin(ctx, fmt.Sprintf("⚠️ Could not load destination chats: %v", err))
		return fmt.Errorf("failed to list destination chats: %w", err)
	}
	if len(chats) == 0 {
		zap.L().Warn("no destination chats configured, nothing delivered this cycle")
		return nil
	}

	r.setState(StateNotifying)
	for i, panel := range panels {
		r.deliverAll(ctx, panel, chats, results[i])
	}

	return nil
}

func (r *Relay) deliverAll(ctx context.Context, panel models.Panel, chats []int64, msgs []models.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			zap.L().Error("panic while delivering", zap.String("panel_id", panel.ID), zap.Any("panic", rec))
			r.notifier.NotifyAdmin(ctx, fmt.Sprintf("⚠️ Unexpected error while relaying %s: %v", panel.Name, rec))
		}
	}()

	for _, msg := range msgs {
		r.deliver(ctx, panel, chats, msg)
	}
}

func (r *Relay) fetchAll(ctx context.Context, panels []models.Panel) [][]models.Message {
	results := make([][]models.Message, len(panels))
	var wg sync.WaitGroup

	for i, panel := range panels {
		wg.Add(1)
		go func(i int, p models.Panel) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					r.recordFetch(ctx, p, fmt.Errorf("panic: %v", rec))
				}
			}()

			// Each request is bounded by FetchTimeout on its own; the panel
			// deadline covers all of them back to back.
			budget := r.config.FetchTimeout * time.Duration(p.SequentialRequests())
			fetchCtx, cancel := context.WithTimeout(ctx, budget)
			defer cancel()

			msgs, err := r.fetcher.Fetch(fetchCtx, p)
			if err != nil {
				r.recordFetch(ctx, p, err)
				return
			}
			r.recordFetch(ctx, p, nil)

			for j := range msgs {
				if msgs[j].SourceID == "" {
					msgs[j].SourceID = p.ID
				}
			}
			results[i] = msgs
		}(i, panel)
	}

	wg.Wait()
	return results
}

func (r *Relay) recordFetch(ctx context.Context, p models.Panel, err error) {
	r.mu.Lock()
	if err == nil {
		r.failures[p.ID] = 0
		r.mu.Unlock()
		return
	}
	r.fetchErrors++
	r.failures[p.ID]++
	alert := r.failures[p.ID] == failureAlertThreshold
	r.mu.Unlock()

	zap.L().Warn("panel fetch failed",
		zap.String("panel_id", p.ID),
		zap.String("panel", p.Name),
		zap.Error(err),
	)

	if alert {
		r.notifier.NotifyAdmin(ctx, fmt.Sprintf("⚠️ Panel %s (%s) failed %d cycles in a row: %v",
			p.Name, p.ID, failureAlertThreshold, err))
	}
}

func (r *Relay) deliver(ctx context.Context, panel models.Panel, chats []int64, msg models.Message) {
	ev, ok := parser.Parse(msg)
	if !ok {
		zap.L().Debug("no otp in message", zap.String("panel_id", panel.ID))
		return
	}
	ev.PanelName = panel.Name

	pending := make([]int64, 0, len(chats))
	for _, chatID := range chats {
		if !r.delivered.HasBeenDelivered(deliveryKey(ev.IdentityKey, chatID)) {
			pending = append(pending, chatID)
		}
	}
	if len(pending) == 0 {
		return
	}

	if ev.Service == parser.UnknownService && r.classifier != nil {
		r.classify(ctx, &ev)
	}

	sent := 0
	for _, chatID := range pending {
		notifyCtx, cancel := context.WithTimeout(ctx, r.config.NotifyTimeout)
		err := r.notifier.Notify(notifyCtx, chatID, ev)
		cancel()
		if err != nil {
			r.mu.Lock()
			r.notifyErrors++
			r.mu.Unlock()
			zap.L().Error("failed to deliver otp",
				zap.String("panel_id", panel.ID),
				zap.Int64("chat_id", chatID),
				zap.String("service", ev.Service),
				zap.Error(err),
			)
			continue
		}

		key := deliveryKey(ev.IdentityKey, chatID)
		if err := r.delivered.MarkDelivered(ctx, key); err != nil {
			zap.L().Error("failed to persist delivery", zap.String("key", key), zap.Error(err))
		}
		sent++
	}

	if sent == 0 {
		return
	}

	r.mu.Lock()
	r.deliveredCount += int64(sent)
	r.mu.Unlock()

	zap.L().Info("otp delivered",
		zap.String("panel", panel.Name),
		zap.String("service", ev.Service),
		zap.String("country", ev.Country),
		zap.Int("chats", sent),
	)
}

// deliveryKey identifies one message in one destination chat.
func deliveryKey(identityKey string, chatID int64) string {
	return identityKey + ":" + strconv.FormatInt(chatID, 10)
}

func (r *Relay) classify(ctx context.Context, ev *models.OTPEvent) {
	classifyCtx, cancel := context.WithTimeout(ctx, r.config.NotifyTimeout)
	defer cancel()

	name, err := r.classifier.ClassifyService(classifyCtx, ev.RawText)
	if err != nil {
		zap.L().Debug("service classification failed", zap.Error(err))
		return
	}
	if name != "" {
		ev.Service = name
		ev.ServiceEmoji = parser.ServiceEmoji(name)
	}
}

func (r *Relay) Status() models.RelayStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return models.RelayStatus{
		State:          r.State().String(),
		Cycles:         r.cycles,
		Delivered:      r.deliveredCount,
		FetchErrors:    r.fetchErrors,
		NotifyErrors:   r.notifyErrors,
		LastCycleStart: r.lastCycleStart,
		LastCycleEnd:   r.lastCycleEnd,
		KnownMessages:  r.delivered.Len(),
	}
}

func (r *Relay) statusReport() string {
	st := r.Status()
	return fmt.Sprintf("📊 Relay report\nState: %s\nCycles: %d\nDelivered: %d\nFetch errors: %d\nNotify errors: %d",
		st.State, st.Cycles, st.Delivered, st.FetchErrors, st.NotifyErrors)
}

func (r *Relay) serveHTTP(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + r.config.ServerPort,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("failed to shutdown HTTP server", zap.Error(err))
		}
	}()

	zap.L().Info("http server listening", zap.String("addr", server.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
