package relay

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func (r *Relay) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	router.Get("/health", r.healthHandler)
	router.Get("/stats", r.statsHandler)
	router.Post("/webhook", r.telegramWebhookHandler)

	return router
}

// staleAfter is how long the loop may go without finishing a cycle before
// /health reports it as stuck.
func (r *Relay) staleAfter() time.Duration {
	return 3*r.config.PollInterval + r.config.FetchTimeout + r.config.NotifyTimeout
}

func (r *Relay) healthHandler(w http.ResponseWriter, req *http.Request) {
	st := r.Status()

	last := st.LastCycleEnd
	if last.IsZero() {
		last = r.startedAt
	}

	status := "healthy"
	code := http.StatusOK
	if time.Since(last) > r.staleAfter() {
		status = "stale"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]interface{}{
		"status":         status,
		"state":          st.State,
		"last_cycle_end": st.LastCycleEnd,
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

func (r *Relay) statsHandler(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"relay":        r.Status(),
		"delivery_log": r.delivered.Stats(),
	})
}

func (r *Relay) telegramWebhookHandler(w http.ResponseWriter, req *http.Request) {
	if r.webhook == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	r.webhook(w, req)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("failed to write response", zap.Error(err))
	}
}
