package api

import (
	"net/http"

	"github.com/JakeFAU/site-downloader/internal/ratecontrol"
	"github.com/JakeFAU/site-downloader/internal/session"
)

// rateView renders durations in seconds for humans and dashboards.
type rateView struct {
	CurrentDelaySeconds      float64 `json:"current_delay_seconds"`
	MinDelaySeconds          float64 `json:"min_delay_seconds"`
	MaxDelaySeconds          float64 `json:"max_delay_seconds"`
	BackoffFactor            float64 `json:"backoff_factor"`
	ConsecutiveRateLimitHits int     `json:"consecutive_rate_limit_hits"`
}

type statusView struct {
	Session           session.Stats `json:"session"`
	RequestsPerSecond float64       `json:"requests_per_second"`
	KilobytesPerSec   float64       `json:"kilobytes_per_second"`
	Rate              *rateView     `json:"rate,omitempty"`
}

func newRateView(st ratecontrol.State) *rateView {
	return &rateView{
		CurrentDelaySeconds:      st.CurrentDelay.Seconds(),
		MinDelaySeconds:          st.MinDelay.Seconds(),
		MaxDelaySeconds:          st.MaxDelay.Seconds(),
		BackoffFactor:            st.BackoffFactor,
		ConsecutiveRateLimitHits: st.ConsecutiveRateLimitHits,
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// status handles GET /status. It returns 503 when no session is attached.
func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	if s.session == nil {
		writeError(w, http.StatusServiceUnavailable, "no active session")
		return
	}
	stats := s.session.Report()
	view := statusView{
		Session:           stats,
		RequestsPerSecond: stats.RequestsPerSecond(),
		KilobytesPerSec:   stats.KilobytesPerSecond(),
	}
	if s.rate != nil {
		view.Rate = newRateView(s.rate.State())
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) rateState(w http.ResponseWriter, _ *http.Request) {
	if s.rate == nil {
		writeError(w, http.StatusServiceUnavailable, "rate controller unavailable")
		return
	}
	writeJSON(w, http.StatusOK, newRateView(s.rate.State()))
}

// resetRate handles POST /rate/reset, clearing escalation and returning the
// state after the reset.
func (s *Server) resetRate(w http.ResponseWriter, _ *http.Request) {
	if s.rate == nil {
		writeError(w, http.StatusServiceUnavailable, "rate controller unavailable")
		return
	}
	s.rate.ResetEscalation()
	st := s.rate.State()
	s.logger.Info("rate escalation reset via API")
	writeJSON(w, http.StatusOK, newRateView(st))
}
