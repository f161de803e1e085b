package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/postprober/dashboard-core/internal/health"
	"github.com/postprober/dashboard-core/internal/insights"
	"github.com/postprober/dashboard-core/internal/models"
	"github.com/postprober/dashboard-core/internal/monitoring"
	"github.com/postprober/dashboard-core/internal/platforms"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 64 << 10

func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"stream":    s.monitor.StreamState().String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(s.monitor.GetMetrics()))
}

func (s *Server) listPlatformsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"platforms": s.registry.GetAll()})
}

func (s *Server) connectedPlatformsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"platforms": s.registry.GetConnected()})
}

func (s *Server) getPlatformHandler(w http.ResponseWriter, r *http.Request) {
	platform, err := s.registry.Get(mux.Vars(r)["id"])
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, platform)
}

func (s *Server) connectHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var creds models.Credentials
	if err := decodeBody(w, r, &creds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	platform, err := s.registry.Connect(r.Context(), id, creds)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, platform)
}

func (s *Server) disconnectHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.registry.Disconnect(r.Context(), id); err != nil {
		writeRegistryError(w, err)
		return
	}

	platform, err := s.registry.Get(id)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, platform)
}

func (s *Server) onboardingHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{
		"onboarding_complete": s.registry.IsOnboardingComplete(),
		"first_time_user":     s.registry.IsFirstTimeUser(),
	})
}

func (s *Server) completeOnboardingHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.MarkOnboardingComplete(); err != nil {
		writeRegistryError(w, err)
		return
	}
	s.onboardingHandler(w, r)
}

func (s *Server) currentHealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"platforms": s.monitor.CurrentHealth(),
		"stream":    s.monitor.StreamState().String(),
	})
}

func (s *Server) platformHealthHandler(w http.ResponseWriter, r *http.Request) {
	update, ok := s.monitor.Health(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "no health data for this platform")
		return
	}
	writeJSON(w, http.StatusOK, update)
}

func (s *Server) alertsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": s.monitor.RecentAlerts()})
}

func (s *Server) refreshHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.monitor.RefreshSnapshot(r.Context()); err != nil {
		if errors.Is(err, monitoring.ErrNoSnapshotSource) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		logrus.Errorf("Manual snapshot refresh failed: %v", err)
		writeError(w, http.StatusBadGateway, "health monitor is unreachable")
		return
	}
	s.currentHealthHandler(w, r)
}

func (s *Server) streamStateHandler(w http.ResponseWriter, r *http.Request) {
	state := s.monitor.StreamState()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":     state.String(),
		"connected": state == health.StateOpen,
	})
}

type optimizeRequest struct {
	Content  string `json:"content"`
	Platform string `json:"platform"`
}

func (s *Server) optimizeHandler(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.insights.OptimizeWithHashtags(r.Context(), req.Content, req.Platform)
	if err != nil {
		writeInsightsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) analyticsHandler(w http.ResponseWriter, r *http.Request) {
	dashboard, err := s.insights.GetAnalyticsDashboard(r.Context(), mux.Vars(r)["platform"])
	if err != nil {
		writeInsightsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func writeRegistryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, platforms.ErrUnknownPlatform):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, platforms.ErrInvalidCredentials):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, platforms.ErrCredentialExchange):
		writeError(w, http.StatusBadGateway, "could not verify the connection with the platform")
	default:
		logrus.Errorf("Registry operation failed: %v", err)
		writeError(w, http.StatusInternalServerError, "could not save the connection, please try again")
	}
}

func writeInsightsError(w http.ResponseWriter, err error) {
	var se *insights.ServiceError
	if errors.As(err, &se) {
		status := http.StatusBadGateway
		if se.Cause == nil {
			status = http.StatusBadRequest
		}
		writeError(w, status, se.Message)
		return
	}
	logrus.Errorf("Insights request failed: %v", err)
	writeError(w, http.StatusBadGateway, "the AI service is unavailable")
}
