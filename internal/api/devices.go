package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-gateway/internal/gateway"
)

// handleListDevices returns live snapshots of the caller's connected
// devices.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	session := sessionFromContext(r.Context())
	if session == nil {
		writeUnauthorized(w, "not authenticated")
		return
	}

	devices := s.gateway.SnapshotsFor(session)
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleDeviceHistory returns the retained telemetry window of one
// connected device.
func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	session := sessionFromContext(r.Context())
	if session == nil {
		writeUnauthorized(w, "not authenticated")
		return
	}

	id := chi.URLParam(r, "id")
	frames, err := s.gateway.HistoryFor(session, id)
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrForbiddenDevice):
			writeForbidden(w, "device not accessible")
		case errors.Is(err, gateway.ErrDeviceOffline):
			writeNotFound(w, "device not connected")
		default:
			writeInternalError(w, "failed to read history")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"frames":    frames,
		"count":     len(frames),
	})
}
