package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"archwall.mini/aw/internal/client"
	"archwall.mini/aw/internal/logger"
	"archwall.mini/aw/internal/trust"
)

// Machine is the client state machine driven by the API.
type Machine interface {
	State() client.State
	Connect(ctx context.Context) error
	Initialize(ctx context.Context) error
	Submit(ctx context.Context, link string) error
	Refresh(ctx context.Context) error
	Disconnect(ctx context.Context) error
	DismissError()
}

// Service handles API requests
type Service struct {
	machine Machine
	store   *trust.Store
	ring    *logger.Ring
	log     zerolog.Logger
}

// NewService creates a new API service
func NewService(machine Machine, store *trust.Store, ring *logger.Ring, log zerolog.Logger) *Service {
	return &Service{
		machine: machine,
		store:   store,
		ring:    ring,
		log:     log.With().Str("component", "api").Logger(),
	}
}

// writeJSON writes a JSON response
func (s *Service) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Service) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeOpError reports a failed machine operation along with the state it
// left behind.
func (s *Service) writeOpError(w http.ResponseWriter, err error) {
	body := map[string]interface{}{
		"error": err.Error(),
		"state": s.machine.State(),
	}
	if !errors.Is(err, client.ErrBusy) && !errors.Is(err, client.ErrInvalidState) {
		body["kind"] = client.Classify(err)
	}
	s.writeJSON(w, statusFor(err), body)
}

// statusFor maps an operation error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, client.ErrBusy), errors.Is(err, client.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	switch client.Classify(err) {
	case client.KindInvalidEntry:
		return http.StatusBadRequest
	case client.KindUserRejected:
		return http.StatusForbidden
	case client.KindProviderUnavailable:
		return http.StatusServiceUnavailable
	case client.KindRejectedByLedger:
		return http.StatusUnprocessableEntity
	case client.KindAccountNotFound:
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}

// detach keeps an operation running when the HTTP client goes away. A
// signed transaction cannot be retracted, so the machine must see it
// through.
func detach(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}
