package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"

	"github.com/louisbranch/lunchroll/internal/services/ordersession/domain"
	"github.com/louisbranch/lunchroll/internal/services/ordersession/storage"
)

// Server exposes the order-session use-cases over HTTP.
type Server struct {
	svc    *domain.Service
	acks   storage.AckStore
	router chi.Router
}

// NewServer wires the routes. The ack store may be nil, in which case
// notification dismissal endpoints report the store as unavailable and
// observations are returned unfiltered.
func NewServer(svc *domain.Service, acks storage.AckStore) *Server {
	s := &Server{svc: svc, acks: acks}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(traceMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Get("/", s.handleListActiveSessions)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/observe", s.handleObserve)
			r.Post("/respond", s.handleRespond)
			r.Post("/sweep", s.handleSweep)
			r.Post("/reconcile", s.handleReconcile)
			r.Patch("/times", s.handleUpdateTimes)
			r.Patch("/status", s.handleUpdateStatus)
			r.Delete("/", s.handleDeleteSession)
		})
	})
	r.Post("/notifications/dismiss", s.handleDismiss)
	r.Post("/notifications/clear", s.handleClearDismissals)

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func traceMiddleware(next http.Handler) http.Handler {
	tracer := otel.Tracer("ordersession/http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path)
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type sessionResponse struct {
	ID                string   `json:"id"`
	CompanyID         string   `json:"company_id"`
	RestaurantName    string   `json:"restaurant_name"`
	RestaurantOptions []string `json:"restaurant_options,omitempty"`
	StartTime         string   `json:"start_time"`
	EndTime           string   `json:"end_time"`
	Status            string   `json:"status"`
	CreatedAt         string   `json:"created_at"`
	UpdatedAt         string   `json:"updated_at"`
}

type participantResponse struct {
	SessionID   string `json:"session_id"`
	UserID      string `json:"user_id"`
	UserName    string `json:"user_name"`
	Status      string `json:"status"`
	PresetOrder string `json:"preset_order,omitempty"`
	AutoPassed  bool   `json:"auto_passed"`
	UpdatedAt   string `json:"updated_at"`
}

type notificationResponse struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id,omitempty"`
	UserName  string `json:"user_name,omitempty"`
}

func toSessionResponse(session domain.OrderSession) sessionResponse {
	return sessionResponse{
		ID:                session.ID,
		CompanyID:         session.CompanyID,
		RestaurantName:    session.RestaurantName,
		RestaurantOptions: session.RestaurantOptions,
		StartTime:         session.StartTime.UTC().Format(time.RFC3339),
		EndTime:           session.EndTime.UTC().Format(time.RFC3339),
		Status:            string(session.Status),
		CreatedAt:         session.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:         session.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toParticipantResponse(p domain.Participant) participantResponse {
	return participantResponse{
		SessionID:   p.SessionID,
		UserID:      p.UserID,
		UserName:    p.UserName,
		Status:      string(p.Status),
		PresetOrder: p.PresetOrder,
		AutoPassed:  p.AutoPassed(),
		UpdatedAt:   p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toParticipantResponses(participants []domain.Participant) []participantResponse {
	out := make([]participantResponse, 0, len(participants))
	for _, p := range participants {
		out = append(out, toParticipantResponse(p))
	}
	return out
}

func toNotificationResponses(notifications []domain.Notification) []notificationResponse {
	out := make([]notificationResponse, 0, len(notifications))
	for _, n := range notifications {
		out = append(out, notificationResponse{
			ID:        n.ID,
			Type:      n.Type,
			Title:     n.Title,
			Message:   n.Message,
			Timestamp: n.Timestamp.UTC().Format(time.RFC3339),
			SessionID: n.SessionID,
			UserID:    n.UserID,
			UserName:  n.UserName,
		})
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createSessionRequest struct {
	CompanyID         string   `json:"company_id"`
	RestaurantName    string   `json:"restaurant_name"`
	RestaurantOptions []string `json:"restaurant_options"`
	StartTime         string   `json:"start_time"`
	EndTime           string   `json:"end_time"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	start, err := parseTime(req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", "start_time must be RFC 3339")
		return
	}
	end, err := parseTime(req.EndTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", "end_time must be RFC 3339")
		return
	}

	session, participants, err := s.svc.CreateSession(r.Context(), domain.CreateSessionInput{
		CompanyID:         req.CompanyID,
		RestaurantName:    req.RestaurantName,
		RestaurantOptions: req.RestaurantOptions,
		StartTime:         start,
		EndTime:           end,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"session":      toSessionResponse(session),
		"participants": toParticipantResponses(participants),
	})
}

func (s *Server) handleObserve(w http.ResponseWriter, r *http.Request) {
	role := domain.Role(strings.TrimSpace(r.URL.Query().Get("role")))
	if role == "" {
		writeError(w, http.StatusBadRequest, "invalid_argument", "role query parameter is required")
		return
	}
	observation, err := s.svc.Observe(r.Context(), domain.ObserveRequest{
		SessionID:      chi.URLParam(r, "sessionID"),
		Role:           role,
		ObserverUserID: r.URL.Query().Get("user_id"),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	notifications := s.filterDismissed(r, role, observation)
	writeJSON(w, http.StatusOK, map[string]any{
		"session":       toSessionResponse(observation.Session),
		"phase":         string(observation.Phase),
		"participants":  toParticipantResponses(observation.Participants),
		"notifications": toNotificationResponses(notifications),
	})
}

// filterDismissed drops notifications the observer has acknowledged. Ack
// lookups are best-effort: on failure the unfiltered list is returned.
func (s *Server) filterDismissed(r *http.Request, role domain.Role, observation domain.Observation) []domain.Notification {
	if s.acks == nil || len(observation.Notifications) == 0 {
		return observation.Notifications
	}
	key := ackObserverKey(observation.Session.ID, role, r.URL.Query().Get("user_id"))
	dismissed, err := s.acks.ListDismissedEvents(r.Context(), key)
	if err != nil {
		log.Printf("list dismissed events: %v", err)
		return observation.Notifications
	}
	if len(dismissed) == 0 {
		return observation.Notifications
	}
	hidden := make(map[string]bool, len(dismissed))
	for _, id := range dismissed {
		hidden[id] = true
	}
	kept := observation.Notifications[:0:0]
	for _, n := range observation.Notifications {
		if !hidden[n.ID] {
			kept = append(kept, n)
		}
	}
	return kept
}

type respondRequest struct {
	UserID      string `json:"user_id"`
	Response    string `json:"response"`
	PresetOrder string `json:"preset_order"`
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	participant, err := s.svc.Respond(r.Context(), domain.RespondInput{
		SessionID:   chi.URLParam(r, "sessionID"),
		UserID:      req.UserID,
		Response:    domain.ParticipantStatus(req.Response),
		PresetOrder: req.PresetOrder,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"participant": toParticipantResponse(participant)})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.SweepDeadline(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	failures := make([]map[string]string, 0, len(result.Failures))
	for _, failure := range result.Failures {
		failures = append(failures, map[string]string{
			"user_id": failure.UserID,
			"error":   failure.Err.Error(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"auto_passed_count": result.AutoPassedCount,
		"session_closed":    result.SessionClosed,
		"failures":          failures,
	})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	added, err := s.svc.ReconcileParticipants(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"added": toParticipantResponses(added)})
}

type updateTimesRequest struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func (s *Server) handleUpdateTimes(w http.ResponseWriter, r *http.Request) {
	var req updateTimesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	start, err := parseTime(req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", "start_time must be RFC 3339")
		return
	}
	end, err := parseTime(req.EndTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", "end_time must be RFC 3339")
		return
	}
	session, err := s.svc.UpdateSessionTimes(r.Context(), chi.URLParam(r, "sessionID"), start, end)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": toSessionResponse(session)})
}

func (s *Server) handleListActiveSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.svc.ListActiveSessions(r.Context(), r.URL.Query().Get("company_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]sessionResponse, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, toSessionResponse(session))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

type updateStatusRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// handleUpdateStatus applies a manager override such as closing a session
// before its deadline. The write is compare-and-swap on the expected status.
func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	from := domain.SessionStatus(strings.TrimSpace(req.From))
	to := domain.SessionStatus(strings.TrimSpace(req.To))
	if !from.Valid() || !to.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_argument", "from and to must be known session statuses")
		return
	}
	if err := s.svc.SetSessionStatus(r.Context(), chi.URLParam(r, "sessionID"), from, to); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type dismissRequest struct {
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	UserID    string `json:"user_id"`
	EventID   string `json:"event_id"`
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	if s.acks == nil {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "dismissal store is not configured")
		return
	}
	var req dismissRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	role := domain.Role(strings.TrimSpace(req.Role))
	if !role.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_argument", "role must be manager or team_member")
		return
	}
	if strings.TrimSpace(req.SessionID) == "" || strings.TrimSpace(req.EventID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_argument", "session_id and event_id are required")
		return
	}
	key := ackObserverKey(req.SessionID, role, req.UserID)
	if err := s.acks.DismissEvent(r.Context(), key, strings.TrimSpace(req.EventID), time.Now().UTC()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "record dismissal")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type clearDismissalsRequest struct {
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	UserID    string `json:"user_id"`
}

func (s *Server) handleClearDismissals(w http.ResponseWriter, r *http.Request) {
	if s.acks == nil {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "dismissal store is not configured")
		return
	}
	var req clearDismissalsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	role := domain.Role(strings.TrimSpace(req.Role))
	if !role.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_argument", "role must be manager or team_member")
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_argument", "session_id is required")
		return
	}
	key := ackObserverKey(req.SessionID, role, req.UserID)
	if err := s.acks.ClearDismissals(r.Context(), key); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "clear dismissals")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func ackObserverKey(sessionID string, role domain.Role, userID string) string {
	return strings.TrimSpace(sessionID) + "|" + string(role) + "|" + strings.TrimSpace(userID)
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339, strings.TrimSpace(value))
}

func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}

// writeDomainError maps domain sentinels to HTTP statuses. The code field
// lets clients tell a closed response window apart from transient failures.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "session not found")
	case errors.Is(err, domain.ErrSessionNotActive):
		writeError(w, http.StatusConflict, "session_not_active", "the response window is closed")
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", "the session changed concurrently")
	case errors.Is(err, domain.ErrMissingPresetOrder):
		writeError(w, http.StatusUnprocessableEntity, "missing_preset_order", "preset responses require a preset order")
	case errors.Is(err, domain.ErrStoreUnavailable), errors.Is(err, domain.ErrStoreNotConfigured):
		log.Printf("store error: %v", err)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "storage is unavailable")
	case isValidationError(err):
		writeError(w, http.StatusBadRequest, "invalid_argument", err.Error())
	default:
		log.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func isValidationError(err error) bool {
	for _, sentinel := range []error{
		domain.ErrInvalidTimeWindow,
		domain.ErrInvalidResponse,
		domain.ErrInvalidRole,
		domain.ErrEmptyCompanyID,
		domain.ErrEmptyRestaurantName,
		domain.ErrEmptySessionID,
		domain.ErrEmptyUserID,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
