// Package httptransport exposes the privilege engine to the orchestration
// layer. Handlers validate and translate; policy stays in the engine.
package httptransport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"lexvault/internal/platform/middleware"
	"lexvault/internal/privilege"
	"lexvault/internal/privilege/access"
	"lexvault/internal/privilege/audit"
	"lexvault/internal/privilege/models"
	"lexvault/internal/privilege/relationship"
	dErrors "lexvault/pkg/domain-errors"
)

// Handler serves the privileged API surface.
type Handler struct {
	engine    *privilege.Engine
	logger    *slog.Logger
	validator middleware.TokenValidator
}

func NewHandler(engine *privilege.Engine, validator middleware.TokenValidator, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, validator: validator, logger: logger}
}

// Register mounts the privileged routes. Everything under /privilege requires
// a valid bearer token.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.RequireAuth(h.validator, h.logger))

	router.Post("/privilege/relationships", h.handleEstablishRelationship)
	router.Post("/privilege/relationships/{id}/close", h.handleCloseRelationship)
	router.Get("/privilege/relationships/verify", h.handleVerifyRelationship)
	router.Post("/privilege/cases", h.handleRegisterCase)
	router.Post("/privilege/communications", h.handleStoreCommunication)
	router.Get("/privilege/communications", h.handleRetrieveCommunications)
	router.Delete("/privilege/communications", h.handleDestroyCommunications)
	router.Get("/privilege/context", h.handleClientContext)
	router.Post("/privilege/access/check", h.handleAccessCheck)
	router.Get("/privilege/audit", h.handleAuditQuery)
	router.Get("/privilege/compliance/{attorneyID}", h.handleCompliance)

	r.Mount("/", router)
}

type establishRelationshipRequest struct {
	AttorneyID string `json:"attorney_id"`
	ClientID   string `json:"client_id"`
	CaseID     string `json:"case_id"`
	Scope      string `json:"scope"`
}

func (h *Handler) handleEstablishRelationship(w http.ResponseWriter, r *http.Request) {
	var req establishRelationshipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	scope := models.Scope(req.Scope)
	if req.Scope == "" {
		scope = models.ScopeFull
	}
	rel, err := h.engine.EstablishRelationship(r.Context(), req.AttorneyID, req.ClientID, req.CaseID, scope)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"relationship_id": rel.ID,
		"status":          rel.Status,
		"scope":           rel.Scope,
		"established_at":  rel.EstablishedAt,
	})
}

func (h *Handler) handleCloseRelationship(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeValidation, "invalid relationship id"))
		return
	}
	if err := h.engine.CloseRelationship(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (h *Handler) handleVerifyRelationship(w http.ResponseWriter, r *http.Request) {
	attorneyID := r.URL.Query().Get("attorney_id")
	clientID := r.URL.Query().Get("client_id")
	if attorneyID == "" || clientID == "" {
		writeError(w, dErrors.New(dErrors.CodeValidation, "attorney_id and client_id are required"))
		return
	}
	ok, err := h.engine.VerifyRelationship(r.Context(), attorneyID, clientID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"privileged": ok})
}

type registerCaseRequest struct {
	CaseID        string `json:"case_id"`
	Name          string `json:"case_name"`
	Type          string `json:"case_type"`
	Status        string `json:"case_status"`
	Facts         string `json:"case_facts"`
	Issues        string `json:"legal_issues"`
	StrategyNotes string `json:"strategy_notes"`
}

func (h *Handler) handleRegisterCase(w http.ResponseWriter, r *http.Request) {
	var req registerCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	record := relationship.CaseRecord{
		CaseSummary: models.CaseSummary{
			CaseID: req.CaseID,
			Name:   req.Name,
			Type:   req.Type,
			Status: req.Status,
			Facts:  req.Facts,
			Issues: req.Issues,
		},
		StrategyNotes: req.StrategyNotes,
	}
	if err := h.engine.RegisterCase(r.Context(), record); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"case_id": req.CaseID})
}

type storeCommunicationRequest struct {
	AttorneyID string         `json:"attorney_id"`
	ClientID   string         `json:"client_id"`
	Payload    map[string]any `json:"communication"`
	Kind       string         `json:"kind"`
	Scope      string         `json:"scope"`
}

func (h *Handler) handleStoreCommunication(w http.ResponseWriter, r *http.Request) {
	var req storeCommunicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	comm, err := h.engine.StoreCommunication(r.Context(), req.AttorneyID, req.ClientID, req.Payload, req.Kind, models.Scope(req.Scope))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"communication_id": comm.ID,
		"status":           comm.Status,
		"created_at":       comm.CreatedAt,
	})
}

type communicationResponse struct {
	ID        uuid.UUID      `json:"communication_id"`
	Kind      string         `json:"kind"`
	Scope     models.Scope   `json:"scope"`
	Status    string         `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	Payload   map[string]any `json:"communication,omitempty"`
	Error     string         `json:"error,omitempty"`
}

func (h *Handler) handleRetrieveCommunications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	attorneyID := q.Get("attorney_id")
	clientID := q.Get("client_id")
	if attorneyID == "" || clientID == "" {
		writeError(w, dErrors.New(dErrors.CodeValidation, "attorney_id and client_id are required"))
		return
	}
	var id *uuid.UUID
	if raw := q.Get("id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, dErrors.New(dErrors.CodeValidation, "invalid communication id"))
			return
		}
		id = &parsed
	}
	records, err := h.engine.RetrieveCommunications(r.Context(), attorneyID, clientID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]communicationResponse, 0, len(records))
	for _, rec := range records {
		resp := communicationResponse{
			ID:        rec.ID,
			Kind:      rec.Kind,
			Scope:     rec.Scope,
			Status:    string(rec.Status),
			CreatedAt: rec.CreatedAt,
			Payload:   rec.Payload,
		}
		if rec.Err != nil {
			resp.Error = string(dErrors.CodeOf(rec.Err))
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"communications": out,
		"count":          len(out),
	})
}

func (h *Handler) handleDestroyCommunications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	attorneyID := q.Get("attorney_id")
	clientID := q.Get("client_id")
	reason := q.Get("reason")
	if attorneyID == "" || clientID == "" {
		writeError(w, dErrors.New(dErrors.CodeValidation, "attorney_id and client_id are required"))
		return
	}
	result, err := h.engine.DestroyCommunications(r.Context(), attorneyID, clientID, reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleClientContext(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	attorneyID := q.Get("attorney_id")
	clientID := q.Get("client_id")
	if attorneyID == "" || clientID == "" {
		writeError(w, dErrors.New(dErrors.CodeValidation, "attorney_id and client_id are required"))
		return
	}
	cases, err := h.engine.GetClientContext(r.Context(), attorneyID, clientID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"client_id": clientID,
		"cases":     cases,
		"count":     len(cases),
	})
}

type accessCheckRequest struct {
	UserID       string `json:"user_id"`
	Role         string `json:"role"`
	AttorneyID   string `json:"attorney_id"`
	ClientID     string `json:"client_id"`
	ResourceType string `json:"resource_type"`
}

func (h *Handler) handleAccessCheck(w http.ResponseWriter, r *http.Request) {
	var req accessCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	decision := h.engine.CheckAccess(r.Context(), access.Request{
		UserID:       req.UserID,
		Role:         access.Role(req.Role),
		AttorneyID:   req.AttorneyID,
		ClientID:     req.ClientID,
		ResourceType: req.ResourceType,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"granted":    decision.Granted,
		"basis":      decision.Basis,
		"decided_at": decision.DecidedAt,
	})
}

func (h *Handler) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := audit.Query{AttorneyID: q.Get("attorney_id")}
	if raw := q.Get("start"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, dErrors.New(dErrors.CodeValidation, "invalid start time"))
			return
		}
		query.Start = t
	}
	if raw := q.Get("end"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, dErrors.New(dErrors.CodeValidation, "invalid end time"))
			return
		}
		query.End = t
	}
	entries, histogram, err := h.engine.QueryAudit(r.Context(), query)
	if err != nil {
		writeError(w, dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "audit query failed"))
		return
	}
	type auditEntryResponse struct {
		ID        int64     `json:"id"`
		ActorID   string    `json:"actor_id"`
		Action    string    `json:"action"`
		Detail    string    `json:"detail"`
		Outcome   string    `json:"outcome"`
		Timestamp time.Time `json:"timestamp"`
	}
	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryResponse{
			ID:        e.ID,
			ActorID:   e.ActorID,
			Action:    string(e.Action),
			Detail:    e.Detail,
			Outcome:   string(e.Outcome),
			Timestamp: e.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":   out,
		"count":     len(out),
		"histogram": histogram,
	})
}

func (h *Handler) handleCompliance(w http.ResponseWriter, r *http.Request) {
	attorneyID := chi.URLParam(r, "attorneyID")
	report, err := h.engine.Compliance(r.Context(), attorneyID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
