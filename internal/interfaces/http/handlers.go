package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/turfline/velo/internal/governance"
)

// Handlers binds the review endpoints to a governance store.
type Handlers struct {
	store governance.Store
}

// NewHandlers wraps a store.
func NewHandlers(store governance.Store) *Handlers {
	return &Handlers{store: store}
}

type errorResponse struct {
	Error string `json:"error"`
}

type reviewRequest struct {
	Reviewer  string                 `json:"reviewer"`
	Rationale string                 `json:"rationale"`
	Bump      governance.VersionBump `json:"bump,omitempty"`
	Metadata  map[string]any         `json:"metadata,omitempty"`
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ListProposals supports status, critic_type, limit and offset query
// parameters.
func (h *Handlers) ListProposals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := governance.ProposalFilter{
		Limit:  parseIntDefault(q.Get("limit"), 50),
		Offset: parseIntDefault(q.Get("offset"), 0),
	}
	if v := q.Get("status"); v != "" {
		status := governance.ProposalStatus(v)
		filter.Status = &status
	}
	if v := q.Get("critic_type"); v != "" {
		critic := governance.CriticType(v)
		filter.Critic = &critic
	}

	proposals, err := h.store.ListProposals(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"proposals": proposals,
		"count":     len(proposals),
		"limit":     filter.Limit,
		"offset":    filter.Offset,
	})
}

// GetProposal returns a proposal with episode links and ledger history.
func (h *Handlers) GetProposal(w http.ResponseWriter, r *http.Request) {
	detail, err := h.store.GetProposal(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// AcceptProposal transitions PENDING to ACCEPTED and bumps doctrine.
func (h *Handlers) AcceptProposal(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.store.Accept)
}

// RejectProposal transitions PENDING to REJECTED without a bump.
func (h *Handlers) RejectProposal(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.store.Reject)
}

// RollbackProposal transitions ACCEPTED to ROLLED_BACK and reactivates the
// prior doctrine version.
func (h *Handlers) RollbackProposal(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.store.Rollback)
}

type reviewFunc func(ctx context.Context, proposalID string, review governance.Review) (*governance.Proposal, error)

func (h *Handlers) review(w http.ResponseWriter, r *http.Request, fn reviewFunc) {
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Reviewer == "" || req.Rationale == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "reviewer and rationale are required"})
		return
	}

	proposal, err := fn(r.Context(), mux.Vars(r)["id"], governance.Review{
		Reviewer:  req.Reviewer,
		Rationale: req.Rationale,
		Bump:      req.Bump,
		Metadata:  req.Metadata,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proposal)
}

// GetLedger returns the newest governance actions.
func (h *Handlers) GetLedger(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
	entries, err := h.store.GetLedger(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ledger": entries, "count": len(entries)})
}

// GetDoctrineVersions returns the newest versions.
func (h *Handlers) GetDoctrineVersions(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 20)
	versions, err := h.store.GetDoctrineVersions(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions, "count": len(versions)})
}

// GetActiveDoctrine returns the single active version.
func (h *Handlers) GetActiveDoctrine(w http.ResponseWriter, r *http.Request) {
	v, err := h.store.ActiveDoctrine(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// GetStats summarizes the store.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// NotFound is the fallback handler.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "endpoint not found"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var notFound *governance.NotFoundError
	var conflict *governance.ConflictError
	switch {
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
