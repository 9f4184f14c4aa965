package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/arko-chat/jsbridge/internal/diagnostics"
)

const maxRequestBytes = 1 << 20

type invokeRequest struct {
	Function string          `json:"function"`
	Argument json.RawMessage `json:"argument,omitempty"`
}

type loadRequest struct {
	URL string `json:"url"`
}

type journalResponse struct {
	Entries []diagnostics.Entry `json:"entries"`
	Last    uint64              `json:"last"`
}

func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.Bridge.State())
}

func (h *Handler) HandleJournal(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var since uint64
	if v := q.Get("since"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "since must be a sequence number"})
			return
		}
		since = n
	}

	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	journal := h.svc.Bridge.Journal()
	h.writeJSON(w, http.StatusOK, journalResponse{
		Entries: journal.Since(since, limit),
		Last:    journal.Last(),
	})
}

func (h *Handler) HandleInvoke(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.Bridge.Invoke(req.Function, req.Argument); err != nil {
		h.serverError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, h.svc.Bridge.State())
}

func (h *Handler) HandleLoad(w http.ResponseWriter, r *http.Request) {
	var req loadRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.Bridge.Load(req.URL); err != nil {
		h.serverError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, h.svc.Bridge.State())
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(v); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}
