// Package agent is the local HTTP API of the client: it exposes the offline
// queue to other processes on the same machine.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lofari/DynamicForms-sub000/internal/queue"
	"github.com/lofari/DynamicForms-sub000/internal/syncer"
)

// Queue is the part of the queue store the agent exposes.
type Queue interface {
	List(ctx context.Context) ([]queue.Submission, error)
	Retry(ctx context.Context, id string) error
	Discard(ctx context.Context, id string) error
	CountPendingByForm(ctx context.Context, formID string) (int, error)
	ObserveAll(ctx context.Context) <-chan []queue.Submission
	ObservePendingCount(ctx context.Context, formID string) <-chan int
}

type Handler struct {
	queue     Queue
	passer    syncer.Passer
	scheduler syncer.SyncScheduler
	logger    *zap.Logger
}

func NewHandler(q Queue, passer syncer.Passer, scheduler syncer.SyncScheduler, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{queue: q, passer: passer, scheduler: scheduler, logger: logger}
}

// Router returns a chi router serving the agent API.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/queue", func(r chi.Router) {
		r.Get("/", h.listQueue)
		r.Get("/ws", h.streamQueue)
		r.Post("/{id}/retry", h.retry)
		r.Delete("/{id}", h.discard)
	})
	r.Post("/sync", h.syncNow)
	r.Get("/forms/{id}/pending-count", h.pendingCount)
	r.Get("/forms/{id}/pending-count/ws", h.streamPendingCount)
}

func (h *Handler) listQueue(w http.ResponseWriter, r *http.Request) {
	subs, err := h.queue.List(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": subs})
}

func (h *Handler) retry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.queue.Retry(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	if h.scheduler != nil {
		h.scheduler.ScheduleSync()
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "status": queue.StatusPending})
}

func (h *Handler) discard(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Discard(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// syncNow runs one pass and waits for it.
func (h *Handler) syncNow(w http.ResponseWriter, r *http.Request) {
	report, err := h.passer.SyncPending(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) pendingCount(w http.ResponseWriter, r *http.Request) {
	formID := chi.URLParam(r, "id")
	n, err := h.queue.CountPendingByForm(r.Context(), formID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"formId": formID, "count": n})
}

// streamQueue sends the whole queue as one JSON array on connect and after
// every change.
func (h *Handler) streamQueue(w http.ResponseWriter, r *http.Request) {
	conn, ctx, ok := h.accept(w, r)
	if !ok {
		return
	}
	defer conn.CloseNow()

	for subs := range h.queue.ObserveAll(ctx) {
		if err := wsjson.Write(ctx, conn, subs); err != nil {
			h.logClosed(err)
			return
		}
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func (h *Handler) streamPendingCount(w http.ResponseWriter, r *http.Request) {
	formID := chi.URLParam(r, "id")
	conn, ctx, ok := h.accept(w, r)
	if !ok {
		return
	}
	defer conn.CloseNow()

	for n := range h.queue.ObservePendingCount(ctx, formID) {
		if err := wsjson.Write(ctx, conn, map[string]any{"formId": formID, "count": n}); err != nil {
			h.logClosed(err)
			return
		}
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

// accept upgrades the request. The returned context ends when the peer goes
// away; the stream is write-only.
func (h *Handler) accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, context.Context, bool) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		h.logger.Warn("websocket accept", zap.Error(err))
		return nil, nil, false
	}
	return conn, conn.CloseRead(r.Context()), true
}

func (h *Handler) logClosed(err error) {
	if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
		h.logger.Debug("queue stream closed", zap.Error(err))
		return
	}
	h.logger.Warn("queue stream write", zap.Error(err))
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, queue.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "submission not found")
	case errors.Is(err, queue.ErrNotEligible):
		writeError(w, http.StatusConflict, "NOT_ELIGIBLE", "only failed submissions can be retried or discarded")
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "CANCELLED", "request cancelled")
	default:
		h.logger.Error("agent request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}
