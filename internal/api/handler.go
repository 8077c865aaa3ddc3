package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-passbot/internal/auth"
	"ms-passbot/internal/logger"
	"ms-passbot/internal/models"
	"ms-passbot/internal/sse"
	"ms-passbot/internal/utils"
)

const heartbeatInterval = 25 * time.Second

type DoorAdmin interface {
	CheckCode(ctx context.Context, code string) (models.CheckIn, error)
	Events(ctx context.Context) ([]models.Event, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	Admin    DoorAdmin
	DB       Pinger
	CheckIns *sse.CheckInEmitter
	Logger   *logger.Logger
}

func NewHandler(admin DoorAdmin, db Pinger, checkIns *sse.CheckInEmitter, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{Admin: admin, DB: db, CheckIns: checkIns, Logger: log}
}

type eventView struct {
	Date         string `json:"date"`
	MaxCapacity  int    `json:"max_capacity"`
	CurrentCount int    `json:"current_count"`
	Available    int    `json:"available"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.DB.Ping(r.Context()); err != nil {
		h.Logger.Error("HTTP", fmt.Sprintf("health check: %v", err))
		utils.WriteJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("database unavailable", err.Error()))
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", nil))
}

// ListEvents is the capacity report of upcoming events.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Admin.Events(r.Context())
	if err != nil {
		h.Logger.Error("HTTP", fmt.Sprintf("list events: %v", err))
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("failed to list events", err.Error()))
		return
	}

	views := make([]eventView, 0, len(events))
	for _, e := range events {
		views = append(views, eventView{
			Date:         e.Date,
			MaxCapacity:  e.MaxCapacity,
			CurrentCount: e.CurrentCount,
			Available:    e.Available(),
		})
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("events", views))
}

// Checkin is the door check: the ticket is consumed when valid.
func (h *Handler) Checkin(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("code is required", ""))
		return
	}

	check, err := h.Admin.CheckCode(r.Context(), code)
	switch {
	case errors.Is(err, models.ErrAmbiguousCode):
		utils.WriteJSON(w, http.StatusConflict, utils.ErrorResponse("code prefix matches several tickets", err.Error()))
		return
	case err != nil:
		h.Logger.Error("HTTP", fmt.Sprintf("check code: %v", err))
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("check failed", err.Error()))
		return
	}

	h.Logger.Info("CHECKIN", fmt.Sprintf("scanner %d: %s", auth.AdminID(r.Context()), check.Result))

	resp := utils.SuccessResponse(string(check.Result), check)
	resp.Success = check.Result == models.CheckValid
	utils.WriteJSON(w, checkStatus(check.Result), resp)
}

func checkStatus(result models.CheckResult) int {
	switch result {
	case models.CheckValid:
		return http.StatusOK
	case models.CheckAlreadyUsed:
		return http.StatusConflict
	case models.CheckUnpaid:
		return http.StatusPaymentRequired
	default:
		return http.StatusNotFound
	}
}

// StreamCheckins pushes every door check for one date as server-sent events.
func (h *Handler) StreamCheckins(w http.ResponseWriter, r *http.Request) {
	date, err := utils.NormalizeDate(chi.URLParam(r, "date"))
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	setupSSEHeaders(w)
	ctx := r.Context()
	checkIns := h.CheckIns.Subscribe(ctx, date)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"date\":\"%s\"}\n\n", date)
	flusher.Flush()
	h.Logger.Info("SSE", fmt.Sprintf("scanner %d watching %s", auth.AdminID(ctx), date))

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case check, ok := <-checkIns:
			if !ok {
				return
			}
			data, err := json.Marshal(check)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("marshal check-in: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: checkin\ndata: %s\n\n", data)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("scanner left %s", date))
			return
		}
	}
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
