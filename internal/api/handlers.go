package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/casalink/inboxd/internal/bus"
	"github.com/casalink/inboxd/internal/inbox"
	"github.com/casalink/inboxd/internal/model"
	"github.com/casalink/inboxd/internal/status"
)

// Inbox is the conversation surface the handlers expose. Implemented by the
// refresh scheduler.
type Inbox interface {
	Snapshot() model.Snapshot
	State() model.RefreshState
	Trigger(ctx context.Context, force bool) bool
	LastError() error
}

// NotificationRouter resolves inbound notification events.
type NotificationRouter interface {
	Route(ctx context.Context, evt model.NotificationEvent) (model.RouteOutcome, error)
}

// Handlers wires the daemon's HTTP API.
type Handlers struct {
	inbox   Inbox
	router  NotificationRouter
	machine *status.Machine
	bus     *bus.Bus
	logger  *zap.Logger
	profile string
	started time.Time
}

// NewHandlers creates the API handler set.
func NewHandlers(ibx Inbox, router NotificationRouter, machine *status.Machine, b *bus.Bus, profile string, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		inbox:   ibx,
		router:  router,
		machine: machine,
		bus:     b,
		logger:  logger,
		profile: profile,
		started: time.Now(),
	}
}

// Register installs all routes on the engine.
func (h *Handlers) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)

	v1 := r.Group("/v1")
	v1.GET("/conversations", h.listConversations)
	v1.GET("/conversations/search", h.searchConversations)
	v1.POST("/refresh", h.refresh)
	v1.POST("/notifications", h.routeNotification)
	v1.GET("/events", h.streamEvents)
	v1.GET("/status", h.daemonStatus)
}

// PreviewResponse is the JSON shape of a last-message preview.
type PreviewResponse struct {
	Text            string `json:"text"`
	TimestampUnixMs int64  `json:"timestamp_unix_ms"`
	Read            bool   `json:"read"`
	FromMe          bool   `json:"from_me"`
	HasAttachment   bool   `json:"has_attachment"`
}

// ConversationResponse is one entry of the assembled list.
type ConversationResponse struct {
	ConnectionID string           `json:"connection_id"`
	PeerUserID   string           `json:"peer_user_id"`
	DisplayName  string           `json:"display_name"`
	AvatarURL    string           `json:"avatar_url,omitempty"`
	Role         string           `json:"role,omitempty"`
	IsOnline     bool             `json:"is_online"`
	Unread       bool             `json:"unread"`
	Preview      *PreviewResponse `json:"preview,omitempty"`
}

// ListResponse is the assembled conversation list plus snapshot metadata.
type ListResponse struct {
	Generation      uint64                 `json:"generation"`
	FetchedAtUnixMs int64                  `json:"fetched_at_unix_ms"`
	UnreadTotal     int                    `json:"unread_total"`
	State           string                 `json:"state"`
	Conversations   []ConversationResponse `json:"conversations"`
}

// ErrorResponse carries a user-visible error.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *Handlers) health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (h *Handlers) listConversations(c *gin.Context) {
	snap := h.inbox.Snapshot()
	c.JSON(http.StatusOK, h.listResponse(snap, snap.Entries))
}

func (h *Handlers) searchConversations(c *gin.Context) {
	snap := h.inbox.Snapshot()
	entries := inbox.Filter(snap.Entries, c.Query("q"))
	c.JSON(http.StatusOK, h.listResponse(snap, entries))
}

func (h *Handlers) listResponse(snap model.Snapshot, entries []model.ConversationEntry) ListResponse {
	resp := ListResponse{
		Generation:      snap.Generation,
		FetchedAtUnixMs: snap.FetchedAt,
		UnreadTotal:     inbox.UnreadTotal(entries),
		State:           string(h.machine.Current()),
		Conversations:   make([]ConversationResponse, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Conversations = append(resp.Conversations, entryToResponse(e))
	}
	return resp
}

func entryToResponse(e model.ConversationEntry) ConversationResponse {
	r := ConversationResponse{
		ConnectionID: e.Connection.ID,
		PeerUserID:   e.Connection.Peer.UserID,
		DisplayName:  e.Connection.Peer.DisplayName,
		AvatarURL:    e.Connection.Peer.AvatarURL,
		Role:         string(e.Connection.Peer.Role),
		IsOnline:     e.Connection.Peer.IsOnline,
		Unread:       e.Unread(),
	}
	if e.Preview != nil {
		r.Preview = &PreviewResponse{
			Text:            e.Preview.Text,
			TimestampUnixMs: e.Preview.Timestamp,
			Read:            e.Preview.Read,
			FromMe:          e.Preview.FromMe,
			HasAttachment:   e.Preview.HasAttachment,
		}
	}
	return r
}

// RefreshRequest is the body for POST /v1/refresh.
type RefreshRequest struct {
	Force bool `json:"force"`
}

func (h *Handlers) refresh(c *gin.Context) {
	var req RefreshRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			return
		}
	}
	// The refresh outlives this request; don't tie it to the request context.
	started := h.inbox.Trigger(context.Background(), req.Force)
	c.JSON(http.StatusAccepted, gin.H{"started": started})
}

// RouteResponse is the outcome for POST /v1/notifications.
type RouteResponse struct {
	Decision     string                `json:"decision"`
	Conversation *ConversationResponse `json:"conversation,omitempty"`
	Subject      any                   `json:"subject,omitempty"`
}

func (h *Handlers) routeNotification(c *gin.Context) {
	var evt model.NotificationEvent
	if err := c.ShouldBindJSON(&evt); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid notification event"})
		return
	}
	if evt.Kind == "" || evt.SubjectID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "kind and subject_id are required"})
		return
	}

	outcome, err := h.router.Route(c.Request.Context(), evt)
	if err != nil {
		h.logger.Warn("notification routing failed", zap.String("event_id", evt.ID), zap.Error(err))
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "could not resolve notification subject"})
		return
	}

	resp := RouteResponse{Decision: string(outcome.Decision), Subject: outcome.Subject}
	if outcome.Entry != nil {
		cr := entryToResponse(*outcome.Entry)
		resp.Conversation = &cr
	}
	c.JSON(http.StatusOK, resp)
}

// EventEnvelope is one server-sent event on /v1/events.
type EventEnvelope struct {
	EventID          string `json:"event_id"`
	Profile          string `json:"profile"`
	Kind             string `json:"kind"`
	OccurredAtUnixMs int64  `json:"occurred_at_unix_ms"`
}

func (h *Handlers) streamEvents(c *gin.Context) {
	ch, unsub := h.bus.Subscribe("", 256)
	defer unsub()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")

	c.Stream(func(_ io.Writer) bool {
		select {
		case evt := <-ch:
			c.SSEvent("message", EventEnvelope{
				EventID:          uuid.New().String(),
				Profile:          h.profile,
				Kind:             evt.Kind,
				OccurredAtUnixMs: evt.Timestamp.UnixMilli(),
			})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// StatusResponse reports daemon state for inboxctl and debugging.
type StatusResponse struct {
	Profile           string `json:"profile"`
	State             string `json:"state"`
	UptimeMs          int64  `json:"uptime_ms"`
	InFlight          bool   `json:"in_flight"`
	LastSuccessUnixMs int64  `json:"last_success_unix_ms"`
	Generation        uint64 `json:"generation"`
	UnreadTotal       int    `json:"unread_total"`
	LastRefreshError  string `json:"last_refresh_error,omitempty"`
}

func (h *Handlers) daemonStatus(c *gin.Context) {
	snap := h.inbox.Snapshot()
	state := h.inbox.State()
	resp := StatusResponse{
		Profile:           h.profile,
		State:             string(h.machine.Current()),
		UptimeMs:          time.Since(h.started).Milliseconds(),
		InFlight:          state.InFlight,
		LastSuccessUnixMs: state.LastSuccessMillis,
		Generation:        snap.Generation,
		UnreadTotal:       snap.UnreadTotal,
	}
	if err := h.inbox.LastError(); err != nil {
		resp.LastRefreshError = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}
