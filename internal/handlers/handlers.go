package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"frameworks/lookout/internal/alarm"
	"frameworks/lookout/internal/realtime"
	"frameworks/lookout/internal/store"
	"frameworks/lookout/pkg/api/lookout"
	"frameworks/lookout/pkg/clients/monitor"
	"frameworks/lookout/pkg/logging"
	"frameworks/lookout/pkg/middleware"
	"frameworks/lookout/pkg/version"
)

const ackTimeout = 10 * time.Second

// Engine is the part of *alarm.Engine the control surface drives.
type Engine interface {
	Configure(enabled bool)
	Enabled() bool
	TestSpeak() bool
	ResetSuppression() int
	Stats() alarm.Stats
}

// Connection is the part of *realtime.Client reported on /status.
type Connection interface {
	State() realtime.State
	URL() string
	NextDelay() time.Duration
}

// Acknowledger forwards alert acknowledgements upstream. *store.Loader
// satisfies it.
type Acknowledger interface {
	Acknowledge(ctx context.Context, alertID int64) (lookout.AckResponse, error)
}

// MessageStats reports realtime traffic. *dispatch.Dispatcher satisfies it.
type MessageStats interface {
	Counts() map[string]int
	LastMessage() time.Time
}

// Deps wires LookoutHandlers.
type Deps struct {
	Engine        Engine
	Connection    Connection
	Channels      *store.Channels
	Alerts        *store.Alerts
	Acknowledger  Acknowledger
	Messages      MessageStats
	History       *alarm.History
	SpeechBackend string
	Logger        logging.Logger
}

// LookoutHandlers contains the operator HTTP handlers
type LookoutHandlers struct {
	Deps
	startTime time.Time
}

func NewLookoutHandlers(deps Deps) *LookoutHandlers {
	return &LookoutHandlers{Deps: deps, startTime: time.Now()}
}

// Register mounts the operator routes on r.
func (h *LookoutHandlers) Register(r gin.IRouter) {
	r.GET("/status", h.HandleStatus)
	r.GET("/channels", h.HandleChannels)
	r.GET("/overview", h.HandleOverview)
	r.GET("/alerts", h.HandleAlerts)
	r.POST("/alerts/:id/ack", h.HandleAck)
	r.PUT("/speech", h.HandleSpeechToggle)
	r.POST("/speech/test", h.HandleSpeechTest)
	r.POST("/suppression/reset", h.HandleSuppressionReset)
}

// HandleStatus reports engine, speech and connection state
func (h *LookoutHandlers) HandleStatus(c *gin.Context) {
	stats := h.Engine.Stats()

	resp := lookout.StatusResponse{
		Service: "lookout",
		Version: version.Version,
		Uptime:  time.Since(h.startTime).Round(time.Second).String(),
		Speech: lookout.SpeechStatus{
			Enabled:   stats.Enabled,
			Available: stats.SpeechAvailable,
			Backend:   h.SpeechBackend,
		},
		Suppression: lookout.SuppressionStatus{
			Entries:       stats.SuppressionSize,
			Pending:       stats.Pending,
			DebounceArmed: stats.DebounceArmed,
			Emitted:       stats.NotificationsOut,
		},
		Channels:      h.Channels.Len(),
		ActiveAlerts:  len(h.Alerts.Active()),
		Notifications: []lookout.NotificationView{},
	}

	if h.Connection != nil {
		state := h.Connection.State()
		resp.Realtime = lookout.RealtimeStatus{
			URL:       h.Connection.URL(),
			State:     state.String(),
			Connected: state == realtime.StateOpen,
			NextDelay: h.Connection.NextDelay().String(),
		}
	}
	if h.Messages != nil {
		resp.Realtime.Messages = h.Messages.Counts()
		if last := h.Messages.LastMessage(); !last.IsZero() {
			resp.Realtime.LastMessage = &last
		}
	}
	if h.History != nil {
		for _, n := range h.History.Recent(10) {
			resp.Notifications = append(resp.Notifications, notificationView(n))
		}
	}

	c.JSON(http.StatusOK, resp)
}

func notificationView(n alarm.Notification) lookout.NotificationView {
	channels := make([]string, 0, len(n.Events))
	for _, ev := range n.Events {
		channels = append(channels, ev.ChannelID)
	}
	return lookout.NotificationView{
		ID:       n.ID,
		Kind:     string(n.Kind),
		Text:     n.Text,
		Channels: channels,
		At:       n.At,
	}
}

// HandleChannels lists channels in display order
func (h *LookoutHandlers) HandleChannels(c *gin.Context) {
	c.JSON(http.StatusOK, h.Channels.List())
}

// HandleOverview counts channels by status
func (h *LookoutHandlers) HandleOverview(c *gin.Context) {
	c.JSON(http.StatusOK, h.Channels.Overview())
}

// HandleAlerts lists alerts newest first, optionally filtered by ?status=
func (h *LookoutHandlers) HandleAlerts(c *gin.Context) {
	status := c.Query("status")
	switch status {
	case "", lookout.AlertStatusActive, lookout.AlertStatusResolved, lookout.AlertStatusAcknowledged:
	default:
		c.JSON(http.StatusBadRequest, lookout.ErrorResponse{Error: "unknown alert status " + strconv.Quote(status)})
		return
	}

	alerts := h.Alerts.List(status)
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil && limit > 0 && limit < len(alerts) {
		alerts = alerts[:limit]
	}
	c.JSON(http.StatusOK, alerts)
}

// HandleAck acknowledges an alert upstream and locally
func (h *LookoutHandlers) HandleAck(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, lookout.ErrorResponse{Error: "invalid alert id"})
		return
	}
	if h.Acknowledger == nil {
		c.JSON(http.StatusServiceUnavailable, lookout.ErrorResponse{Error: "acknowledgement not configured"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), ackTimeout)
	defer cancel()

	resp, err := h.Acknowledger.Acknowledge(ctx, id)
	if err != nil {
		middleware.GetContextLogger(c, h.Logger).WithError(err).WithField("alert_id", id).Warn("Alert acknowledge failed")
		var apiErr *monitor.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			c.JSON(http.StatusNotFound, lookout.ErrorResponse{Error: store.ErrAlertNotFound.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, lookout.ErrorResponse{Error: "upstream acknowledge failed"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleSpeechToggle is the master mute
func (h *LookoutHandlers) HandleSpeechToggle(c *gin.Context) {
	var req lookout.SpeechToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		c.JSON(http.StatusBadRequest, lookout.ErrorResponse{Error: `body must be {"enabled": true|false}`})
		return
	}
	h.Engine.Configure(*req.Enabled)
	c.JSON(http.StatusOK, lookout.SpeechToggleResponse{Enabled: h.Engine.Enabled()})
}

// HandleSpeechTest speaks the self-test phrase
func (h *LookoutHandlers) HandleSpeechTest(c *gin.Context) {
	spoken := h.Engine.TestSpeak()
	c.JSON(http.StatusOK, lookout.SpeechTestResponse{Spoken: spoken, Text: alarm.TestPhrase})
}

// HandleSuppressionReset forgets every suppression entry
func (h *LookoutHandlers) HandleSuppressionReset(c *gin.Context) {
	cleared := h.Engine.ResetSuppression()
	middleware.GetContextLogger(c, h.Logger).WithField("cleared", cleared).Info("Suppression reset by operator")
	c.JSON(http.StatusOK, gin.H{"cleared": cleared})
}

// HandleNotFound handles 404 errors
func (h *LookoutHandlers) HandleNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, lookout.ErrorResponse{Error: "not found: " + c.Request.URL.Path})
}
