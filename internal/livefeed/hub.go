// Package livefeed streams live-session activity to admin dashboards over
// WebSocket, fanned out across server instances with Redis pub/sub.
package livefeed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/inkline/adengine/internal/models"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Feed events.
const (
	EventSessionUpdate   = "session_update"
	EventSessionArchived = "session_archived"
)

// Publisher sends an event to every instance, this one included.
type Publisher interface {
	Publish(ctx context.Context, event string, payload []byte) error
}

// Subscriber delivers events published by any instance.
type Subscriber interface {
	Subscribe(handler func(event string, payload []byte)) (cancel func(), err error)
}

// SessionSummary is the feed view of a session.
type SessionSummary struct {
	SessionID    string    `json:"sid"`
	PostID       string    `json:"post_id,omitempty"`
	Device       string    `json:"device,omitempty"`
	TimeOnPageMs int64     `json:"time_on_page_ms"`
	MaxScrollPct int       `json:"max_scroll_pct"`
	GateOpened   bool      `json:"gate_opened"`
	AdsFilled    int       `json:"ads_filled"`
	AdsViewable  int       `json:"ads_viewable"`
	UpdatedAt    time.Time `json:"updated_at"`
	Path         string    `json:"path,omitempty"`
}

func summarize(ev models.SessionEvent) SessionSummary {
	s := SessionSummary{
		SessionID:    ev.SessionID,
		PostID:       ev.PostID,
		Device:       ev.Device,
		TimeOnPageMs: ev.TimeOnPageMs,
		MaxScrollPct: ev.MaxScrollPct,
		GateOpened:   ev.GateOpened,
		UpdatedAt:    ev.UpdatedAt,
	}
	for _, z := range ev.Zones {
		if z.Filled {
			s.AdsFilled++
		}
		if z.ViewedAd() {
			s.AdsViewable++
		}
	}
	return s
}

// Hub holds the connected admin clients.
type Hub struct {
	clients     map[string]*Client
	cancel      func() // Redis subscription, while any client is connected
	subscribing bool
	mu          sync.RWMutex
	logger      *zap.Logger
	pub         Publisher
	sub         Subscriber
}

// NewHub creates a hub. pub and sub may be nil for a single instance.
func NewHub(logger *zap.Logger, pub Publisher, sub Subscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
		pub:     pub,
		sub:     sub,
	}
}

// Register adds a client and makes sure the Redis subscription is up.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("admin joined live feed", zap.String("client_id", c.ID), zap.String("email", c.Email))
	h.ensureSubscribed()
}

// ensureSubscribed subscribes while clients are connected and no subscription
// is active. A failed attempt is retried on the next call.
func (h *Hub) ensureSubscribed() {
	if h.sub == nil {
		return
	}
	h.mu.Lock()
	if h.cancel != nil || h.subscribing || len(h.clients) == 0 {
		h.mu.Unlock()
		return
	}
	h.subscribing = true
	h.mu.Unlock()

	cancel, err := h.sub.Subscribe(func(event string, payload []byte) {
		h.Broadcast(event, json.RawMessage(payload))
	})

	h.mu.Lock()
	h.subscribing = false
	if err != nil {
		h.mu.Unlock()
		h.logger.Warn("live feed subscribe failed", zap.Error(err))
		return
	}
	if len(h.clients) == 0 {
		h.mu.Unlock()
		cancel()
		return
	}
	h.cancel = cancel
	h.mu.Unlock()
}

// Unregister removes a client and drops the subscription after the last one.
func (h *Hub) Unregister(c *Client) {
	var cancel func()
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; ok {
		delete(h.clients, c.ID)
		close(c.send)
	}
	if len(h.clients) == 0 {
		cancel, h.cancel = h.cancel, nil
	}
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	h.logger.Debug("admin left live feed", zap.String("client_id", c.ID))
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a message to local clients only.
func (h *Hub) Broadcast(event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// slow client, drop
		}
	}
}

// publish goes through Redis when configured so every instance, this one
// included, broadcasts exactly once.
func (h *Hub) publish(ctx context.Context, event string, payload interface{}) {
	if h.pub == nil {
		h.Broadcast(event, payload)
		return
	}
	h.ensureSubscribed()
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := h.pub.Publish(ctx, event, data); err != nil {
		h.logger.Debug("live feed publish failed", zap.String("event", event), zap.Error(err))
	}
}

// SessionUpdated publishes a heartbeat.
func (h *Hub) SessionUpdated(ctx context.Context, ev models.SessionEvent) {
	h.publish(ctx, EventSessionUpdate, summarize(ev))
}

// SessionArchived publishes a session leaving the live index.
func (h *Hub) SessionArchived(ctx context.Context, s models.ArchivedSession) {
	sum := summarize(s.SessionEvent)
	sum.Path = s.Path
	h.publish(ctx, EventSessionArchived, sum)
}
