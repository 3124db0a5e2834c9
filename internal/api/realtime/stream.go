// Package realtime streams auction events to websocket clients.
package realtime

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/codr1/leaguebids/internal/api/apiutil"
	"github.com/codr1/leaguebids/internal/api/authz"
	"github.com/codr1/leaguebids/internal/auction"
)

const (
	pingInterval     = 30 * time.Second
	pongWait         = 60 * time.Second
	writeWait        = 10 * time.Second
	subscriberBuffer = 64
)

// Subscriber is the fan-out side of the event bus.
type Subscriber interface {
	Subscribe(buffer int) (<-chan auction.Event, func())
}

type StreamHandler struct {
	events   Subscriber
	upgrader websocket.Upgrader
}

// NewStreamHandler accepts connections from the listed origins; an empty list
// only admits same-host requests.
func NewStreamHandler(events Subscriber, allowedOrigins []string) *StreamHandler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	return &StreamHandler{
		events: events,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				if _, ok := allowed[strings.ToLower(origin)]; ok {
					return true
				}
				u, err := url.Parse(origin)
				return err == nil && strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (h *StreamHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET /api/v1/auctions/stream", h)
}

// ServeHTTP handles GET /api/v1/auctions/stream[?auction_id=].
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	auctionID := strings.TrimSpace(r.URL.Query().Get("auction_id"))
	if !apiutil.Authorize(w, r, authz.ActionViewAuctions, authz.Resource{AuctionID: auctionID}) {
		return
	}
	user := authz.UserFromContext(r.Context())
	logger := log.Ctx(r.Context()).With().
		Str("component", "auction_stream").
		Str("user_id", user.ID).
		Str("auction_id", auctionID).
		Logger()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, unsubscribe := h.events.Subscribe(subscriberBuffer)
	defer unsubscribe()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Clients only send control frames; the read loop exists to process them
	// and to notice disconnects.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	logger.Debug().Msg("Stream client connected")
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				// The bus dropped us or shut down.
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"),
					time.Now().Add(writeWait))
				return
			}
			if !visible(ev, user, auctionID) {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				logger.Debug().Err(err).Msg("Stream write failed")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-closed:
			logger.Debug().Msg("Stream client disconnected")
			return
		case <-r.Context().Done():
			return
		}
	}
}

// visible hides other teams' rejected bids from managers.
func visible(ev auction.Event, user *authz.AuthUser, auctionID string) bool {
	if auctionID != "" && ev.AuctionID != auctionID {
		return false
	}
	if ev.Type != auction.EventBidRejected || authz.HasRole(user, authz.RoleAdmin) {
		return true
	}
	return user.TeamID != nil && *user.TeamID == ev.TeamID
}
