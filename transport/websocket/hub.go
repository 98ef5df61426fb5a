package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/fading-tictactoe-backend/internal/apperror"
	"github.com/rocketscienceinc/fading-tictactoe-backend/internal/entity"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512

	sendBufferSize      = 16
	broadcastBufferSize = 64
)

const (
	EventMatchState  = "match:state"
	EventMatchUpdate = "match:update"
)

type matchGetter interface {
	GetMatch(ctx context.Context, code string) (*entity.Match, error)
}

type Message struct {
	Event string        `json:"event"`
	Match *entity.Match `json:"match"`
}

type subscriber struct {
	hub  *Hub
	conn *websocket.Conn
	code string
	send chan []byte

	// lastVersion is owned by Run.
	lastVersion int64
}

type snapshot struct {
	sub   *subscriber
	match *entity.Match
}

// Hub fans committed match states out to the sockets subscribed to each match code.
type Hub struct {
	logger   *slog.Logger
	matches  matchGetter
	upgrader websocket.Upgrader

	subscribers map[string]map[*subscriber]struct{}

	register   chan *subscriber
	unregister chan *subscriber
	snapshots  chan snapshot
	broadcast  chan *entity.Match
	done       chan struct{}
}

func NewHub(logger *slog.Logger, matches matchGetter, allowOrigins []string) *Hub {
	return &Hub{
		logger:  logger.With("component", "websocket_hub"),
		matches: matches,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowOrigins),
		},

		subscribers: make(map[string]map[*subscriber]struct{}),

		register:   make(chan *subscriber),
		unregister: make(chan *subscriber),
		snapshots:  make(chan snapshot),
		broadcast:  make(chan *entity.Match, broadcastBufferSize),
		done:       make(chan struct{}),
	}
}

func checkOrigin(allowOrigins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowOrigins, "*") {
			return true
		}

		return slices.Contains(allowOrigins, origin)
	}
}

// Run owns the subscriber sets until ctx is cancelled, then closes every subscriber.
func (that *Hub) Run(ctx context.Context) {
	defer close(that.done)

	for {
		select {
		case sub := <-that.register:
			that.registerSubscriber(sub)

		case sub := <-that.unregister:
			that.unregisterSubscriber(sub)

		case snap := <-that.snapshots:
			that.sendSnapshot(snap.sub, snap.match)

		case match := <-that.broadcast:
			that.broadcastMatch(match)

		case <-ctx.Done():
			for _, subs := range that.subscribers {
				for sub := range subs {
					that.unregisterSubscriber(sub)
				}
			}

			that.logger.Info("websocket hub stopped")

			return
		}
	}
}

// Publish queues a committed match state for its subscribers. It returns immediately once the hub has stopped.
func (that *Hub) Publish(match *entity.Match) {
	select {
	case that.broadcast <- match:
	case <-that.done:
	}
}

// ServeWS upgrades the request and subscribes it to code, sending the current state first.
// The subscriber is registered before the state is read so no committed update falls in between.
func (that *Hub) ServeWS(w http.ResponseWriter, r *http.Request, code string) {
	log := that.logger.With("method", "ServeWS", "code", code)

	match, err := that.matches.GetMatch(r.Context(), code)
	if errors.Is(err, apperror.ErrNotFound) {
		http.Error(w, apperror.ErrNotFound.Error(), http.StatusNotFound)
		return
	}

	if err != nil {
		log.Error("failed to get match", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	conn, err := that.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "error", err)
		return
	}

	sub := &subscriber{
		hub:  that,
		conn: conn,
		code: code,
		send: make(chan []byte, sendBufferSize),
	}

	select {
	case that.register <- sub:
	case <-that.done:
		conn.Close()
		return
	}

	if latest, err := that.matches.GetMatch(r.Context(), code); err != nil {
		log.Warn("failed to refresh match, sending the first read", "error", err)
	} else {
		match = latest
	}

	select {
	case that.snapshots <- snapshot{sub: sub, match: match}:
	case <-that.done:
		conn.Close()
		return
	}

	go sub.writePump()
	go sub.readPump()
}

func (that *Hub) registerSubscriber(sub *subscriber) {
	if that.subscribers[sub.code] == nil {
		that.subscribers[sub.code] = make(map[*subscriber]struct{})
	}

	that.subscribers[sub.code][sub] = struct{}{}

	that.logger.Debug("subscriber registered", "code", sub.code, "total", len(that.subscribers[sub.code]))
}

func (that *Hub) unregisterSubscriber(sub *subscriber) {
	subs, ok := that.subscribers[sub.code]
	if !ok {
		return
	}

	if _, ok = subs[sub]; !ok {
		return
	}

	delete(subs, sub)
	close(sub.send)

	if len(subs) == 0 {
		delete(that.subscribers, sub.code)
	}

	that.logger.Debug("subscriber unregistered", "code", sub.code, "remaining", len(subs))
}

func (that *Hub) broadcastMatch(match *entity.Match) {
	subs, ok := that.subscribers[match.Code]
	if !ok {
		return
	}

	data, err := json.Marshal(Message{Event: EventMatchUpdate, Match: match})
	if err != nil {
		that.logger.Error("failed to marshal match update", "code", match.Code, "error", err)
		return
	}

	for sub := range subs {
		that.deliver(sub, match.Version, data)
	}
}

func (that *Hub) sendSnapshot(sub *subscriber, match *entity.Match) {
	if _, ok := that.subscribers[sub.code][sub]; !ok {
		return
	}

	data, err := json.Marshal(Message{Event: EventMatchState, Match: match})
	if err != nil {
		that.logger.Error("failed to marshal match", "code", sub.code, "error", err)
		that.unregisterSubscriber(sub)
		return
	}

	that.deliver(sub, match.Version, data)
}

// deliver skips states not newer than the last one the subscriber got and drops subscribers that fall behind.
func (that *Hub) deliver(sub *subscriber, version int64, data []byte) {
	if version <= sub.lastVersion {
		that.logger.Debug("skipping stale match state", "code", sub.code, "version", version, "last_version", sub.lastVersion)
		return
	}

	select {
	case sub.send <- data:
		sub.lastVersion = version
	default:
		that.logger.Warn("dropping slow subscriber", "code", sub.code)
		that.unregisterSubscriber(sub)
	}
}

// readPump only services control frames; subscribers are read-only.
func (that *subscriber) readPump() {
	defer func() {
		select {
		case that.hub.unregister <- that:
		case <-that.hub.done:
		}

		that.conn.Close()
	}()

	that.conn.SetReadLimit(maxMessageSize)
	_ = that.conn.SetReadDeadline(time.Now().Add(pongWait))
	that.conn.SetPongHandler(func(string) error {
		return that.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := that.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				that.hub.logger.Warn("websocket read failed", "code", that.code, "error", err)
			}

			return
		}
	}
}

func (that *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		that.conn.Close()
	}()

	for {
		select {
		case message, ok := <-that.send:
			_ = that.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = that.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := that.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = that.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := that.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
