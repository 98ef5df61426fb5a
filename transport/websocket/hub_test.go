package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/fading-tictactoe-backend/internal/apperror"
	"github.com/rocketscienceinc/fading-tictactoe-backend/internal/entity"
)

type stubMatches map[string]*entity.Match

func (that stubMatches) GetMatch(_ context.Context, code string) (*entity.Match, error) {
	match, ok := that[code]
	if !ok {
		return nil, apperror.ErrNotFound
	}

	return match, nil
}

type matchGetterFunc func(ctx context.Context, code string) (*entity.Match, error)

func (that matchGetterFunc) GetMatch(ctx context.Context, code string) (*entity.Match, error) {
	return that(ctx, code)
}

func withVersion(match *entity.Match, version int64) *entity.Match {
	versioned := *match
	versioned.Version = version

	return &versioned
}

func newTestHub(t *testing.T, matches matchGetter) (*Hub, string, context.CancelFunc) {
	t.Helper()

	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), matches, []string{"*"})

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, strings.TrimPrefix(r.URL.Path, "/ws/"))
	}))

	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/", cancel
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))

	return msg
}

func TestHub_ServeWS(t *testing.T) {
	t.Run("Sends the current state on subscribe and then every update", func(t *testing.T) {
		// Given: a stored match and a running hub
		match := entity.NewMatch("ABC123", "alice@example.com")
		hub, url, _ := newTestHub(t, stubMatches{"ABC123": match})

		conn, _, err := websocket.DefaultDialer.Dial(url+"ABC123", nil)
		require.NoError(t, err)
		defer conn.Close()

		// When: the subscriber connects
		snapshot := readMessage(t, conn)

		// Then: the current state arrives first
		assert.Equal(t, EventMatchState, snapshot.Event)
		assert.Equal(t, "ABC123", snapshot.Match.Code)
		assert.Equal(t, entity.StatusWaiting, snapshot.Match.Status)

		// When: a joined state is published
		joined := *match
		require.NoError(t, joined.Join("bob@example.com"))
		hub.Publish(&joined)

		// Then: the subscriber receives the update
		update := readMessage(t, conn)
		assert.Equal(t, EventMatchUpdate, update.Event)
		assert.Equal(t, entity.StatusPlaying, update.Match.Status)
		assert.Equal(t, "bob@example.com", update.Match.PlayerO)
	})

	t.Run("Rejects unknown match codes before upgrading", func(t *testing.T) {
		// Given: a hub with no matches
		_, url, _ := newTestHub(t, stubMatches{})

		// When: subscribing to an unknown code
		conn, resp, err := websocket.DefaultDialer.Dial(url+"NOPE00", nil)

		// Then: the handshake fails with 404
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		assert.Nil(t, conn)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("Closes subscribers when the hub stops", func(t *testing.T) {
		// Given: a connected subscriber
		_, url, cancel := newTestHub(t, stubMatches{"ABC123": entity.NewMatch("ABC123", "alice@example.com")})

		conn, _, err := websocket.DefaultDialer.Dial(url+"ABC123", nil)
		require.NoError(t, err)
		defer conn.Close()

		readMessage(t, conn)

		// When: the hub is stopped
		cancel()

		// Then: the connection is closed normally
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, _, err = conn.ReadMessage()
		assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
	})

	t.Run("Update committed while subscribing is not lost", func(t *testing.T) {
		// Given: a store whose first read races with a join
		waiting := entity.NewMatch("ABC123", "alice@example.com")
		joined := *waiting
		require.NoError(t, joined.Join("bob@example.com"))

		var hub *Hub
		reads := 0
		hub, url, _ := newTestHub(t, matchGetterFunc(func(_ context.Context, _ string) (*entity.Match, error) {
			reads++
			if reads == 1 {
				hub.Publish(&joined)
				return waiting, nil
			}

			return &joined, nil
		}))

		// When: the subscriber connects
		conn, _, err := websocket.DefaultDialer.Dial(url+"ABC123", nil)
		require.NoError(t, err)
		defer conn.Close()

		// Then: the first state it sees already has the join
		first := readMessage(t, conn)
		assert.Equal(t, entity.StatusPlaying, first.Match.Status)
		assert.Equal(t, joined.Version, first.Match.Version)

		// And: no older state follows
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
		_, _, err = conn.ReadMessage()
		require.Error(t, err)
		var netErr interface{ Timeout() bool }
		require.ErrorAs(t, err, &netErr)
		assert.True(t, netErr.Timeout())
	})

	t.Run("Updates older than the snapshot are skipped", func(t *testing.T) {
		// Given: a subscriber that received version 3
		match := entity.NewMatch("ABC123", "alice@example.com")
		hub, url, _ := newTestHub(t, stubMatches{"ABC123": withVersion(match, 3)})

		conn, _, err := websocket.DefaultDialer.Dial(url+"ABC123", nil)
		require.NoError(t, err)
		defer conn.Close()

		snapshot := readMessage(t, conn)
		require.Equal(t, int64(3), snapshot.Match.Version)

		// When: a late version 2 arrives before version 4
		hub.Publish(withVersion(match, 2))
		hub.Publish(withVersion(match, 4))

		// Then: only version 4 is delivered
		update := readMessage(t, conn)
		assert.Equal(t, EventMatchUpdate, update.Event)
		assert.Equal(t, int64(4), update.Match.Version)
	})
}

func TestHub_Publish(t *testing.T) {
	t.Run("Does not block after the hub has stopped", func(t *testing.T) {
		// Given: a hub whose Run has returned
		hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), stubMatches{}, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		hub.Run(ctx)

		// When: more updates than the buffer holds are published
		done := make(chan struct{})
		go func() {
			for range broadcastBufferSize + 1 {
				hub.Publish(entity.NewMatch("ABC123", "alice@example.com"))
			}
			close(done)
		}()

		// Then: publishing completes
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("Publish blocked on a stopped hub")
		}
	})
}

func TestHub_broadcastMatch(t *testing.T) {
	t.Run("Drops subscribers whose buffer is full", func(t *testing.T) {
		// Given: one subscriber with a full buffer and one with room
		hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), stubMatches{}, nil)

		slow := &subscriber{hub: hub, code: "ABC123", send: make(chan []byte, 1)}
		slow.send <- []byte("pending")
		fast := &subscriber{hub: hub, code: "ABC123", send: make(chan []byte, 1)}

		hub.registerSubscriber(slow)
		hub.registerSubscriber(fast)

		// When: an update is broadcast
		hub.broadcastMatch(entity.NewMatch("ABC123", "alice@example.com"))

		// Then: the slow one is dropped and the fast one receives the update
		assert.NotContains(t, hub.subscribers["ABC123"], slow)
		assert.Contains(t, hub.subscribers["ABC123"], fast)
		assert.Len(t, fast.send, 1)
	})

	t.Run("Skips repeated and older versions", func(t *testing.T) {
		// Given: a subscriber that already got version 2
		hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), stubMatches{}, nil)
		sub := &subscriber{hub: hub, code: "ABC123", send: make(chan []byte, 4)}
		hub.registerSubscriber(sub)

		match := entity.NewMatch("ABC123", "alice@example.com")
		hub.broadcastMatch(withVersion(match, 2))
		require.Len(t, sub.send, 1)

		// When: the same and an older version are broadcast
		hub.broadcastMatch(withVersion(match, 2))
		hub.broadcastMatch(withVersion(match, 1))

		// Then: nothing new is queued
		assert.Len(t, sub.send, 1)
		assert.Equal(t, int64(2), sub.lastVersion)
	})

	t.Run("Ignores codes without subscribers", func(t *testing.T) {
		// Given: an empty hub
		hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), stubMatches{}, nil)

		// When / Then: broadcasting is a no-op
		assert.NotPanics(t, func() {
			hub.broadcastMatch(entity.NewMatch("ABC123", "alice@example.com"))
		})
		assert.Empty(t, hub.subscribers)
	})
}

func TestHub_sendSnapshot(t *testing.T) {
	t.Run("Skips a snapshot older than a delivered update", func(t *testing.T) {
		// Given: a subscriber registered before its snapshot and already updated to version 2
		hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), stubMatches{}, nil)
		sub := &subscriber{hub: hub, code: "ABC123", send: make(chan []byte, 4)}
		hub.registerSubscriber(sub)

		match := entity.NewMatch("ABC123", "alice@example.com")
		hub.broadcastMatch(withVersion(match, 2))

		// When: the version 1 snapshot is sent
		hub.sendSnapshot(sub, withVersion(match, 1))

		// Then: only the update is queued
		require.Len(t, sub.send, 1)

		var msg Message
		require.NoError(t, json.Unmarshal(<-sub.send, &msg))
		assert.Equal(t, EventMatchUpdate, msg.Event)
		assert.Equal(t, int64(2), msg.Match.Version)
	})

	t.Run("Sends the snapshot when nothing newer was delivered", func(t *testing.T) {
		// Given: a fresh subscriber
		hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), stubMatches{}, nil)
		sub := &subscriber{hub: hub, code: "ABC123", send: make(chan []byte, 4)}
		hub.registerSubscriber(sub)

		// When: the snapshot is sent
		hub.sendSnapshot(sub, entity.NewMatch("ABC123", "alice@example.com"))

		// Then: it is queued as the state event
		require.Len(t, sub.send, 1)

		var msg Message
		require.NoError(t, json.Unmarshal(<-sub.send, &msg))
		assert.Equal(t, EventMatchState, msg.Event)
		assert.Equal(t, int64(1), sub.lastVersion)
	})

	t.Run("Ignores subscribers that already left", func(t *testing.T) {
		// Given: a subscriber that was never registered
		hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), stubMatches{}, nil)
		sub := &subscriber{hub: hub, code: "ABC123", send: make(chan []byte, 1)}

		// When: its snapshot is sent
		hub.sendSnapshot(sub, entity.NewMatch("ABC123", "alice@example.com"))

		// Then: nothing is queued
		assert.Empty(t, sub.send)
	})
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{name: "no origin header", allowed: nil, origin: "", want: true},
		{name: "wildcard", allowed: []string{"*"}, origin: "https://evil.example", want: true},
		{name: "listed origin", allowed: []string{"https://play.example"}, origin: "https://play.example", want: true},
		{name: "unlisted origin", allowed: []string{"https://play.example"}, origin: "https://evil.example", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws/ABC123", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}

			assert.Equal(t, tt.want, checkOrigin(tt.allowed)(req))
		})
	}
}
