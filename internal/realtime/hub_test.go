package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/arenahub/pkg/metrics"
)

func startHub(t *testing.T, hub *Hub, allowed map[string]struct{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user")
		streams := strings.Split(r.URL.Query().Get("streams"), ",")
		hub.Serve(userID, streams, allowed, w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, user, streams string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user + "&streams=" + streams
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ready := readMessage(t, conn)
	require.Equal(t, "ready", ready.Event)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func waitForConnections(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.ConnectionCount() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcastToUserReachesOnlyThatUser(t *testing.T) {
	hub := NewHub(Options{})
	srv := startHub(t, hub, nil)

	alice := dial(t, srv, "alice", StreamNotifications)
	bob := dial(t, srv, "bob", StreamNotifications)
	waitForConnections(t, hub, 2)

	hub.BroadcastToUser(StreamNotifications, "alice", Message{Event: "notification.created", Data: "hi"})

	msg := readMessage(t, alice)
	require.Equal(t, StreamNotifications, msg.Stream)
	require.Equal(t, "notification.created", msg.Event)
	require.Equal(t, "hi", msg.Data)

	hub.BroadcastToUsers(StreamNotifications, []string{"bob", "bob"}, Message{Event: "second"})
	require.Equal(t, "second", readMessage(t, bob).Event)
}

func TestBroadcastStreamAndControlMessages(t *testing.T) {
	hub := NewHub(Options{})
	srv := startHub(t, hub, nil)

	conn := dial(t, srv, "carol", "")
	waitForConnections(t, hub, 1)

	require.NoError(t, conn.WriteJSON(controlMessage{Action: "subscribe", Streams: []string{"Challenges"}}))
	subscribed := readMessage(t, conn)
	require.Equal(t, "subscribed", subscribed.Event)

	hub.BroadcastStream(StreamChallenges, Message{Event: "challenge.created"})
	require.Equal(t, "challenge.created", readMessage(t, conn).Event)

	require.NoError(t, conn.WriteJSON(controlMessage{Action: "ping"}))
	require.Equal(t, "pong", readMessage(t, conn).Event)

	require.NoError(t, conn.WriteJSON(controlMessage{Action: "unsubscribe", Streams: []string{StreamChallenges}}))
	require.Equal(t, "unsubscribed", readMessage(t, conn).Event)

	require.NoError(t, conn.WriteJSON(controlMessage{Action: "dance"}))
	require.Equal(t, "error", readMessage(t, conn).Event)
}

func TestDisallowedStreamsAreIgnored(t *testing.T) {
	hub := NewHub(Options{})
	srv := startHub(t, hub, map[string]struct{}{StreamNotifications: {}})

	conn := dial(t, srv, "dave", StreamChallenges+","+StreamNotifications)
	waitForConnections(t, hub, 1)

	hub.BroadcastStream(StreamChallenges, Message{Event: "hidden"})
	hub.BroadcastToUser(StreamNotifications, "dave", Message{Event: "visible"})
	require.Equal(t, "visible", readMessage(t, conn).Event)
}

func TestCloseDisconnectsClients(t *testing.T) {
	hub := NewHub(Options{})
	srv := startHub(t, hub, nil)

	dial(t, srv, "erin", StreamNotifications)
	waitForConnections(t, hub, 1)

	hub.Close()
	waitForConnections(t, hub, 0)
}

func TestSlowConsumerIsDropped(t *testing.T) {
	hub := NewHub(Options{BufferSize: 2})
	srv := startHub(t, hub, nil)

	// The client never reads after the ready frame, so socket buffers fill up.
	dial(t, srv, "slow", StreamNotifications)
	waitForConnections(t, hub, 1)

	dropped := promtestutil.ToFloat64(metrics.RealtimeDropped)
	payload := strings.Repeat("x", 1<<20)

	require.Eventually(t, func() bool {
		hub.BroadcastToUser(StreamNotifications, "slow", Message{Event: "flood", Data: payload})
		return hub.ConnectionCount() == 0
	}, 10*time.Second, 5*time.Millisecond)

	require.Zero(t, hub.ConnectionCount())
	require.Greater(t, promtestutil.ToFloat64(metrics.RealtimeDropped), dropped)

	// Further broadcasts to the dropped user are no-ops.
	hub.BroadcastToUser(StreamNotifications, "slow", Message{Event: "after"})
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	require.Empty(t, hub.subscriptions[StreamNotifications])
}

func TestSubscribeAfterUnregisterIsIgnored(t *testing.T) {
	hub := NewHub(Options{})
	client := &connection{
		hub:     hub,
		userID:  "gone",
		streams: make(map[string]struct{}),
		send:    make(chan Message, 1),
		done:    make(chan struct{}),
	}

	hub.mu.Lock()
	hub.connections[client] = struct{}{}
	hub.mu.Unlock()
	metrics.RealtimeConnections.Inc()

	hub.subscribe(client, []string{StreamNotifications})
	hub.unregister(client)
	close(client.done)

	// A subscribe control frame racing the close must not resurrect the entry.
	hub.subscribe(client, []string{StreamTeams, StreamNotifications})

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	require.Empty(t, hub.subscriptions)
	require.Empty(t, client.streams)
	require.Zero(t, len(hub.connections))
}

func TestOriginAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://arena.example.com/api/realtime", nil)
	require.True(t, originAllowed(req, nil))

	req.Header.Set("Origin", "https://arena.example.com")
	require.True(t, originAllowed(req, nil))

	req.Header.Set("Origin", "http://localhost:5173")
	require.True(t, originAllowed(req, nil))

	req.Header.Set("Origin", "https://evil.example.net")
	require.False(t, originAllowed(req, nil))
	require.True(t, originAllowed(req, map[string]struct{}{"https://evil.example.net": {}}))
	require.True(t, originAllowed(req, map[string]struct{}{"*": {}}))
}
