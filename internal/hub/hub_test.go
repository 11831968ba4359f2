package hub

import (
	"testing"

	"go.uber.org/zap"

	"snipchat/internal/event"
	"snipchat/internal/feed"
	"snipchat/internal/model"
	viewsync "snipchat/internal/sync"
)

func newTestHub() *Hub {
	h := &Hub{
		changes: feed.New(zap.NewNop()),
		logger:  zap.NewNop(),
	}
	for i := 0; i < shardCount; i++ {
		h.shards[i] = &clientBucket{
			users: make(map[string]map[string]*Client),
		}
	}
	return h
}

// testClient builds a registrable client without a live socket. connClosed
// starts closed so Close never waits on a write pump.
func testClient(h *Hub, id, userID string) *Client {
	user := model.User{ID: userID}
	connClosed := make(chan struct{})
	close(connClosed)

	c := &Client{
		ID:         id,
		user:       user,
		egress:     make(chan event.WsEvent, 1),
		logger:     zap.NewNop(),
		cancel:     func() {},
		connClosed: connClosed,
	}
	c.view = viewsync.NewView(user, h.changes, h.stores, c, zap.NewNop())
	return c
}

func TestConnectionRegistry(t *testing.T) {
	h := newTestHub()

	c1 := testClient(h, "cl1", "u1")
	c2 := testClient(h, "cl2", "u1")
	c3 := testClient(h, "cl3", "u2")
	h.addClient(c1)
	h.addClient(c2)
	h.addClient(c3)

	if !h.IsOnline("u1") || !h.IsOnline("u2") {
		t.Fatal("registered users not reported online")
	}
	if got := h.ConnectionCount("u1"); got != 2 {
		t.Fatalf("ConnectionCount(u1) = %d, want 2", got)
	}
	if got := h.ConnectionCount("ghost"); got != 0 {
		t.Fatalf("ConnectionCount(ghost) = %d, want 0", got)
	}

	h.removeClient(c1)
	if got := h.ConnectionCount("u1"); got != 1 {
		t.Fatalf("ConnectionCount(u1) after removal = %d, want 1", got)
	}

	h.removeClient(c2)
	if h.IsOnline("u1") {
		t.Fatal("user with no connections reported online")
	}
	h.removeClient(c3)
}

func TestMonitorStats(t *testing.T) {
	h := newTestHub()
	h.addClient(testClient(h, "cl1", "u1"))
	h.addClient(testClient(h, "cl2", "u1"))
	h.addClient(testClient(h, "cl3", "u2"))

	stats := NewMonitorService(h).GetStats()

	if stats.Status != "healthy" {
		t.Fatalf("status = %q, want healthy", stats.Status)
	}
	if stats.Connections.TotalConnections != 3 || stats.Connections.UniqueUsers != 2 {
		t.Fatalf("connection stats = %+v", stats.Connections)
	}
	for _, u := range stats.Users {
		if got := h.ConnectionCount(u.UserID); got != u.Connections {
			t.Fatalf("per-user count for %s: registry says %d, stats say %d",
				u.UserID, got, u.Connections)
		}
	}

	if idle := NewMonitorService(newTestHub()).GetStats(); idle.Status != "idle" {
		t.Fatalf("empty hub status = %q, want idle", idle.Status)
	}
}
