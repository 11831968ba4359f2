package hub

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"snipchat/internal/feed"
	"snipchat/internal/metrics"
	"snipchat/internal/model"
	"snipchat/internal/repo"
	"snipchat/internal/service"
	viewsync "snipchat/internal/sync"
)

const (
	shardCount = 64 // tune: 16/64/128 depending on load
)

type clientBucket struct {
	sync.RWMutex
	users map[string]map[string]*Client
}

// Hub tracks every live websocket connection, sharded by user id. Each
// connection carries its own view; the hub's own job is registration,
// presence, and push dispatch for participants with no connection.
type Hub struct {
	shards     [shardCount]*clientBucket
	register   chan *Client
	unregister chan *Client

	changes       *feed.Feed
	stores        viewsync.Stores
	conversations repo.ConversationRepository
	notifier      *service.NotificationService
	logger        *zap.Logger

	allowedOrigins map[string]struct{}

	mu     sync.RWMutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(
	changes *feed.Feed,
	stores viewsync.Stores,
	conversations repo.ConversationRepository,
	notifier *service.NotificationService,
	origins []string,
	logger *zap.Logger,
) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		register:       make(chan *Client, 1024),
		unregister:     make(chan *Client, 1024),
		changes:        changes,
		stores:         stores,
		conversations:  conversations,
		notifier:       notifier,
		logger:         logger,
		allowedOrigins: make(map[string]struct{}, len(origins)),
		ctx:            ctx,
		cancel:         cancel,
	}

	for _, origin := range origins {
		h.allowedOrigins[origin] = struct{}{}
	}

	for i := 0; i < shardCount; i++ {
		h.shards[i] = &clientBucket{
			users: make(map[string]map[string]*Client),
		}
	}

	// run manager loop
	go h.run()

	// watch message inserts for offline push dispatch
	h.wg.Add(1)
	go h.dispatchOfflinePush()

	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		}
	}
}

func getShard(userID string) uint32 {
	if userID == "" {
		return 0
	}

	s := sha1.Sum([]byte(userID))
	return binary.BigEndian.Uint32(s[:4]) % shardCount
}

func (h *Hub) addClient(c *Client) {
	sh := getShard(c.user.ID)
	b := h.shards[sh]
	b.Lock()
	defer b.Unlock()

	clients, ok := b.users[c.user.ID]
	if !ok {
		clients = make(map[string]*Client)
		b.users[c.user.ID] = clients
	}

	clients[c.ID] = c
	metrics.ConnectedClients.Inc()
	h.logger.Info("client added",
		zap.String("clientId", c.ID),
		zap.String("userId", c.user.ID),
		zap.Uint32("shard", sh))
}

func (h *Hub) removeClient(c *Client) {
	sh := getShard(c.user.ID)
	b := h.shards[sh]
	b.Lock()
	defer b.Unlock()

	if clients, ok := b.users[c.user.ID]; ok {
		if _, exists := clients[c.ID]; exists {
			delete(clients, c.ID)
			metrics.ConnectedClients.Dec()
		}

		if len(clients) == 0 {
			delete(b.users, c.user.ID)
		}

		c.Close()
		h.logger.Info("client removed",
			zap.String("clientId", c.ID),
			zap.String("userId", c.user.ID),
			zap.Uint32("shard", sh))
	}
}

// IsOnline reports whether the user has at least one live connection.
func (h *Hub) IsOnline(userID string) bool {
	b := h.shards[getShard(userID)]
	b.RLock()
	defer b.RUnlock()
	return len(b.users[userID]) > 0
}

// ConnectionCount returns the number of live connections for a user.
func (h *Hub) ConnectionCount(userID string) int {
	b := h.shards[getShard(userID)]
	b.RLock()
	defer b.RUnlock()
	return len(b.users[userID])
}

func (h *Hub) Stop() {
	h.cancel()

	for _, shard := range h.shards {
		shard.RLock()
		for _, clients := range shard.users {
			for _, client := range clients {
				client.Close()
			}
		}
		shard.RUnlock()
	}

	h.wg.Wait()
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	_, ok := h.allowedOrigins[origin]
	return ok
}

// ServeWS upgrades an already-authenticated request to a websocket and
// registers the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, user model.User) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	RegisterClient(user, conn, h)
}
