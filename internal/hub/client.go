package hub

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"snipchat/internal/event"
	"snipchat/internal/model"
	viewsync "snipchat/internal/sync"
)

var (
	// tuning parameters
	writeWait         = 10 * time.Second    // time allowed to write a message to the peer
	pongWait          = 20 * time.Second    // time allowed to read the next pong message from the peer
	pingInterval      = (pongWait * 9) / 10 // send pings to peer with this period
	maxMessageSize    = 64 * 1024           // max inbound message size (64KB)
	sendBufSize       = 256                 // per-connection outbound buffer size
	sendTimeout       = 2 * time.Second     // timeout for enqueuing outbound messages
	registerTimeout   = 5 * time.Second     // timeout for client registration
	unregisterTimeout = 5 * time.Second     // timeout for client unregistration
)

// Client is one websocket connection for one authenticated user. It owns
// the view that keeps this connection's state in sync and acts as the
// view's pusher.
type Client struct {
	ID     string
	user   model.User
	conn   *websocket.Conn
	hub    *Hub
	view   *viewsync.View
	egress chan event.WsEvent
	logger *zap.Logger

	cancel         context.CancelFunc
	ctx            context.Context
	once           sync.Once
	connClosed     chan struct{}
	connClosedOnce sync.Once
	closed         bool
	closedMu       sync.RWMutex
}

// RegisterClient wires a new connection into the hub and starts its view
// and pump goroutines. Returns nil when registration times out.
func RegisterClient(user model.User, conn *websocket.Conn, h *Hub) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	clientID := uuid.New().String()

	client := &Client{
		ID:         clientID,
		user:       user,
		conn:       conn,
		hub:        h,
		egress:     make(chan event.WsEvent, sendBufSize),
		logger:     h.logger.With(zap.String("clientId", clientID), zap.String("userId", user.ID)),
		cancel:     cancel,
		ctx:        ctx,
		connClosed: make(chan struct{}),
	}

	client.view = viewsync.NewView(user, h.changes, h.stores, client, h.logger)
	client.view.OnSessionEnd(func() {
		select {
		case h.unregister <- client:
		case <-time.After(unregisterTimeout):
			client.Close()
		}
	})

	select {
	case h.register <- client:
		client.view.Start(ctx)
		go client.ReadMessages()
		go client.WriteMessages()
		client.logger.Info("client registered")
		return client
	case <-time.After(registerTimeout):
		client.logger.Warn("failed to register client: timeout")
		cancel()
		conn.Close()
		return nil
	}
}

func (c *Client) ReadMessages() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-time.After(unregisterTimeout):
			c.logger.Warn("failed to unregister client: timeout")
		}
		c.Close()
	}()

	c.conn.SetReadLimit(int64(maxMessageSize))
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(c.pongHandler)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			var ev event.WsEvent
			if err := c.conn.ReadJSON(&ev); err != nil {
				if websocket.IsCloseError(err,
					websocket.CloseNormalClosure,
					websocket.CloseGoingAway,
					websocket.CloseAbnormalClosure,
				) {
					c.logger.Info("client disconnected")
					return
				}

				if websocket.IsUnexpectedCloseError(err,
					websocket.CloseInternalServerErr,
					websocket.CloseProtocolError,
				) {
					c.logger.Warn("unexpected close", zap.Error(err))
				}

				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					c.logger.Info("client timed out, closing connection")
					return
				}

				c.logger.Warn("error reading from client", zap.Error(err))
				return
			}

			// The view's intent buffer is non-blocking; the read pump never
			// stalls behind a slow loop.
			c.view.HandleIntent(ev)
		}
	}
}

func (c *Client) WriteMessages() {
	ticker := time.NewTicker(pingInterval)

	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.conn.Close()

		c.connClosedOnce.Do(func() {
			close(c.connClosed)
		})
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		case ev, ok := <-c.egress:
			if !ok {
				if err := c.conn.WriteMessage(websocket.CloseMessage, nil); err != nil {
					c.logger.Debug("connection closed", zap.Error(err))
				}
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.logger.Warn("write error", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Debug("ping error", zap.Error(err))
				return
			}
		}
	}
}

func (c *Client) pongHandler(string) error {
	return c.conn.SetReadDeadline(time.Now().Add(pongWait))
}

// Push implements the view's pusher. A connection whose egress stays full
// past the send timeout is disconnected rather than allowed to wedge the
// view loop.
func (c *Client) Push(name string, payload any) {
	ev, err := event.NewWsEvent(name, payload)
	if err != nil {
		c.logger.Error("failed to encode push", zap.String("event", name), zap.Error(err))
		return
	}

	if !c.SafeSend(ev, sendTimeout) {
		if c.IsClosed() {
			return
		}
		c.logger.Warn("egress full, disconnecting client", zap.String("event", name))
		select {
		case c.hub.unregister <- c:
		case <-time.After(unregisterTimeout):
			c.Close()
		}
	}
}

// SafeSend attempts to enqueue an event for the write pump. Returns false
// when the client is closed or the timeout elapses.
func (c *Client) SafeSend(ev event.WsEvent, timeout time.Duration) bool {
	if c.IsClosed() {
		return false
	}

	select {
	case <-c.ctx.Done():
		return false
	case c.egress <- ev:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (c *Client) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}

func (c *Client) Close() {
	c.once.Do(func() {
		c.closedMu.Lock()
		c.closed = true
		c.closedMu.Unlock()

		c.cancel()
		c.view.Close()
		close(c.egress)

		// Wait for the write pump to close the connection, or force it.
		go func() {
			select {
			case <-c.connClosed:
			case <-time.After(5 * time.Second):
				_ = c.conn.Close()
				c.logger.Warn("safety timeout: force closed connection")
			}
		}()
	})
}
