package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/contrib/v3/websocket"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"github.com/seuros/haven/internal/logging"
	"github.com/seuros/haven/internal/tenant"
)

const (
	originLocalsKey  = "ws_origin"
	currentLocalsKey = "ws_current_origin"
	hostLocalsKey    = "ws_host"
)

// Hub tracks live site sessions and fans out organization changes to them.
type Hub struct {
	resolver      *tenant.Resolver
	trustedOrigin string

	register    chan *Client
	unregister  chan *Client
	broadcast   chan []byte
	changed     chan string
	clientCount chan chan int // For thread-safe client count queries
	clients     map[*Client]struct{}
}

type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	Close() error
}

// Client is one websocket connection and its site session.
type Client struct {
	hub    *Hub
	conn   wsConn
	send   chan []byte
	site   *SiteSession
	origin string

	quit     chan struct{}
	stopOnce sync.Once
}

func newClient(h *Hub, conn wsConn, site *SiteSession, origin string) *Client {
	return &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 64),
		site:   site,
		origin: origin,
		quit:   make(chan struct{}),
	}
}

// stop ends the write loop. send is never closed so late navigation results can
// always be offered safely.
func (c *Client) stop() {
	c.stopOnce.Do(func() { close(c.quit) })
}

// enqueue offers msg without blocking. Messages for a stopped or saturated client are
// dropped.
func (c *Client) enqueue(msg []byte) bool {
	select {
	case <-c.quit:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

type pingTicker interface {
	C() <-chan time.Time
	Stop()
}

type realPingTicker struct {
	*time.Ticker
}

func (t *realPingTicker) C() <-chan time.Time {
	return t.Ticker.C
}

var pingTickerFactory = func() pingTicker {
	return &realPingTicker{time.NewTicker(30 * time.Second)}
}

// NewHub starts a hub. trustedOrigin is the admin portal origin allowed to push
// branding previews in addition to a page's own origin.
func NewHub(resolver *tenant.Resolver, trustedOrigin string) *Hub {
	h := &Hub{
		resolver:      resolver,
		trustedOrigin: trustedOrigin,
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		broadcast:     make(chan []byte, 512),
		changed:       make(chan string, 64),
		clientCount:   make(chan chan int),
		clients:       make(map[*Client]struct{}),
	}

	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = struct{}{}
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.stop()
				_ = client.conn.Close()
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				if !client.enqueue(message) {
					client.stop()
					delete(h.clients, client)
				}
			}
		case slug := <-h.changed:
			msg := encode(OrgChangedMessage{Type: TypeOrgChanged, Slug: slug})
			for client := range h.clients {
				client.enqueue(msg)
				if client.site != nil && client.site.Showing(slug) {
					go client.refresh()
				}
			}
		case response := <-h.clientCount:
			response <- len(h.clients)
		}
	}
}

func (h *Hub) Broadcast(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		logging.L().Warn("dropping realtime payload", zap.String("reason", "slow consumers"))
	}
}

// OrgChanged notifies every session and re-resolves the ones showing slug.
func (h *Hub) OrgChanged(slug string) {
	select {
	case h.changed <- slug:
	default:
		logging.L().Warn("dropping organization change", zap.String("slug", slug))
	}
}

// GetClientCount returns the number of connected clients in a thread-safe manner
func (h *Hub) GetClientCount() int {
	response := make(chan int)
	h.clientCount <- response
	return <-response
}

// Upgrade captures what the session needs from the HTTP request before the protocol
// switch, and rejects plain HTTP requests.
func (h *Hub) Upgrade() fiber.Handler {
	return func(c fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		c.Locals(originLocalsKey, c.Get(fiber.HeaderOrigin))
		c.Locals(currentLocalsKey, c.Scheme()+"://"+c.Host())
		c.Locals(hostLocalsKey, c.Hostname())
		return c.Next()
	}
}

// Handler serves /ws/site. Mount it after Upgrade.
func (h *Hub) Handler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		origin, _ := conn.Locals(originLocalsKey).(string)
		current, _ := conn.Locals(currentLocalsKey).(string)
		host, _ := conn.Locals(hostLocalsKey).(string)

		site := NewSiteSession(h.resolver, host, current, h.trustedOrigin)
		client := newClient(h, conn, site, origin)

		h.register <- client

		go client.writePump()
		client.readPump()
	})
}

func (c *Client) readPump() {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		if c.site != nil {
			c.site.Close()
		}
		c.hub.unregister <- c
	}()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		if c.site != nil {
			c.site.Handle(ctx, c.origin, payload, c.reply)
		}
	}
}

func (c *Client) reply(msg any) {
	if !c.enqueue(encode(msg)) {
		logging.L().Debug("dropping site session reply")
	}
}

func (c *Client) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c.site.Refresh(ctx, c.reply)
}

func (c *Client) writePump() {
	ticker := pingTickerFactory()
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.quit:
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C():
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
