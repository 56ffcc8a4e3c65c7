package services

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"stocksignal-backend/services/signals"
)

// Service configuration
const (
	MaxWebSocketClients   = 100
	WebSocketWriteTimeout = 10 * time.Second
	WebSocketPongTimeout  = 60 * time.Second
	WebSocketPingInterval = 30 * time.Second
)

// WebSocketMessage is the envelope broadcast to clients
type WebSocketMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
	Time string      `json:"time"`
}

// Client is one connected WebSocket subscriber. An empty subscription set
// means "all symbols".
type Client struct {
	conn       *websocket.Conn
	send       chan []byte
	subscribed map[string]bool
	mu         sync.RWMutex
}

func (c *Client) wants(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.subscribed) == 0 {
		return true
	}
	return c.subscribed[symbol]
}

// subscribeRequest is the only inbound message shape clients send
type subscribeRequest struct {
	Action  string   `json:"action"` // subscribe, unsubscribe
	Symbols []string `json:"symbols"`
}

// RealtimeSignalService pushes freshly computed signals to WebSocket clients
type RealtimeSignalService struct {
	clients    map[*Client]bool
	broadcast  chan WebSocketMessage
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	isRunning  bool
	stopChan   chan struct{}
}

// Global realtime service
var GlobalRealtimeService *RealtimeSignalService

// InitRealtimeSignalService initializes the realtime signal hub and starts it
func InitRealtimeSignalService() error {
	GlobalRealtimeService = &RealtimeSignalService{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan WebSocketMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	go GlobalRealtimeService.run()
	GlobalRealtimeService.isRunning = true

	log.Println("Realtime signal service initialized")
	return nil
}

// run is the hub loop: registration, unregistration, fan-out
func (s *RealtimeSignalService) run() {
	for {
		select {
		case client := <-s.register:
			s.mu.Lock()
			if len(s.clients) >= MaxWebSocketClients {
				s.mu.Unlock()
				client.conn.Close()
				continue
			}
			s.clients[client] = true
			s.mu.Unlock()
			log.Printf("WebSocket client connected (%d total)", s.clientCount())

		case client := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				close(client.send)
			}
			s.mu.Unlock()

		case msg := <-s.broadcast:
			payload, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			symbol, _ := msg.Data.(*signals.SignalResponse)

			s.mu.RLock()
			for client := range s.clients {
				if symbol != nil && !client.wants(symbol.Symbol) {
					continue
				}
				select {
				case client.send <- payload:
				default:
					// Slow client: drop the message rather than block the hub
				}
			}
			s.mu.RUnlock()

		case <-s.stopChan:
			return
		}
	}
}

func (s *RealtimeSignalService) clientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// PublishSignal implements signals.Publisher: every fresh computation is
// pushed to subscribed clients.
func (s *RealtimeSignalService) PublishSignal(resp *signals.SignalResponse) {
	if s == nil || !s.isRunning {
		return
	}

	msg := WebSocketMessage{
		Type: "signal",
		Data: resp,
		Time: time.Now().Format(time.RFC3339),
	}

	select {
	case s.broadcast <- msg:
	default:
		log.Println("Realtime broadcast buffer full, dropping signal update")
	}
}

// HandleConnection upgrades an HTTP request into a signal subscription
func (s *RealtimeSignalService) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		conn:       conn,
		send:       make(chan []byte, 64),
		subscribed: make(map[string]bool),
	}

	s.register <- client

	go client.writePump()
	go client.readPump(s)
}

// readPump consumes subscribe/unsubscribe requests until the client goes away
func (c *Client) readPump(s *RealtimeSignalService) {
	defer func() {
		s.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(WebSocketPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(WebSocketPongTimeout))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var req subscribeRequest
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}

		c.mu.Lock()
		switch req.Action {
		case "subscribe":
			for _, sym := range req.Symbols {
				c.subscribed[sym] = true
			}
		case "unsubscribe":
			for _, sym := range req.Symbols {
				delete(c.subscribed, sym)
			}
		}
		c.mu.Unlock()
	}
}

// writePump flushes outbound messages and keeps the connection alive
func (c *Client) writePump() {
	ticker := time.NewTicker(WebSocketPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(WebSocketWriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(WebSocketWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Stop shuts the hub down and disconnects all clients
func (s *RealtimeSignalService) Stop() {
	if s == nil || !s.isRunning {
		return
	}
	close(s.stopChan)
	s.isRunning = false

	s.mu.Lock()
	for client := range s.clients {
		client.conn.Close()
	}
	s.clients = make(map[*Client]bool)
	s.mu.Unlock()
}
