package server

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lab1702/broadside/engine"
	"github.com/lab1702/broadside/teams"
	"github.com/vmihailenco/msgpack/v5"
)

// isValidOrigin checks if the origin is allowed to connect
func isValidOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// No origin header - could be a non-browser client
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		log.Printf("Invalid origin URL: %s", origin)
		return false
	}

	// Allow same-origin connections
	if r.Host == originURL.Host {
		return true
	}

	// Allow localhost connections for development
	if strings.HasPrefix(originURL.Host, "localhost:") ||
		strings.HasPrefix(originURL.Host, "127.0.0.1:") ||
		originURL.Host == "localhost" ||
		originURL.Host == "127.0.0.1" {
		return true
	}

	log.Printf("Rejected WebSocket connection from origin: %s", origin)
	return false
}

var upgrader = websocket.Upgrader{
	CheckOrigin:       isValidOrigin,
	EnableCompression: true,
}

// Message types
const (
	// Client to server
	MsgTypeCreate = "create"
	MsgTypeJoin   = "join"
	MsgTypeShot   = "shot"
	MsgTypeStats  = "stats"
	MsgTypeLeave  = "leave"

	// Server to client
	MsgTypeCreated      = "created"
	MsgTypeJoined       = "joined"
	MsgTypePlayerJoined = "player_joined"
	MsgTypePlayerLeft   = "player_left"
	MsgTypeError        = "error"
)

// Connection timing
const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 54 * time.Second
	sendBuffer   = 256
	maxFrameSize = 64 * 1024
)

// ClientMessage represents a message from client to server
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ServerMessage represents a message from server to client
type ServerMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// gameMessage is a ServerMessage addressed to the members of one game
type gameMessage struct {
	gameID string
	msg    ServerMessage
}

// Client represents a connected player
type Client struct {
	ID     string
	conn   *websocket.Conn
	send   chan ServerMessage
	server *Server
	binary bool // frames are msgpack encoded

	mu     sync.RWMutex
	gameID string
	userID int
}

// Membership returns the game and user the client joined as
func (c *Client) Membership() (string, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gameID, c.userID
}

func (c *Client) setMembership(gameID string, userID int) {
	c.mu.Lock()
	c.gameID = gameID
	c.userID = userID
	c.mu.Unlock()
}

// clearMembership resets the membership and returns what it was
func (c *Client) clearMembership() (string, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	gameID, userID := c.gameID, c.userID
	c.gameID, c.userID = "", 0
	return gameID, userID
}

// Server manages client connections and routes game events
type Server struct {
	mu         sync.RWMutex
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan gameMessage
	done       chan struct{}
	stopOnce   sync.Once

	engine *engine.Engine
	teams  *teams.Store
}

// NewServer creates a new game server. The engine must be built with the
// server as its notifier, see AttachEngine.
func NewServer(ts *teams.Store) *Server {
	return &Server{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan gameMessage, sendBuffer),
		done:       make(chan struct{}),
		teams:      ts,
	}
}

// AttachEngine sets the engine used to serve game requests
func (s *Server) AttachEngine(e *engine.Engine) {
	s.engine = e
}

// Run starts the server main loop
func (s *Server) Run() {
	for {
		select {
		case client := <-s.register:
			s.mu.Lock()
			s.clients[client.ID] = client
			s.mu.Unlock()
			log.Printf("Client %s connected", client.ID)

		case client := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[client.ID]; ok {
				delete(s.clients, client.ID)
				close(client.send)
			}
			s.mu.Unlock()
			s.leaveGame(client)
			log.Printf("Client %s disconnected", client.ID)

		case gm := <-s.broadcast:
			s.mu.RLock()
			for _, client := range s.clients {
				if gameID, _ := client.Membership(); gameID != gm.gameID {
					continue
				}
				select {
				case client.send <- gm.msg:
				default:
					log.Printf("Warning: Client %s send buffer full, skipping broadcast", client.ID)
				}
			}
			s.mu.RUnlock()

		case <-s.done:
			return
		}
	}
}

// Shutdown stops the main loop and closes every client connection
func (s *Server) Shutdown() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		for id, client := range s.clients {
			delete(s.clients, id)
			close(client.send)
		}
		s.mu.Unlock()
	})
}

// Notify queues an event for every client that joined gameID
func (s *Server) Notify(gameID, event string, payload interface{}) {
	select {
	case s.broadcast <- gameMessage{gameID: gameID, msg: ServerMessage{Type: event, Data: payload}}:
	default:
		log.Printf("Warning: broadcast queue full, dropping %s for game %s", event, gameID)
	}
}

// HandleWebSocket handles WebSocket connections. Clients that connect with
// ?encoding=msgpack receive binary msgpack frames instead of JSON text.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := &Client{
		ID:     uuid.NewString(),
		conn:   conn,
		send:   make(chan ServerMessage, sendBuffer),
		server: s,
		binary: r.URL.Query().Get("encoding") == "msgpack",
	}

	select {
	case s.register <- client:
	case <-s.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump handles incoming messages from the client
func (c *Client) readPump() {
	defer func() {
		select {
		case c.server.unregister <- c:
		case <-c.server.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg ClientMessage
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		c.handleMessage(msg)
	}
}

// writePump sends messages to the client
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.writeMessage(message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) writeMessage(message ServerMessage) error {
	if !c.binary {
		return c.conn.WriteJSON(message)
	}
	frame, err := encodeMsgpack(message)
	if err != nil {
		log.Printf("msgpack encode error for client %s: %v", c.ID, err)
		return err
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// encodeMsgpack encodes a message using the json field names so binary and
// text clients see the same keys
func encodeMsgpack(message ServerMessage) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(message); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// sendMessage queues a message for this client only
func (c *Client) sendMessage(msgType string, data interface{}) {
	defer func() {
		// send may already be closed by unregister
		if r := recover(); r != nil {
			log.Printf("Dropping %s for closed client %s", msgType, c.ID)
		}
	}()

	select {
	case c.send <- ServerMessage{Type: msgType, Data: data}:
	default:
		log.Printf("Warning: Client %s send buffer full, dropping %s", c.ID, msgType)
	}
}

func (c *Client) sendError(text string) {
	c.sendMessage(MsgTypeError, map[string]interface{}{"text": text})
}

// handleMessage processes a message from the client
func (c *Client) handleMessage(msg ClientMessage) {
	// Recover from any panic to prevent disconnection
	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC in handleMessage for client %s, type %s: %v", c.ID, msg.Type, r)
		}
	}()

	switch msg.Type {
	case MsgTypeCreate:
		c.handleCreate(msg.Data)
	case MsgTypeJoin:
		c.handleJoin(msg.Data)
	case MsgTypeShot:
		c.handleShot(msg.Data)
	case MsgTypeStats:
		c.handleStats(msg.Data)
	case MsgTypeLeave:
		c.handleLeave(msg.Data)
	default:
		log.Printf("Unknown message type: %s", msg.Type)
		c.sendError("unknown message type " + msg.Type)
	}
}
