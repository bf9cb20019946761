package realtime

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"termbridge/internal/protocol"
	"termbridge/internal/router"
	"termbridge/internal/session"
	"termbridge/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeDeadline = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // The bridge fronts a local browser client.
	},
}

// Options tunes the connection layer's sweeps and auth behavior.
type Options struct {
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	ReclaimInterval   time.Duration
	IdleTimeout       time.Duration
	AutoAuth          bool
	StaticDir         string
}

// Server accepts WebSocket connections, runs the per-connection auth state
// machine, and relays frames between clients, the session manager, and the
// routing engine.
type Server struct {
	mgr    *session.Manager
	router *router.Router
	store  *store.Store
	opts   Options

	mu      sync.RWMutex
	clients map[*client]bool
	tokens  map[string]*client // bound token → its one connection

	done chan struct{}
	once sync.Once
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	server *Server

	mu            sync.Mutex
	token         string
	authed        bool
	closed        bool
	lastHeartbeat time.Time
}

// enqueue queues a frame for the write pump, dropping it when the buffer is
// full or the client is gone. Guarding the send with the client lock keeps
// it ordered against the close in removeClient.
func (c *client) enqueue(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		// Client buffer full, drop.
	}
}

// New creates the connection layer and starts relaying session and agent
// events. Timer-driven sweeps start with Start.
func New(mgr *session.Manager, rt *router.Router, st *store.Store, opts Options) *Server {
	s := &Server{
		mgr:     mgr,
		router:  rt,
		store:   st,
		opts:    opts,
		clients: make(map[*client]bool),
		tokens:  make(map[string]*client),
		done:    make(chan struct{}),
	}
	go s.sessionEventPump()
	go s.agentEventPump()
	return s
}

// Start launches the liveness and reclamation sweeps.
func (s *Server) Start() {
	go s.heartbeatLoop()
	go s.reclaimLoop()
}

// Close stops the sweeps and disconnects every client.
func (s *Server) Close() {
	s.once.Do(func() { close(s.done) })

	s.mu.Lock()
	conns := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.conn.Close()
	}
}

// Handler returns the HTTP handler: the WebSocket endpoint, the admin REST
// surface, and optional static files.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/ws", s.handleWebSocket)
	r.Mount("/api", s.apiRouter())
	if s.opts.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.opts.StaticDir)))
	}
	return r
}

// handleWebSocket upgrades the connection and starts the pumps. In auto-auth
// mode a synthetic token is bound immediately; otherwise the client owes an
// auth frame before anything else works.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("realtime: websocket upgrade: %v", err)
		return
	}

	c := &client{
		conn:          conn,
		send:          make(chan []byte, 256),
		server:        s,
		lastHeartbeat: time.Now(),
	}

	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()

	go c.writePump()

	if s.opts.AutoAuth {
		s.bindToken(c, uuid.New().String())
	} else {
		// Initial liveness probe; the client's pong seeds the heartbeat.
		s.sendFrame(c, mustMessage(protocol.TypePing, nil))
	}

	go c.readPump()
}

// readPump reads frames until the connection dies.
func (c *client) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.conn.Close()
	}()

	deadline := 2 * c.server.opts.HeartbeatTimeout
	c.conn.SetReadDeadline(time.Now().Add(deadline))

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("realtime: websocket read: %v", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(deadline))
		c.server.handleFrame(c, raw)
	}
}

// writePump writes queued frames to the connection.
func (c *client) writePump() {
	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			c.conn.Close()
			// Drain so senders never block on a dead client.
			for range c.send {
			}
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// removeClient unregisters a connection and releases its token.
func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	if !s.clients[c] {
		s.mu.Unlock()
		return
	}
	delete(s.clients, c)
	c.mu.Lock()
	if c.authed && s.tokens[c.token] == c {
		delete(s.tokens, c.token)
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
	s.mu.Unlock()
}

// handleFrame validates and dispatches one inbound frame. Unknown kinds are
// logged and ignored; malformed frames get an error frame back.
func (s *Server) handleFrame(c *client, raw []byte) {
	msg, err := protocol.ValidateClientMessage(raw)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			log.Printf("realtime: ignoring frame: %v", err)
			return
		}
		s.sendError(c, err.Error())
		return
	}

	switch msg.Type {
	case protocol.TypeAuth:
		s.handleAuth(c, msg)
	case protocol.TypePing:
		s.sendFrame(c, mustMessage(protocol.TypePong, nil))
	case protocol.TypePong:
		c.mu.Lock()
		c.lastHeartbeat = time.Now()
		c.mu.Unlock()
	case protocol.TypeTerminalInput:
		s.requireAuth(c, func(token string) { s.handleInput(c, token, msg) })
	case protocol.TypeTerminalResize:
		s.requireAuth(c, func(token string) { s.handleResize(c, token, msg) })
	case protocol.TypeTerminalCreate:
		s.requireAuth(c, func(token string) { s.handleCreate(c, token, msg) })
	case protocol.TypeTerminalClose:
		s.requireAuth(c, func(token string) { s.handleClose(c, token, msg) })
	case protocol.TypeTerminalList:
		s.requireAuth(c, func(token string) { s.sendTerminalList(c, token) })
	}
}

// requireAuth runs fn with the bound token, or rejects the frame.
func (s *Server) requireAuth(c *client, fn func(token string)) {
	c.mu.Lock()
	authed, token := c.authed, c.token
	c.mu.Unlock()

	if !authed {
		s.sendError(c, "not authenticated")
		return
	}
	fn(token)
}

// handleAuth runs the token binding step: canonical UUID check, single
// holder check, durable record, default terminal slot, then auth_success
// followed by the terminal list.
func (s *Server) handleAuth(c *client, msg *protocol.Message) {
	c.mu.Lock()
	already := c.authed
	c.mu.Unlock()
	if already {
		s.sendAuthError(c, "already authenticated")
		return
	}

	token := msg.UUID
	if !protocol.ValidUUID(token) {
		s.sendAuthError(c, "invalid token: must be a canonical UUID")
		return
	}

	s.mu.Lock()
	if holder, inUse := s.tokens[token]; inUse && holder != c {
		s.mu.Unlock()
		s.sendAuthError(c, "token already in use by another connection")
		return
	}
	s.tokens[token] = c
	s.mu.Unlock()

	c.mu.Lock()
	c.token = token
	c.authed = true
	c.lastHeartbeat = time.Now()
	c.mu.Unlock()

	s.completeAuth(c, token)
}

// bindToken is the auto-auth path: the synthetic token is bound without a
// handshake.
func (s *Server) bindToken(c *client, token string) {
	s.mu.Lock()
	s.tokens[token] = c
	s.mu.Unlock()

	c.mu.Lock()
	c.token = token
	c.authed = true
	c.mu.Unlock()

	s.completeAuth(c, token)
}

func (s *Server) completeAuth(c *client, token string) {
	record, created, err := s.store.EnsureSession(token)
	if err != nil {
		log.Printf("realtime: session record for %s: %v", token, err)
	}
	if created {
		log.Printf("realtime: new session record for token %s", token)
	}

	if len(s.mgr.ListByToken(token)) == 0 {
		if _, err := s.mgr.Create(token, "", "Terminal 1", ""); err != nil {
			log.Printf("realtime: default terminal for %s: %v", token, err)
		}
	}

	frame, _ := protocol.NewMessage(protocol.TypeAuthSuccess, protocol.AuthSuccessData{
		UUID:      token,
		SessionID: record.ID,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
	frame.UUID = token
	s.sendFrame(c, frame)

	s.sendTerminalList(c, token)
	s.replayRecent(c, token)
}

// replayRecent re-sends the buffered output and exit events of every resident
// slot, so a client that reconnects catches up on what it missed. Fresh
// tokens have empty buffers and send nothing.
func (s *Server) replayRecent(c *client, token string) {
	for _, sess := range s.mgr.ListByToken(token) {
		for _, ev := range s.mgr.Replay(token, sess.TerminalID) {
			s.relayEvent(c, ev)
		}
	}
}

// relayEvent translates one session event into its outbound frame.
func (s *Server) relayEvent(c *client, ev session.Event) {
	switch ev.Type {
	case session.EventOutput:
		frame, _ := protocol.NewMessage(protocol.TypeTerminalOutput, ev.Data)
		frame.TerminalID = ev.TerminalID
		s.sendFrame(c, frame)
	case session.EventExit:
		frame, _ := protocol.NewMessage(protocol.TypeTerminalExit, protocol.TerminalExitData{
			ExitCode:   ev.ExitCode,
			TerminalID: ev.TerminalID,
		})
		frame.TerminalID = ev.TerminalID
		s.sendFrame(c, frame)
	}
}

func (s *Server) handleInput(c *client, token string, msg *protocol.Message) {
	var data string
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		s.sendError(c, "terminal_input: data must be a string")
		return
	}
	if !s.mgr.Write(token, msg.TerminalID, []byte(data)) {
		s.sendError(c, "no live terminal "+msg.TerminalID)
	}
}

func (s *Server) handleResize(c *client, token string, msg *protocol.Message) {
	var data protocol.TerminalResizeData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		s.sendError(c, "terminal_resize: invalid data")
		return
	}
	if !s.mgr.Resize(token, msg.TerminalID, data.Cols, data.Rows) {
		s.sendError(c, "no live terminal "+msg.TerminalID)
	}
}

func (s *Server) handleCreate(c *client, token string, msg *protocol.Message) {
	var data protocol.TerminalCreateData
	if len(msg.Data) > 0 {
		json.Unmarshal(msg.Data, &data)
	}

	sess, err := s.mgr.Create(token, msg.TerminalID, data.Name, data.Color)
	if err != nil {
		s.sendError(c, err.Error())
		return
	}

	frame, _ := protocol.NewMessage(protocol.TypeTerminalCreated, protocol.TerminalCreatedData{
		ID:         sess.ID,
		TerminalID: sess.TerminalID,
		Name:       sess.Name,
		Color:      sess.Color,
		CreatedAt:  sess.CreatedAt.Format(time.RFC3339Nano),
	})
	frame.TerminalID = sess.TerminalID
	s.sendFrame(c, frame)
}

func (s *Server) handleClose(c *client, token string, msg *protocol.Message) {
	ok := s.mgr.Terminate(token, msg.TerminalID)
	frame, _ := protocol.NewMessage(protocol.TypeTerminalClosed, protocol.TerminalClosedData{
		Success:    ok,
		TerminalID: msg.TerminalID,
	})
	frame.TerminalID = msg.TerminalID
	s.sendFrame(c, frame)
}

func (s *Server) sendTerminalList(c *client, token string) {
	sessions := s.mgr.ListByToken(token)
	infos := make([]protocol.TerminalInfo, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, protocol.TerminalInfo{
			ID:           sess.ID,
			TerminalID:   sess.TerminalID,
			Name:         sess.Name,
			Color:        sess.Color,
			IsActive:     sess.IsActive,
			CreatedAt:    sess.CreatedAt.Format(time.RFC3339Nano),
			LastActivity: sess.LastActivity.Format(time.RFC3339Nano),
		})
	}
	frame, _ := protocol.NewMessage(protocol.TypeTerminalList, protocol.TerminalListData{Terminals: infos})
	s.sendFrame(c, frame)
}

// sessionEventPump relays manager events to whichever connection holds the
// event's token. Per-slot ordering is preserved by the single pump.
func (s *Server) sessionEventPump() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.mgr.Events():
			c := s.clientForToken(ev.Token)
			if c == nil {
				continue
			}
			s.relayEvent(c, ev)
		}
	}
}

// agentEventPump relays live agent-tool chunks to the owning connection as
// terminal output for real-time display.
func (s *Server) agentEventPump() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.router.Events():
			c := s.clientForToken(ev.Token)
			if c == nil {
				continue
			}
			frame, _ := protocol.NewMessage(protocol.TypeTerminalOutput, ev.Data)
			frame.TerminalID = ev.TerminalID
			s.sendFrame(c, frame)
		}
	}
}

func (s *Server) clientForToken(token string) *client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens[token]
}

// heartbeatLoop pings every authenticated connection and force-closes any
// that has been silent past the timeout, releasing its token.
func (s *Server) heartbeatLoop() {
	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.RLock()
			conns := make([]*client, 0, len(s.clients))
			for c := range s.clients {
				conns = append(conns, c)
			}
			s.mu.RUnlock()

			for _, c := range conns {
				c.mu.Lock()
				authed := c.authed
				silent := time.Since(c.lastHeartbeat) > s.opts.HeartbeatTimeout
				c.mu.Unlock()

				if !authed {
					continue
				}
				if silent {
					log.Printf("realtime: closing silent connection (token released)")
					c.conn.Close()
					continue
				}
				s.sendFrame(c, mustMessage(protocol.TypePing, nil))
			}
		}
	}
}

// reclaimLoop delegates idle and memory-pressure reclamation to the session
// manager. Dead connections are not handled here: the read pump unregisters a
// client the moment its transport drops, and the heartbeat sweep force-closes
// silent ones.
func (s *Server) reclaimLoop() {
	ticker := time.NewTicker(s.opts.ReclaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mgr.ReapIdle(s.opts.IdleTimeout)
			s.mgr.CheckMemoryPressure()
		}
	}
}

func (s *Server) sendFrame(c *client, msg *protocol.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.enqueue(data)
}

func (s *Server) sendError(c *client, reason string) {
	frame, _ := protocol.NewErrorMessage(reason)
	s.sendFrame(c, frame)
}

func (s *Server) sendAuthError(c *client, reason string) {
	frame, _ := protocol.NewMessage(protocol.TypeAuthError, reason)
	s.sendFrame(c, frame)
}

func mustMessage(msgType string, payload interface{}) *protocol.Message {
	msg, _ := protocol.NewMessage(msgType, payload)
	return msg
}
