package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ============================================================================
// Host WebSocket bridge: hub + per-client pumps + broadcaster
// ============================================================================
//
// The host page (physics engine + rendering) connects here. Inbound frames
// are event envelopes ({type, data}) decoded into Events and queued for the
// daemon; outbound frames use {type, ts, data}.
//
//   - SimulationState stays daemon-owned; the initial state_init snapshot is
//     requested through the event loop.
//   - Displayed progress arrives from reducer broadcasts and is coalesced.
//   - physics, analytics, log_line and notice frames are sent by the effects layer.
//   - Slow clients are disconnected when their send buffer fills.
//
// ============================================================================

// wsStateSnapshot is the JSON `data` payload for "state_init".
type wsStateSnapshot struct {
	DisplayedProgress float64       `json:"displayed_progress"`
	TrueProgress      float64       `json:"true_progress"`
	Phase             string        `json:"phase"`
	Dragging          bool          `json:"dragging"`
	Physics           PhysicsOutput `json:"physics"`
	Freezes           int           `json:"freezes"`
	CompletedDrags    int           `json:"completed_drags"`
	TrackSamples      int           `json:"track_samples"`
}

// wsProgressData is the JSON `data` payload for "progress".
type wsProgressData struct {
	DisplayedProgress float64 `json:"displayed_progress"`
	Completed         bool    `json:"completed"`
}

type wsLogLineData struct {
	Line string `json:"line"`
}

type wsNoticeData struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// wsOutboundEvent is a pre-typed, externally-consumable frame.
type wsOutboundEvent struct {
	Type string
	Data any
	At   time.Time // zero means now
}

// envelope is the wire format envelope for outbound WS messages.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

func marshalOutbound(ev wsOutboundEvent) ([]byte, error) {
	ts := ev.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return json.Marshal(envelope{Type: ev.Type, Ts: &ts, Data: ev.Data})
}

// errHubBusy is returned when a frame could not be queued for broadcast.
var errHubBusy = errors.New("ws hub broadcast queue full")

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	// Buffered broadcast channel for already-serialized JSON frames.
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size. Zero selects a default.
	SendBuf int

	// BroadcastBuf is the hub inbound broadcast queue size. Zero selects a default.
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 64
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = 256
	}

	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, bcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is canceled, then disconnects all clients.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("ws hub starting")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("ws hub stopping (context canceled)")
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client registered", "client", c.id, "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			// Collect slow clients first, then remove them after we unlock.
			var slow []*Client

			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		safeCloseChan(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		// Closing send signals writePump to exit.
		safeCloseChan(c.send)

		h.logger.Info("ws client disconnected", "client", c.id, "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

func safeCloseChan(ch chan []byte) {
	defer func() {
		_ = recover() // ignore "close of closed channel"
	}()
	close(ch)
}

// BroadcastBytes enqueues a pre-serialized JSON frame for broadcast.
// It never blocks; it reports false if the hub queue is full and the frame was dropped.
func (h *Hub) BroadcastBytes(msg []byte) bool {
	select {
	case h.broadcast <- msg:
		return true
	default:
		h.logger.Warn("ws hub broadcast queue full, dropping message", "bytes", len(msg))
		return false
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte

	// Inbound events are forwarded here; nil drops them.
	events chan<- Event

	id         string
	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a client with a buffered send channel.
func NewClient(hub *Hub, conn *websocket.Conn, events chan<- Event, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := 64
	if hub != nil && hub.sendBuf > 0 {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		events:     events,
		id:         uuid.NewString(),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

const (
	writeWait = 5 * time.Second

	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second

	// Host pages send pointer and body samples at frame rate.
	maxInboundFrame = 4096
)

// wsProgressCoalesceWindow is the maximum time window during which bursty
// progress updates are coalesced (latest-wins) before broadcasting.
const wsProgressCoalesceWindow = 50 * time.Millisecond

// closeStatus extracts a websocket close code / text when possible.
func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

// writePump writes messages from the send queue to the websocket.
// It exits on write error or when send is closed.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed: hub is disconnecting us.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("writePump", "write error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", "ping error", err)
				return
			}
		}
	}
}

// readPump decodes inbound event frames and forwards them to the daemon.
// It exits on read error, then unregisters the client.
func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxInboundFrame)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.logExit("readPump", "read error", err)
			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}
		// Any inbound traffic proves liveness.
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if msgType != websocket.TextMessage {
			continue
		}
		c.forward(data)
	}
}

// forward decodes one inbound frame and queues it without blocking.
func (c *Client) forward(data []byte) {
	ev, err := UnmarshalEvent(data)
	if err != nil {
		c.logger.Warn("ws inbound frame rejected", "client", c.id, "error", err)
		return
	}
	if c.events == nil {
		return
	}
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("event queue full, dropping inbound event", "client", c.id, "type", string(data[:min(len(data), 32)]))
	}
}

func (c *Client) logExit(pump, kind string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Info("ws "+pump+" exiting (close)", "client", c.id, "code", code, "reason", text)
		return
	}
	c.logger.Info("ws "+pump+" exiting ("+kind+")", "client", c.id, "error", err)
}

// ============================================================================
// HTTP handler + effect sinks
// ============================================================================

type Server struct {
	logger *slog.Logger

	hub *Hub

	// Inbound events and the state_init snapshot request go through here.
	events chan<- Event
}

type ServerConfig struct {
	Hub HubConfig
}

// NewServer constructs the host bridge. Call Register on a mux, start
// hub.Run(ctx), and start the broadcaster loop.
func NewServer(logger *slog.Logger, events chan<- Event, cfg ServerConfig) *Server {
	return &Server{
		logger: logger,
		hub:    NewHub(logger, cfg.Hub),
		events: events,
	}
}

func (s *Server) Hub() *Hub { return s.hub }

// Register registers the WS handler on the provided mux.
func (s *Server) Register(mux *http.ServeMux, path string) {
	if mux == nil {
		return
	}
	mux.HandleFunc(path, s.handleHostWS)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleHostWS upgrades and registers a client, then sends state_init.
func (s *Server) handleHostWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, s.events, r.RemoteAddr, s.logger)

	// Register client first so broadcasts can reach it.
	s.hub.register <- client

	// The pumps must outlive the handler: net/http cancels r.Context() when it
	// returns. Their lifetime is managed by the hub and by read/write errors.
	go client.writePump(context.Background())
	go client.readPump(context.Background())

	if s.events == nil {
		return
	}

	reply := make(chan StateSnapshot, 1)
	select {
	case <-r.Context().Done():
		return
	case s.events <- RequestStateSnapshot{Reply: reply}:
	}

	waitCtx := r.Context()
	if _, has := r.Context().Deadline(); !has {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(r.Context(), 1*time.Second)
		defer cancel()
	}

	select {
	case <-waitCtx.Done():
		if !errors.Is(waitCtx.Err(), context.Canceled) {
			s.logger.Warn("ws snapshot request failed", "error", waitCtx.Err())
		}
		return

	case snap := <-reply:
		initMsg, mErr := marshalOutbound(wsOutboundEvent{Type: "state_init", Data: snapshotPayload(snap)})
		if mErr != nil {
			s.logger.Warn("ws state_init marshal failed", "error", mErr)
			return
		}
		// Enqueue init message; if client is already slow, disconnect.
		select {
		case client.send <- initMsg:
		default:
			s.hub.unregister <- client
		}
	}
}

func snapshotPayload(snap StateSnapshot) wsStateSnapshot {
	return wsStateSnapshot{
		DisplayedProgress: snap.DisplayedProgress,
		TrueProgress:      snap.TrueProgress,
		Phase:             snap.Phase.String(),
		Dragging:          snap.Dragging,
		Physics:           snap.Physics,
		Freezes:           snap.Freezes,
		CompletedDrags:    snap.CompletedDrags,
		TrackSamples:      snap.TrackSamples,
	}
}

// publish marshals and enqueues one frame for all clients.
func (s *Server) publish(typ string, data any) error {
	msg, err := marshalOutbound(wsOutboundEvent{Type: typ, Data: data})
	if err != nil {
		return err
	}
	if !s.hub.BroadcastBytes(msg) {
		return errHubBusy
	}
	return nil
}

// ApplyPhysics implements PhysicsSink.
func (s *Server) ApplyPhysics(out PhysicsOutput) error {
	return s.publish("physics", out)
}

// EmitDiagnostic implements DiagnosticSink.
func (s *Server) EmitDiagnostic(r AnalyticsReport) error {
	return s.publish("analytics", r)
}

// JournalLine implements JournalObserver.
func (s *Server) JournalLine(line string) {
	_ = s.publish("log_line", wsLogLineData{Line: line})
}

// JournalWarning implements JournalObserver.
func (s *Server) JournalWarning(message string) {
	_ = s.publish("notice", wsNoticeData{Level: "warning", Message: message})
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster reads reducer-emitted StateBroadcasts, marshals them, and
// broadcasts them to all hub clients. Intended to run as a single goroutine.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan StateBroadcast, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}

	// Flush the latest pending progress update at most once per window, even
	// if updates keep arriving (no debounce-on-silence).
	var pending *wsOutboundEvent
	var timer *time.Timer
	var timerCh <-chan time.Time

	flushPending := func() {
		if pending == nil {
			return
		}
		msg, err := marshalOutbound(*pending)
		pending = nil
		if err != nil {
			logger.Warn("ws broadcaster marshal failed", "error", err)
			return
		}
		hub.BroadcastBytes(msg)
	}

	stopTimer := func() {
		if timer != nil && !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer = nil
		timerCh = nil
	}

	startTimerIfNeeded := func() {
		if timer != nil {
			return
		}
		timer = time.NewTimer(wsProgressCoalesceWindow)
		timerCh = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			flushPending()
			stopTimer()
			return

		case <-timerCh:
			flushPending()
			timer = nil
			timerCh = nil

		case b, ok := <-src:
			if !ok {
				flushPending()
				stopTimer()
				logger.Info("ws broadcaster stopping (source ended)")
				return
			}

			ev, ok := convertBroadcast(b)
			if !ok {
				continue
			}

			if ev.Type == "progress" {
				copyEv := ev
				pending = &copyEv
				startTimerIfNeeded()
				continue
			}

			flushPending()
			stopTimer()

			msg, err := marshalOutbound(ev)
			if err != nil {
				logger.Warn("ws broadcaster marshal failed", "error", err, "type", ev.Type)
				continue
			}
			hub.BroadcastBytes(msg)
		}
	}
}

func convertBroadcast(b StateBroadcast) (wsOutboundEvent, bool) {
	switch ev := b.(type) {
	case BroadcastProgressChanged:
		return wsOutboundEvent{
			Type: "progress",
			Data: wsProgressData{DisplayedProgress: ev.Displayed, Completed: ev.Completed},
			At:   ev.At,
		}, true

	default:
		return wsOutboundEvent{}, false
	}
}
