package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shaunagostinho/xr25-dash/internal/ecu"
	"github.com/shaunagostinho/xr25-dash/internal/logger"
	"github.com/shaunagostinho/xr25-dash/internal/sample"
)

// Server polls the decoded frame sinks and broadcasts them to WebSocket
// clients. It never mutates pipeline state.
type Server struct {
	cfg      *Config
	syncer   *ecu.Synchronizer
	latest   *sample.Latest
	channels sample.Channels
	registry *ecu.Registry
	decoder  string
	webFS    fs.FS
	logger   *logger.Logger

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader
}

// Deps are the pipeline parts the server reads from.
type Deps struct {
	Sync     *ecu.Synchronizer
	Latest   *sample.Latest
	Channels sample.Channels
	Registry *ecu.Registry
	Decoder  string
	Logger   *logger.Logger // optional, toggled by config updates
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Message is the JSON structure sent to all WebSocket clients.
type Message struct {
	Frame    *FrameView               `json:"frame,omitempty"`
	Samples  map[string]sample.Sample `json:"samples,omitempty"`
	Stats    *ecu.Stats               `json:"stats,omitempty"`
	Config   *DisplayConfig           `json:"config,omitempty"`
	Channels []*sample.Channel        `json:"channels,omitempty"`
	Decoder  string                   `json:"decoder,omitempty"`
	Stamp    int64                    `json:"stamp"` // Unix ms
}

// FrameView is a decoded frame with its flag bits spelled out.
type FrameView struct {
	ecu.Frame
	Known    []string `json:"known"`
	InNames  []string `json:"inNames"`
	OutNames []string `json:"outNames"`
	Faults   []string `json:"faults"`
	At       int64    `json:"at"` // capture time, Unix ms
}

func newFrameView(f ecu.Frame, at time.Time) *FrameView {
	v := &FrameView{
		Frame:  f,
		Known:  f.Known.Names(),
		Faults: f.FaultNames(),
		At:     at.UnixMilli(),
	}
	if f.Has(ecu.FieldInFlags) {
		v.InNames = f.InFlags.Names()
	}
	if f.Has(ecu.FieldOutFlags) {
		v.OutNames = f.OutFlags.Names()
	}
	return v
}

// New creates a new Server.
func New(cfg *Config, deps Deps, webFS fs.FS) *Server {
	return &Server{
		cfg:      cfg,
		syncer:   deps.Sync,
		latest:   deps.Latest,
		channels: deps.Channels,
		registry: deps.Registry,
		decoder:  deps.Decoder,
		webFS:    webFS,
		logger:   deps.Logger,
		clients:  make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Serve embedded web files
	if s.webFS != nil {
		mux.Handle("/", http.FileServer(http.FS(s.webFS)))
	}

	// WebSocket endpoint
	mux.HandleFunc("/ws", s.handleWS)

	// JSON API
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/decoders", s.handleDecoders)
	return mux
}

// Run starts the HTTP server and the broadcast loops. It returns nil once
// ctx is cancelled and the server has shut down.
func (s *Server) Run(ctx context.Context) error {
	settings := s.cfg.Snapshot()
	go s.pollLoop(ctx, settings.Display)

	srv := &http.Server{
		Addr:    settings.Server.ListenAddr,
		Handler: s.routes(),
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Printf("[server] listening on %s", settings.Server.ListenAddr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	n := len(s.clients)
	s.clientsMu.Unlock()

	log.Printf("[ws] client connected (%d total)", n)

	// Send display config, channel layout and current stats
	display := s.cfg.Snapshot().Display
	stats := s.syncer.Stats()
	hello := Message{
		Config:   &display,
		Channels: s.channels,
		Decoder:  s.decoder,
		Stats:    &stats,
		Stamp:    time.Now().UnixMilli(),
	}
	if data, err := json.Marshal(hello); err == nil {
		client.send <- data
	}

	// Writer goroutine
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader goroutine (handle incoming messages / keep-alive)
	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			n := len(s.clients)
			s.clientsMu.Unlock()
			close(client.send)
			log.Printf("[ws] client disconnected (%d total)", n)
		}()
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				break
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[server] encode response: %v", err)
	}
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		data, err := s.cfg.ToJSON()
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)

	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", 400)
			return
		}
		if err := s.cfg.UpdateFromJSON(body); err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		if err := s.cfg.Save(); err != nil {
			log.Printf("[config] save failed: %v", err)
		}
		settings := s.cfg.Snapshot()
		if s.logger != nil {
			s.logger.SetEnabled(settings.Logging.Enabled)
		}
		// Broadcast updated display config
		s.broadcast(Message{Config: &settings.Display, Stamp: time.Now().UnixMilli()})

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))

	default:
		http.Error(w, "method not allowed", 405)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", 405)
		return
	}
	writeJSON(w, s.syncer.Stats())
}

// handleHistory serves /api/history?channel=NAME[&n=COUNT], newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("channel")
	c := s.channels.Lookup(name)
	if c == nil {
		http.Error(w, "unknown channel", 404)
		return
	}
	n := 0
	if v := r.URL.Query().Get("n"); v != "" {
		var err error
		if n, err = strconv.Atoi(v); err != nil || n < 0 {
			http.Error(w, "bad n", 400)
			return
		}
	}
	writeJSON(w, struct {
		Channel *sample.Channel `json:"channel"`
		Samples []sample.Sample `json:"samples"`
	}{c, c.History().Snapshot(n)})
}

func (s *Server) handleDecoders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, struct {
		Decoders []string `json:"decoders"`
		Active   string   `json:"active"`
	}{s.registry.Names(), s.decoder})
}

// pollLoop reads the latest frame and the channel histories at the page
// rate and the synchronizer stats at the header rate.
func (s *Server) pollLoop(ctx context.Context, display DisplayConfig) {
	pageHz, headerHz := display.PageHz, display.HeaderHz
	if pageHz <= 0 {
		pageHz = 16
	}
	if headerHz <= 0 {
		headerHz = 1
	}
	pageTicker := time.NewTicker(time.Second / time.Duration(pageHz))
	headerTicker := time.NewTicker(time.Second / time.Duration(headerHz))
	defer pageTicker.Stop()
	defer headerTicker.Stop()

	var lastAt time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-pageTicker.C:
			if msg, at, ok := s.pageMessage(lastAt); ok {
				lastAt = at
				s.broadcast(msg)
			}
		case <-headerTicker.C:
			stats := s.syncer.Stats()
			s.broadcast(Message{Stats: &stats, Stamp: time.Now().UnixMilli()})
		}
	}
}

// pageMessage builds a frame update if a frame newer than since exists.
func (s *Server) pageMessage(since time.Time) (Message, time.Time, bool) {
	f, at, ok := s.latest.Get()
	if !ok || !at.After(since) {
		return Message{}, since, false
	}
	msg := Message{
		Frame: newFrameView(f, at),
		Stamp: time.Now().UnixMilli(),
	}
	for _, c := range s.channels {
		if !c.History().Changed() {
			continue
		}
		if msg.Samples == nil {
			msg.Samples = make(map[string]sample.Sample)
		}
		msg.Samples[c.Name] = c.History().At(0)
	}
	return msg, at, true
}

func (s *Server) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// Client too slow, skip
		}
	}
}
