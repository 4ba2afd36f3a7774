package reader

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/FocuswithJustin/versestream/core/canon"
	"github.com/FocuswithJustin/versestream/core/errors"
	"github.com/FocuswithJustin/versestream/core/scripture"
	"github.com/FocuswithJustin/versestream/core/stream"
	"github.com/FocuswithJustin/versestream/internal/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	sendBuffer = 16
)

// UnavailableMessage is shown to a reader whose translation cannot be loaded.
const UnavailableMessage = "this Bible translation is currently unavailable"

// Session operations.
const (
	OpInit  = "init"
	OpNext  = "next"
	OpPrev  = "prev"
	OpReset = "reset"
	OpJump  = "jump"
)

// Response types.
const (
	TypeWelcome = "welcome"
	TypeItems   = "items"
	TypeError   = "error"
)

// Command is a client message on /read.
type Command struct {
	Op          string `json:"op"`
	Translation string `json:"translation,omitempty"`
	Book        int    `json:"book,omitempty"`
	Chapter     int    `json:"chapter,omitempty"`
	Ref         string `json:"ref,omitempty"`
}

// Response is a server message on /read. Items is the whole flattened window
// after the command.
type Response struct {
	Type        string             `json:"type"`
	Session     string             `json:"session,omitempty"`
	Op          string             `json:"op,omitempty"`
	Translation string             `json:"translation,omitempty"`
	Items       []stream.Item      `json:"items,omitempty"`
	Window      *stream.Bounds     `json:"window,omitempty"`
	Focus       *stream.ChapterKey `json:"focus,omitempty"`
	Loaded      int                `json:"loaded,omitempty"`
	Index       *int               `json:"index,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// Hub tracks open sessions and closes them on shutdown.
type Hub struct {
	sessions   map[*Session]bool
	register   chan *Session
	unregister chan *Session
	done       chan struct{}
	mu         sync.RWMutex
	gauge      prometheus.Gauge
}

func newHub(m *Metrics) *Hub {
	return &Hub{
		sessions:   make(map[*Session]bool),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		done:       make(chan struct{}),
		gauge:      m.sessions,
	}
}

func (h *Hub) run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case s := <-h.register:
			h.mu.Lock()
			h.sessions[s] = true
			h.mu.Unlock()
			h.gauge.Inc()

		case s := <-h.unregister:
			h.mu.Lock()
			if h.sessions[s] {
				delete(h.sessions, s)
				h.gauge.Dec()
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for s := range h.sessions {
				s.stop()
				delete(h.sessions, s)
				h.gauge.Dec()
			}
			h.mu.Unlock()
			return
		}
	}
}

// add registers s. It reports false once the hub has shut down.
func (h *Hub) add(s *Session) bool {
	select {
	case h.register <- s:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(s *Session) {
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}

// Count returns the number of registered sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Session is one reader connection and its loader.
type Session struct {
	id      string
	srv     *Server
	conn    *websocket.Conn
	send    chan []byte
	quit    chan struct{}
	once    sync.Once
	limiter *rate.Limiter
	ctx     context.Context

	translation string
	loader      *stream.Loader
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the error response.
		logging.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	id := uuid.New().String()
	sess := &Session{
		id:      id,
		srv:     s,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		quit:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(s.cfg.MessageRate), s.cfg.MessageBurst),
		ctx:     logging.WithSessionID(s.ctx, id),
	}
	if !s.hub.add(sess) {
		conn.Close()
		return
	}
	logging.SessionEvent(sess.ctx, "open", "", "remote_addr", r.RemoteAddr)

	go sess.writePump()
	sess.reply(Response{Type: TypeWelcome, Session: id})
	sess.readPump()
}

// stop ends the write pump and closes the connection, which in turn ends the
// read pump.
func (c *Session) stop() {
	c.once.Do(func() {
		close(c.quit)
		c.conn.Close()
	})
}

// readPump processes commands sequentially until the connection fails.
func (c *Session) readPump() {
	defer func() {
		c.srv.hub.remove(c)
		c.stop()
		logging.SessionEvent(c.ctx, "close", c.translation)
	}()

	c.conn.SetReadLimit(c.srv.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.WarnContext(c.ctx, "websocket read failed", "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if !c.limiter.Allow() {
			c.srv.metrics.commands.WithLabelValues("any", "rate_limited").Inc()
			c.reply(Response{Type: TypeError, Error: "rate limit exceeded"})
			continue
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.srv.metrics.commands.WithLabelValues("any", "malformed").Inc()
			c.reply(Response{Type: TypeError, Error: "malformed command"})
			continue
		}
		c.reply(c.handle(cmd))
	}
}

// writePump forwards replies to the connection and keeps it alive with pings.
func (c *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.quit:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}

func (c *Session) reply(resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		logging.ErrorContext(c.ctx, "encode reply failed", "error", err)
		return
	}
	select {
	case c.send <- data:
	case <-c.quit:
	}
}

// handle runs one command against the session's loader.
func (c *Session) handle(cmd Command) Response {
	var (
		items []stream.Item
		index *int
		err   error
	)

	switch cmd.Op {
	case OpInit:
		items, err = c.init(cmd)
		if err != nil {
			c.srv.metrics.commands.WithLabelValues(cmd.Op, "unavailable").Inc()
			logging.SessionEvent(c.ctx, "unavailable", cmd.Translation, "error", err)
			return Response{Type: TypeError, Op: cmd.Op, Translation: cmd.Translation, Error: UnavailableMessage}
		}
		logging.SessionEvent(c.ctx, "init", c.translation, "book", cmd.Book, "chapter", cmd.Chapter)

	case OpNext, OpPrev, OpReset, OpJump:
		if c.loader == nil {
			err = stream.ErrNotReady
			break
		}
		switch cmd.Op {
		case OpNext:
			items, err = c.loader.LoadNextChapter(c.ctx)
		case OpPrev:
			items, err = c.loader.LoadPreviousChapter(c.ctx)
		case OpReset:
			items, err = c.loader.Reset(c.ctx, cmd.Book, cmd.Chapter)
		case OpJump:
			items, index, err = c.jump(cmd.Ref)
		}

	default:
		c.srv.metrics.commands.WithLabelValues("unknown", "error").Inc()
		return Response{Type: TypeError, Op: cmd.Op, Error: "unknown op"}
	}

	if err != nil {
		c.srv.metrics.commands.WithLabelValues(cmd.Op, "error").Inc()
		return Response{Type: TypeError, Op: cmd.Op, Translation: c.translation, Error: commandError(err)}
	}
	c.srv.metrics.commands.WithLabelValues(cmd.Op, "ok").Inc()

	window := c.loader.Window()
	focus := c.loader.Focus()
	return Response{
		Type:        TypeItems,
		Op:          cmd.Op,
		Translation: c.translation,
		Items:       items,
		Window:      &window,
		Focus:       &focus,
		Loaded:      c.loader.LoadedChapterCount(),
		Index:       index,
	}
}

// init replaces the session's loader with a fresh one. The previous loader
// stays in place when the new translation cannot be loaded.
func (c *Session) init(cmd Command) ([]stream.Item, error) {
	code := cmd.Translation
	if code == "" {
		code = c.srv.cfg.DefaultTranslation
	}
	book, chapter := cmd.Book, cmd.Chapter
	if book == 0 {
		book = 1
	}
	if chapter == 0 {
		chapter = 1
	}

	evictions := c.srv.metrics.evictions
	l := stream.New(countingSource{Source: c.srv.lib, loads: c.srv.metrics.chapterLoads}, stream.Options{
		Translation:       code,
		StartBook:         book,
		StartChapter:      chapter,
		PreloadCount:      c.srv.cfg.PreloadCount,
		MaxLoadedChapters: c.srv.cfg.MaxLoadedChapters,
		OnEvict:           func(stream.ChapterKey) { evictions.Inc() },
	})
	items, err := l.Initialize(c.ctx)
	if err != nil {
		return nil, err
	}
	c.loader = l
	c.translation = code
	return items, nil
}

// jump resets the window to a parsed reference and locates it in the stream.
// A reference without a chapter opens the book's first chapter.
func (c *Session) jump(ref string) ([]stream.Item, *int, error) {
	r, err := canon.ParseReference(ref, c.srv.cfg.Lookup)
	if err != nil {
		return nil, nil, err
	}
	if r.Chapter == 0 {
		r.Chapter = 1
	}
	items, err := c.loader.Reset(c.ctx, r.Book, r.Chapter)
	if err != nil {
		return nil, nil, err
	}
	if i, ok := c.loader.FindItemIndex(r.Book, r.Chapter, r.Verse); ok {
		return items, &i, nil
	}
	return items, nil, nil
}

func commandError(err error) string {
	switch {
	case errors.Is(err, stream.ErrNotReady):
		return "session not initialized"
	case errors.Is(err, errors.ErrUnavailable):
		return UnavailableMessage
	default:
		return err.Error()
	}
}

// countingSource counts chapter fetches for the metrics endpoint.
type countingSource struct {
	stream.Source
	loads prometheus.Counter
}

func (s countingSource) Chapter(ctx context.Context, translation string, book, chapter int) ([]scripture.Verse, error) {
	s.loads.Inc()
	return s.Source.Chapter(ctx, translation, book, chapter)
}
