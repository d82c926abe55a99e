package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/controlplane"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/preset"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/signals"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrNoRenderer is returned by Apply when no renderer is connected.
	ErrNoRenderer = errors.New("no renderer connected")
	// ErrAckTimeout is returned when no renderer acknowledged a load in time.
	// The renderer may still finish applying it.
	ErrAckTimeout = errors.New("renderer did not acknowledge load")
)

const (
	writeTimeout = 2 * time.Second
	sendBuffer   = 64
)

// Runner is the scheduler goroutine as the hub sees it.
type Runner interface {
	Post(fn func(*controlplane.Scheduler)) error
	Call(ctx context.Context, fn func(*controlplane.Scheduler)) error
}

// #region hub
type client struct {
	id   string
	conn *websocket.Conn
	send chan Outbound
}

// Hub fans control plane output out to connected renderers and funnels
// their input into the scheduler. It also serves as the preset Loader.
type Hub struct {
	runner     Runner
	origins    []string
	ackTimeout time.Duration
	logger     zerolog.Logger
	now        func() time.Time

	mu      sync.RWMutex
	clients map[string]*client

	ackMu sync.Mutex
	acks  map[string]chan string
}

// NewHub creates a hub. Attach must be called before serving. ackTimeout
// bounds how long Apply waits for a renderer, 0 waits for ctx only.
func NewHub(origins []string, ackTimeout time.Duration, logger zerolog.Logger) *Hub {
	return &Hub{
		origins:    origins,
		ackTimeout: ackTimeout,
		logger:     logger.With().Str("component", "feed").Logger(),
		now:        time.Now,
		clients:    make(map[string]*client),
		acks:       make(map[string]chan string),
	}
}

// Attach sets the runner that inbound messages are posted to.
func (h *Hub) Attach(r Runner) {
	h.runner = r
}

// Clients returns the number of connected renderers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues m for every client. A client whose buffer is full misses
// the message.
func (h *Hub) Broadcast(m Outbound) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for _, c := range h.clients {
		if c.enqueue(m) {
			sent++
		} else {
			h.logger.Debug().Str("client", c.id).Str("type", string(m.Type)).Msg("client buffer full, dropped")
		}
	}
	return sent
}

func (c *client) enqueue(m Outbound) bool {
	select {
	case c.send <- m:
		return true
	default:
		return false
	}
}

// #endregion hub

// #region loader
// Apply sends a load to the renderers and waits for the first ack.
func (h *Hub) Apply(ctx context.Context, scope preset.Scope, desc preset.Descriptor, content string) error {
	id := uuid.NewString()
	ack := make(chan string, 1)
	h.ackMu.Lock()
	h.acks[id] = ack
	h.ackMu.Unlock()
	defer func() {
		h.ackMu.Lock()
		delete(h.acks, id)
		h.ackMu.Unlock()
	}()

	if h.Broadcast(Outbound{Type: TypeLoad, ID: id, Data: LoadData{Scope: scope, Preset: desc, Content: content}}) == 0 {
		return ErrNoRenderer
	}
	var expired <-chan time.Time
	if h.ackTimeout > 0 {
		t := time.NewTimer(h.ackTimeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case msg := <-ack:
		if msg != "" {
			return errors.New(msg)
		}
		return nil
	case <-expired:
		h.logger.Warn().Str("preset", desc.ID).Str("load", id).Dur("waited", h.ackTimeout).Msg("load not acknowledged")
		return ErrAckTimeout
	case <-ctx.Done():
		return fmt.Errorf("load %s: %w", desc.ID, ctx.Err())
	}
}

func (h *Hub) resolve(id string, data LoadedData) {
	h.ackMu.Lock()
	ack, ok := h.acks[id]
	h.ackMu.Unlock()
	if !ok {
		h.logger.Debug().Str("load", id).Msg("ack for unknown load")
		return
	}
	select {
	case ack <- data.Error:
	default:
	}
}

var _ preset.Loader = (*Hub)(nil)

// #endregion loader

// #region serve
// ServeWS upgrades the request and runs the client until it disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket accept")
		return
	}
	c := &client{id: uuid.NewString(), conn: conn, send: make(chan Outbound, sendBuffer)}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.logger.Info().Str("client", c.id).Str("remote", r.RemoteAddr).Msg("renderer connected")
	defer func() {
		h.mu.Lock()
		delete(h.clients, c.id)
		h.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "")
		h.logger.Info().Str("client", c.id).Msg("renderer disconnected")
	}()

	go h.writeLoop(ctx, c)
	h.readLoop(ctx, c)
}

func (h *Hub) writeLoop(ctx context.Context, c *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c.conn, m)
			cancel()
			if err != nil {
				h.logger.Debug().Err(err).Str("client", c.id).Msg("write failed")
				return
			}
		}
	}
}

func (h *Hub) readLoop(ctx context.Context, c *client) {
	for {
		var in Inbound
		if err := wsjson.Read(ctx, c.conn, &in); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				h.logger.Debug().Err(err).Str("client", c.id).Msg("read failed")
			}
			return
		}
		if err := h.dispatch(c, in); err != nil {
			h.logger.Warn().Err(err).Str("client", c.id).Str("type", string(in.Type)).Msg("message rejected")
			c.enqueue(Outbound{Type: TypeError, ID: in.ID, Data: err.Error()})
		}
	}
}

// #endregion serve

// #region dispatch
// dispatch decodes one message and posts it to the scheduler. It never waits
// for the scheduler.
func (h *Hub) dispatch(c *client, in Inbound) error {
	switch in.Type {
	case TypeLoaded:
		var d LoadedData
		if len(in.Data) > 0 {
			if err := json.Unmarshal(in.Data, &d); err != nil {
				return fmt.Errorf("decode loaded: %w", err)
			}
		}
		h.resolve(in.ID, d)
		return nil

	case TypeAudio:
		var f signals.AudioFrame
		if err := json.Unmarshal(in.Data, &f); err != nil {
			return fmt.Errorf("decode audio: %w", err)
		}
		return h.post(func(s *controlplane.Scheduler) {
			fx := s.OnAudioFrame(f, h.now())
			h.Broadcast(Outbound{Type: TypeEffects, Data: fx})
		})

	case TypeRender:
		var m signals.RenderMetrics
		if err := json.Unmarshal(in.Data, &m); err != nil {
			return fmt.Errorf("decode render: %w", err)
		}
		return h.post(func(s *controlplane.Scheduler) { s.OnRenderMetrics(m) })

	case TypeFeedback:
		var fb signals.RenderFeedback
		if err := json.Unmarshal(in.Data, &fb); err != nil {
			return fmt.Errorf("decode feedback: %w", err)
		}
		return h.post(func(s *controlplane.Scheduler) {
			for _, rep := range s.OnFeedback(fb, h.now()) {
				h.Broadcast(Outbound{Type: TypeSwitch, Data: rep})
			}
		})

	case TypeRequest:
		var req preset.Request
		if err := json.Unmarshal(in.Data, &req); err != nil {
			return fmt.Errorf("decode request: %w", err)
		}
		if req.Origin == "" {
			req.Origin = preset.Manual
		}
		id := in.ID
		return h.post(func(s *controlplane.Scheduler) {
			c.enqueue(Outbound{Type: TypeSwitch, ID: id, Data: s.Request(req, h.now())})
		})

	case TypeEdit:
		var e EditData
		if err := json.Unmarshal(in.Data, &e); err != nil {
			return fmt.Errorf("decode edit: %w", err)
		}
		if e.Name == "" {
			return errors.New("edit without macro name")
		}
		return h.post(func(s *controlplane.Scheduler) { s.HumanEdit(e.Name, e.Value, h.now()) })

	default:
		return fmt.Errorf("unknown message type %q", in.Type)
	}
}

func (h *Hub) post(fn func(*controlplane.Scheduler)) error {
	if h.runner == nil {
		return errors.New("feed not attached")
	}
	return h.runner.Post(fn)
}

// #endregion dispatch
