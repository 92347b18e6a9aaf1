package signaling

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/1ureka/relaypeer/internal/relay"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is the broker: it hands out identities and routes signaling
// messages between the endpoints connected to it.
type Server struct {
	pin     string
	logger  *zap.Logger
	reg     *prometheus.Registry
	metrics *metrics

	mu      sync.Mutex
	clients map[relay.Identity]*sender
}

// Option configures a Server.
type Option func(*Server)

// WithPIN requires endpoints to present pin as the "pin" query parameter.
func WithPIN(pin string) Option {
	return func(s *Server) { s.pin = pin }
}

// WithLogger sets the broker logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetricsRegistry registers the broker metrics on reg instead of a
// private registry.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.reg = reg }
}

// NewServer creates a broker.
func NewServer(opts ...Option) *Server {
	s := &Server{
		logger:  zap.NewNop(),
		clients: make(map[relay.Identity]*sender),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.reg == nil {
		s.reg = prometheus.NewRegistry()
	}
	s.metrics = newMetrics(s.reg)
	return s
}

// Handler serves the signaling WebSocket at /ws and metrics at /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	return mux
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		s.closeAll()
	}()

	s.logger.Info("broker listening", zap.String("addr", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start broker: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Clients returns the number of connected endpoints.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.pin != "" && r.URL.Query().Get("pin") != s.pin {
		s.logger.Warn("rejected endpoint with invalid PIN", zap.String("remote", r.RemoteAddr))
		http.Error(w, "Invalid PIN", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	out := &sender{conn: conn}
	id, err := s.join(out)
	if err != nil {
		s.logger.Error("identity assignment failed", zap.Error(err))
		return
	}
	defer s.leave(id)

	log := s.logger.With(zap.Stringer("identity", id), zap.String("remote", r.RemoteAddr))
	if err := out.send(Message{Type: MsgTypeWelcome, To: id}); err != nil {
		log.Warn("welcome failed", zap.Error(err))
		return
	}
	log.Info("endpoint joined")

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("read failed", zap.Error(err))
			}
			break
		}
		msg.From = id
		s.route(log, out, msg)
	}
	log.Info("endpoint left")
}

// route forwards msg to its target. A target that is not connected is
// reported back to the sender as an error message on the same session.
func (s *Server) route(log *zap.Logger, from *sender, msg Message) {
	switch msg.Type {
	case MsgTypeOffer, MsgTypeAnswer, MsgTypeCandidate, MsgTypeClose:
	default:
		log.Debug("dropping message", zap.String("type", string(msg.Type)))
		s.metrics.dropped.WithLabelValues("invalid-type").Inc()
		return
	}

	s.mu.Lock()
	to, ok := s.clients[msg.To]
	s.mu.Unlock()

	if !ok {
		s.metrics.dropped.WithLabelValues("unknown-target").Inc()
		if msg.Type == MsgTypeClose {
			return
		}
		_ = from.send(Message{
			Type:    MsgTypeError,
			From:    msg.To,
			To:      msg.From,
			Session: msg.Session,
			Reason:  fmt.Sprintf("identity %s is not connected", msg.To),
		})
		return
	}

	if err := to.send(msg); err != nil {
		log.Debug("forward failed", zap.Stringer("to", msg.To), zap.Error(err))
		s.metrics.dropped.WithLabelValues("write-failed").Inc()
		return
	}
	s.metrics.forwarded.WithLabelValues(string(msg.Type)).Inc()
}

// join assigns a fresh random identity to out.
func (s *Server) join(out *sender) (relay.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b [8]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			return 0, err
		}
		id := relay.Identity(binary.BigEndian.Uint64(b[:]))
		if id == 0 {
			continue
		}
		if _, taken := s.clients[id]; taken {
			continue
		}
		s.clients[id] = out
		s.metrics.clients.Inc()
		return id, nil
	}
}

func (s *Server) leave(id relay.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[id]; ok {
		delete(s.clients, id)
		s.metrics.clients.Dec()
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		_ = c.sendClose(websocket.CloseGoingAway, "broker shutting down")
		_ = c.conn.Close()
	}
}
