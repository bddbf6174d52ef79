package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/signalsfoundry/flock-simulator/internal/logging"
	"github.com/signalsfoundry/flock-simulator/internal/sim/state"
)

// Server streams tick snapshots from a host to websocket viewers.
type Server struct {
	host *state.Host
	log  logging.Logger

	allowRemote bool
	upgrader    websocket.Upgrader
	nextID      atomic.Uint64
}

// Option customises a Server.
type Option func(*Server)

// WithAllowRemote accepts viewers from non-loopback addresses.
func WithAllowRemote() Option {
	return func(s *Server) {
		s.allowRemote = true
	}
}

func NewServer(h *state.Host, log logging.Logger, opts ...Option) *Server {
	if log == nil {
		log = logging.Noop()
	}
	s := &Server{
		host: h,
		log:  log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register mounts the bootstrap and websocket handlers on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.Handle("/bootstrap", s.BootstrapHandler())
	mux.Handle("/ws", s.WSHandler())
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		snap := s.host.Snapshot()
		resp := BootstrapResponse{
			ProtocolVersion: Version,
			Tick:            snap.Tick,
			TickRateHz:      s.host.Params().TickRate,
			Agents:          len(snap.Agents),
			Flocks:          flockMsgs(snap.Flocks),
			Markers:         markerMsgs(snap),
		}
		if b, ok := s.host.MapBounds(); ok {
			resp.Bounds = &BoundsMsg{
				Min: [2]float64{b.Min.X(), b.Min.Y()},
				Max: [2]float64{b.Max.X(), b.Max.Y()},
			}
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		s.log.Info(ctx, "observer connected", logging.String("session", sid), logging.String("remote", r.RemoteAddr))

		// The channel is never closed: the host may still deliver one
		// snapshot after unsubscribe returns.
		tickOut := make(chan []byte, 8)
		var dropped atomic.Uint64
		offer := func(snap state.Snapshot) {
			b, err := json.Marshal(NewTickMsg(snap))
			if err != nil {
				return
			}
			select {
			case tickOut <- b:
			default:
				dropped.Add(1)
			}
		}
		offer(s.host.LastTick())
		unsubscribe := s.host.Subscribe(offer)
		defer unsubscribe()

		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-tickOut:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Viewers only listen; reading detects the close.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
		s.log.Info(context.Background(), "observer disconnected",
			logging.String("session", sid),
			logging.Uint64("dropped_frames", dropped.Load()),
		)
	}
}

func (s *Server) allowed(r *http.Request) bool {
	return s.allowRemote || isLoopbackRemote(r.RemoteAddr)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
