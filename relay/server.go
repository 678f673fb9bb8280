package relay

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"emperror.dev/errors"
	"github.com/NYTimes/gziphandler"
	"github.com/bwmarrin/snowflake"
	"github.com/gorilla/websocket"
	"github.com/miolini/datacounter"
	"goji.io"
	"goji.io/pat"
)

const writeTimeout = time.Second * 10

// Server exposes the bus to worker processes over websockets, plus a role lookup endpoint
type Server struct {
	bus   *Bus
	roles *RoleCache

	upgrader websocket.Upgrader

	mu           sync.Mutex
	srv          *http.Server
	shuttingDown bool
}

func NewServer(bus *Bus, roles *RoleCache) *Server {
	return &Server{
		bus:   bus,
		roles: roles,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024 * 16,
		},
	}
}

func (s *Server) Handler() http.Handler {
	muxer := goji.NewMux()
	muxer.HandleFunc(pat.Get("/events"), s.handleEvents)
	muxer.Handle(pat.Get("/roles/:id"), gziphandler.GzipHandler(http.HandlerFunc(s.handleGetRole)))
	muxer.HandleFunc(pat.Get("/ping"), handlePing)
	return muxer
}

// Serve serves on l until Shutdown is called
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	s.srv = &http.Server{
		Handler: s.Handler(),
	}
	srv := s.srv
	s.mu.Unlock()

	logger.Infof("relay listening on %s", l.Addr())
	err := srv.Serve(l)
	if err == http.ErrServerClosed {
		logger.Info("relay server closed")
		return nil
	}

	return errors.WithMessage(err, "relay serve")
}

func (s *Server) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.WithMessage(err, "listen")
	}

	return s.Serve(l)
}

// Shutdown stops accepting new subscribers, sockets that are already attached keep running until the bus is closed
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shuttingDown = true
	srv := s.srv
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	return srv.Shutdown(ctx)
}

func (s *Server) isShuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shuttingDown
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.isShuttingDown() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithError(err).Error("failed upgrading relay socket")
		return
	}
	defer conn.Close()

	sub, err := s.bus.Subscribe()
	if err != nil {
		writeClose(conn, websocket.CloseGoingAway, "shutting down")
		return
	}
	defer sub.Close()

	l := logger.WithField("remote", r.RemoteAddr)
	l.Info("relay socket attached")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// reads are only needed for control frames, the default close handler answers the worker's close frame
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		p, err := sub.Recv(ctx)
		if err != nil {
			var lagged *LaggedError
			if errors.As(err, &lagged) {
				laggedPayloads.Add(float64(lagged.Count))
				l.Warnf("socket lagged %d events", lagged.Count)
				continue
			}

			if errors.Is(err, ErrBusClosed) {
				writeClose(conn, websocket.CloseGoingAway, "shutting down")
			}

			l.Info("relay socket detached")
			return
		}

		err = writeFrame(conn, p)
		if err != nil {
			l.WithError(err).Error("failed writing to relay socket")
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, p []byte) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	w, err := conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}

	counter := datacounter.NewWriterCounter(w)
	_, err = counter.Write(p)
	sentBytes.Add(float64(counter.Count()))
	if err != nil {
		w.Close()
		return err
	}

	return w.Close()
}

func writeClose(conn *websocket.Conn, code int, reason string) {
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleGetRole(w http.ResponseWriter, r *http.Request) {
	id, err := snowflake.ParseString(pat.Param(r, "id"))
	if err != nil || id <= 0 {
		serveJSON(w, http.StatusBadRequest, &errorResponse{Error: "invalid role id"})
		return
	}

	var role *Role
	ok := false
	if s.roles != nil {
		role, ok = s.roles.Role(id.Int64())
	}

	if !ok {
		serveJSON(w, http.StatusNotFound, &errorResponse{Error: "role not found"})
		return
	}

	serveJSON(w, http.StatusOK, role)
}

func handlePing(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, http.StatusOK, "pong")
}

func serveJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(data)
	if err != nil {
		logger.WithError(err).Error("failed sending json")
	}
}
