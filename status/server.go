package status

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
)

// RoomLister is satisfied by proc.SessionRegistry.
type RoomLister interface {
	Rooms() []proc.RoomStatus
}

// NewRouter serves /healthz and /rooms.
func NewRouter(rooms RoomLister) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"uptime": time.Since(sys.StartupTime).Round(time.Second).String(),
		})
	})
	r.Get("/rooms", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, rooms.Rooms())
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Server is the optional read-only status endpoint.
type Server struct {
	srv *http.Server
}

func NewServer(addr string, rooms RoomLister) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           NewRouter(rooms),
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Serve blocks until the listener fails or Shutdown is called.
func (s *Server) Serve(l net.Listener) error {
	sys.LogStatus(sys.MsgStatusListening, l.Addr())
	err := s.srv.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Register installs the status server as a daemon when addr is set.
func Register(addr string, rooms RoomLister) {
	if addr == "" {
		return
	}
	sys.RegisterDaemon(sys.LogStatus, func(ctx context.Context) (bool, func(), func()) {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			sys.LogStatus(sys.MsgStatusStopped, err)
			return false, nil, nil
		}
		s := NewServer(addr, rooms)
		run := func() {
			if err := s.Serve(l); err != nil {
				sys.LogStatus(sys.MsgStatusStopped, err)
			}
		}
		stop := func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.Shutdown(sctx)
		}
		return true, run, stop
	})
}
