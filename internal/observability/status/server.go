// Package status serves the daemon's health and run status over HTTP,
// with optional pprof handlers.
package status

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"sync"
	"time"

	"snipcast/internal/runtime/supervisor"
	logx "snipcast/pkg/logx"
)

// Config controls the listener. Prefer a loopback Addr; otherwise set Token.
type Config struct {
	Enabled bool
	Addr    string
	Token   string
	Pprof   bool
}

type Server struct {
	mu  sync.Mutex
	log logx.Logger
	cfg Config

	tracker *Tracker
	plan    func() []Planned
	now     func() time.Time

	srv  *http.Server
	sup  *supervisor.Supervisor
	addr string
}

// New builds a stopped server. plan reports upcoming triggers and may be nil.
func New(tracker *Tracker, plan func() []Planned, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if tracker == nil {
		tracker = NewTracker(time.Now())
	}
	return &Server{tracker: tracker, plan: plan, now: time.Now, log: log}
}

// Addr is the bound address, empty when stopped.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Reconfigure starts, stops or restarts the listener to match cfg. It is
// safe to call on every config reload.
func (s *Server) Reconfigure(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	running := s.srv != nil
	same := running && s.cfg == cfg
	s.mu.Unlock()

	if same {
		return nil
	}
	if running {
		s.Stop(ctx)
	}
	if !cfg.Enabled {
		return nil
	}
	return s.start(ctx, cfg)
}

func (s *Server) start(ctx context.Context, cfg Config) error {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.handler(cfg),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	// The listener outlives reloads of unrelated sections, so it is not
	// tied to the caller's context.
	sup := supervisor.New(context.WithoutCancel(ctx),
		supervisor.WithLogger(s.log),
		supervisor.WithCancelOnError(false),
	)
	sup.Go("status.http", func(context.Context) error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("status server error", logx.String("addr", ln.Addr().String()), logx.Err(err))
			return err
		}
		return nil
	})

	s.mu.Lock()
	s.cfg, s.srv, s.sup, s.addr = cfg, srv, sup, ln.Addr().String()
	s.mu.Unlock()
	s.log.Info("status server listening", logx.String("addr", ln.Addr().String()), logx.Bool("pprof", cfg.Pprof))
	return nil
}

// Stop shuts the listener down, waiting for in-flight requests until ctx
// is done.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	srv, sup, addr := s.srv, s.sup, s.addr
	s.srv, s.sup, s.addr = nil, nil, ""
	s.cfg = Config{}
	s.mu.Unlock()
	if srv == nil {
		return
	}
	if err := srv.Shutdown(ctx); err != nil {
		_ = srv.Close()
	}
	_ = sup.Stop(ctx)
	s.log.Info("status server stopped", logx.String("addr", addr))
}

func (s *Server) handler(cfg Config) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/status", s.auth(cfg.Token, http.HandlerFunc(s.serveStatus)))
	if cfg.Pprof {
		mux.Handle("/debug/pprof/", s.auth(cfg.Token, http.HandlerFunc(hpprof.Index)))
		mux.Handle("/debug/pprof/cmdline", s.auth(cfg.Token, http.HandlerFunc(hpprof.Cmdline)))
		mux.Handle("/debug/pprof/profile", s.auth(cfg.Token, http.HandlerFunc(hpprof.Profile)))
		mux.Handle("/debug/pprof/symbol", s.auth(cfg.Token, http.HandlerFunc(hpprof.Symbol)))
		mux.Handle("/debug/pprof/trace", s.auth(cfg.Token, http.HandlerFunc(hpprof.Trace)))
	}
	return mux
}

func (s *Server) serveStatus(w http.ResponseWriter, r *http.Request) {
	var next []Planned
	if s.plan != nil {
		next = s.plan()
	}
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.tracker.snapshot(s.now(), next)); err != nil {
		s.log.Debug("status encode failed", logx.Err(err))
	}
}

// auth accepts "Authorization: Bearer <token>" or ?token=<token>.
func (s *Server) auth(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	want := []byte(token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.URL.Query().Get("token")
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			got = strings.TrimPrefix(h, "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
