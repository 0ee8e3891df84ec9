// Package debughttp serves pprof and a JSON view of the running scheduler
// on an optional local HTTP listener.
package debughttp

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strconv"
	"strings"
	"time"

	logx "taskman/pkg/logx"
)

const DefaultAddr = "127.0.0.1:6060"

// Limits for ?n= on /debug/taskman/snapshots.
const (
	DefaultHistory = 20
	MaxHistory     = 500
)

// Config controls the debug listener.
//
// Binding to a non-loopback address requires a Token.
type Config struct {
	Enabled bool
	Addr    string
	Token   string
}

// StateFunc returns the value rendered at /debug/taskman.
type StateFunc func() any

// HistoryFunc returns up to n persisted snapshots, oldest first.
type HistoryFunc func(ctx context.Context, n int) (any, error)

type Server struct {
	cfg     Config
	state   StateFunc
	history HistoryFunc
	log     logx.Logger
}

// New builds a server. history may be nil when no snapshot storage is
// configured; the snapshots route then answers 404.
func New(cfg Config, state StateFunc, history HistoryFunc, log logx.Logger) *Server {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{cfg: cfg, state: state, history: history, log: log.With(logx.String("comp", "debughttp"))}
}

// Validate rejects an unauthenticated non-loopback bind.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	addr := strings.TrimSpace(c.Addr)
	if addr == "" {
		addr = DefaultAddr
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return err
	}
	if strings.TrimSpace(c.Token) == "" && !isLoopbackAddr(addr) {
		return errors.New("debug: non-loopback addr requires token")
	}
	return nil
}

// Handler builds the routes. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	wrap := func(h http.HandlerFunc) http.HandlerFunc { return withAuth(s.cfg.Token, h) }

	mux.HandleFunc("/healthz", wrap(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	mux.HandleFunc("/debug/taskman", wrap(func(w http.ResponseWriter, r *http.Request) {
		var v any
		if s.state != nil {
			v = s.state()
		}
		s.writeJSON(w, v)
	}))
	mux.HandleFunc("/debug/taskman/snapshots", wrap(func(w http.ResponseWriter, r *http.Request) {
		if s.history == nil {
			http.Error(w, "snapshot storage disabled", http.StatusNotFound)
			return
		}
		n := DefaultHistory
		if q := r.URL.Query().Get("n"); q != "" {
			v, err := strconv.Atoi(q)
			if err != nil || v < 1 || v > MaxHistory {
				http.Error(w, "n must be between 1 and "+strconv.Itoa(MaxHistory), http.StatusBadRequest)
				return
			}
			n = v
		}
		recs, err := s.history(r.Context(), n)
		if err != nil {
			s.log.Warn("snapshot history failed", logx.Err(err))
			http.Error(w, "snapshot history unavailable", http.StatusInternalServerError)
			return
		}
		s.writeJSON(w, recs)
	}))
	mux.HandleFunc("/debug/pprof/", wrap(hpprof.Index))
	mux.HandleFunc("/debug/pprof/cmdline", wrap(hpprof.Cmdline))
	mux.HandleFunc("/debug/pprof/profile", wrap(hpprof.Profile))
	mux.HandleFunc("/debug/pprof/symbol", wrap(hpprof.Symbol))
	mux.HandleFunc("/debug/pprof/trace", wrap(hpprof.Trace))
	return mux
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		s.log.Debug("encode failed", logx.Err(err))
	}
}

// Serve listens until ctx ends. It returns nil on shutdown.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("debug server started",
		logx.String("addr", ln.Addr().String()),
		logx.Bool("token_set", s.cfg.Token != ""),
	)
	err = srv.Serve(ln)
	if ctx.Err() != nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func withAuth(token string, h http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		// Accept "Authorization: Bearer <token>" or ?token=<token>.
		if got := r.URL.Query().Get("token"); got != "" {
			if got == tok {
				h(w, r)
				return
			}
			unauthorized(w)
			return
		}
		const p = "Bearer "
		if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
			h(w, r)
			return
		}
		unauthorized(w)
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		// empty host means all interfaces
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
