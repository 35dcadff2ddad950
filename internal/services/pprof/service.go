// Package pprof serves Go runtime profiles on a dedicated listener so
// profiling traffic never mixes with the API server.
package pprof

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"runtime"
	"strings"
	"sync"
	"time"

	logx "cronlens/pkg/logx"
)

const defaultAddr = "127.0.0.1:6060"

// Config controls the profiling listener. Binding beyond loopback requires a
// token unless AllowInsecure is set.
type Config struct {
	Enabled       bool
	Addr          string
	Prefix        string
	Token         string
	AllowInsecure bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Runtime profiling rates. 0 keeps the Go defaults.
	MutexProfileFraction int
	BlockProfileRate     int
	MemProfileRate       int
}

// listenerKey covers the fields that cannot change without rebinding.
type listenerKey struct {
	addr, prefix, token string
	allowInsecure       bool
	readTO, writeTO     time.Duration
	idleTO              time.Duration
}

func keyOf(c Config) listenerKey {
	return listenerKey{
		addr:          strings.TrimSpace(c.Addr),
		prefix:        normalizePrefix(c.Prefix),
		token:         c.Token,
		allowInsecure: c.AllowInsecure,
		readTO:        c.ReadTimeout,
		writeTO:       c.WriteTimeout,
		idleTO:        c.IdleTimeout,
	}
}

type Service struct {
	mu  sync.Mutex
	log logx.Logger
	cfg Config
	srv *http.Server
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, log: log}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Reconfigure applies cfg during hot reload, rebinding only when the
// listener-relevant fields changed. Runtime profiling rates apply either way.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) {
	applyRuntimeRates(cfg)

	s.mu.Lock()
	prev := s.cfg
	running := s.srv != nil
	s.cfg = cfg
	s.mu.Unlock()

	switch {
	case !cfg.Enabled:
		s.Stop(ctx)
	case !running:
		s.Start(ctx)
	case keyOf(prev) != keyOf(cfg):
		s.Stop(ctx)
		s.Start(ctx)
	}
}

func applyRuntimeRates(cfg Config) {
	if cfg.MutexProfileFraction > 0 {
		runtime.SetMutexProfileFraction(cfg.MutexProfileFraction)
	}
	if cfg.BlockProfileRate > 0 {
		runtime.SetBlockProfileRate(cfg.BlockProfileRate)
	}
	if cfg.MemProfileRate > 0 {
		runtime.MemProfileRate = cfg.MemProfileRate
	}
}

func (s *Service) Start(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil || !s.cfg.Enabled {
		return
	}
	cfg := s.cfg

	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = defaultAddr
	}
	if !isLoopback(addr) && cfg.Token == "" {
		if !cfg.AllowInsecure {
			s.log.Error("pprof not started: non-loopback addr needs a token or allow_insecure",
				logx.String("addr", addr))
			return
		}
		s.log.Warn("pprof exposed without a token", logx.String("addr", addr))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.log.Error("pprof listen failed", logx.String("addr", addr), logx.Err(err))
		return
	}

	srv := &http.Server{
		Handler:     handler(cfg),
		ReadTimeout: cfg.ReadTimeout,
		// WriteTimeout is often 0 on purpose: /profile can run 30s+.
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	s.srv = srv
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("pprof server failed", logx.Err(err))
		}
	}()

	s.log.Info("pprof listening",
		logx.String("addr", ln.Addr().String()),
		logx.String("prefix", normalizePrefix(cfg.Prefix)),
		logx.Bool("token_set", cfg.Token != ""),
	)
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()
	if srv == nil {
		return
	}
	if err := srv.Shutdown(ctx); err != nil {
		_ = srv.Close()
	}
	s.log.Info("pprof stopped")
}

func handler(cfg Config) http.Handler {
	prefix := normalizePrefix(cfg.Prefix)
	base := strings.TrimSuffix(prefix, "/")

	mux := http.NewServeMux()
	mux.Handle(prefix, guard(cfg.Token, indexAt(prefix)))
	mux.Handle(base+"/cmdline", guard(cfg.Token, http.HandlerFunc(hpprof.Cmdline)))
	mux.Handle(base+"/profile", guard(cfg.Token, http.HandlerFunc(hpprof.Profile)))
	mux.Handle(base+"/symbol", guard(cfg.Token, http.HandlerFunc(hpprof.Symbol)))
	mux.Handle(base+"/trace", guard(cfg.Token, http.HandlerFunc(hpprof.Trace)))
	return mux
}

// guard enforces the token, accepted as "Authorization: Bearer <t>" or
// "?token=<t>". An empty configured token leaves the handler open.
func guard(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	want := []byte(token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.URL.Query().Get("token")
		if got == "" {
			got = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), want) != 1 {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// indexAt rewrites requests under a custom prefix to the /debug/pprof/ root
// the stock index handler expects.
func indexAt(prefix string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clone := r.Clone(r.Context())
		clone.URL.Path = "/debug/pprof/" + strings.TrimPrefix(r.URL.Path, prefix)
		hpprof.Index(w, clone)
	})
}

func normalizePrefix(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/debug/pprof/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
