// Package web serves the keep-alive and status endpoints.
//
// Hosting platforms that sleep idle services ping GET / to keep the bot
// awake; /status exposes operational state for humans and dashboards.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Lazy-dev-hash/tg-gag-bot/internal/eventbus"
	"github.com/Lazy-dev-hash/tg-gag-bot/internal/tracker"
	"github.com/Lazy-dev-hash/tg-gag-bot/internal/transport/telegram/router"
	logx "github.com/Lazy-dev-hash/tg-gag-bot/pkg/logx"
)

const recentEventCap = 32

type Config struct {
	Addr string
}

type Deps struct {
	Registry    *tracker.Registry
	Prized      *tracker.PrizedSet
	Supervisors *router.SupervisorRegistry
	Bus         eventbus.Bus
	Log         logx.Logger
}

type Server struct {
	cfg Config
	d   Deps
	log logx.Logger

	srv *http.Server

	evMu   sync.Mutex
	events []eventbus.Event
	unsub  func()

	startedAt time.Time
}

func New(cfg Config, d Deps) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg, d: d, log: log, startedAt: time.Now()}
}

// Start binds the listener and serves until ctx is canceled.
// It returns nil on clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/status", s.handleStatus)

	if s.d.Bus != nil {
		ch, unsub := s.d.Bus.Subscribe(recentEventCap)
		s.unsub = unsub
		go s.collectEvents(ch)
	}

	s.srv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- s.srv.ListenAndServe() }()
	s.log.Info("web server started", logx.String("addr", s.cfg.Addr))

	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := s.srv.Shutdown(sctx)
		if s.unsub != nil {
			s.unsub()
		}
		s.log.Info("web server stopped")
		return err
	case err := <-errc:
		if s.unsub != nil {
			s.unsub()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) collectEvents(ch <-chan eventbus.Event) {
	for e := range ch {
		s.evMu.Lock()
		s.events = append(s.events, e)
		if len(s.events) > recentEventCap {
			s.events = s.events[len(s.events)-recentEventCap:]
		}
		s.evMu.Unlock()
	}
}

func (s *Server) recentEvents() []eventbus.Event {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	return append([]eventbus.Event(nil), s.events...)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("grow a garden tracker is alive\n"))
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

type statusPayload struct {
	Uptime      string                      `json:"uptime"`
	GameTime    string                      `json:"game_time"`
	Chats       []tracker.Info              `json:"chats"`
	Prized      []string                    `json:"prized"`
	Restocks    map[string]string           `json:"restocks"`
	Supervisors map[string]supervisorStatus `json:"supervisors,omitempty"`
	Events      []eventbus.Event            `json:"events,omitempty"`
}

type supervisorStatus struct {
	Active  int64  `json:"active"`
	Started uint64 `json:"started"`
	Err     string `json:"err,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	now := tracker.GameNow()
	p := statusPayload{
		Uptime:   time.Since(s.startedAt).Round(time.Second).String(),
		GameTime: now.Format(time.RFC3339),
		Restocks: map[string]string{},
		Events:   s.recentEvents(),
	}
	if s.d.Registry != nil {
		p.Chats = s.d.Registry.Infos()
	}
	if s.d.Prized != nil {
		p.Prized = s.d.Prized.Names()
	}
	for cat, at := range tracker.NextBoundaries(now) {
		p.Restocks[string(cat)] = tracker.FormatCountdown(tracker.Countdown(at, now))
	}
	if s.d.Supervisors != nil {
		p.Supervisors = map[string]supervisorStatus{}
		for name, sup := range s.d.Supervisors.Snapshot() {
			st := supervisorStatus{}
			c := sup.Counters()
			st.Active, st.Started = c.Active, c.Started
			if err := sup.Err(); err != nil {
				st.Err = err.Error()
			}
			p.Supervisors[name] = st
		}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(p)
}
