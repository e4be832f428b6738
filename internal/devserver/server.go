// Package devserver is an in-memory MemeIndex backend for local development
// and integration tests.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/memeindex/memeindex/internal/backend"
	"github.com/memeindex/memeindex/internal/config"
	"github.com/memeindex/memeindex/internal/host"
	apperr "github.com/memeindex/memeindex/pkg/errors"
)

const (
	// DefaultListen is the default listen address.
	DefaultListen = "127.0.0.1:8787"

	// DefaultInitDataMaxAge bounds how old signed launch data may be.
	DefaultInitDataMaxAge = 24 * time.Hour

	maxRequestBody = 64 << 10
)

// Logger is the logging surface the dev server writes to.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Error(format string, args ...any)
}

// Options configures a Server.
type Options struct {
	// BotUsername is used to build invite links.
	BotUsername string
	// BotToken enables initData validation on every API request when set.
	BotToken string
	// InitDataMaxAge overrides DefaultInitDataMaxAge.
	InitDataMaxAge time.Duration
	// InviteGoal is the referral count that satisfies the invite task.
	InviteGoal int
	// Tasks overrides DefaultTasks.
	Tasks []backend.Task
	// Logger receives request logs. Defaults to a discarding logger.
	Logger Logger
	// Now overrides the clock (useful for testing).
	Now func() time.Time
}

// Server serves the MemeIndex REST API from memory.
type Server struct {
	store       *Store
	botUsername string
	botToken    string
	maxAge      time.Duration
	logger      Logger
	now         func() time.Time
	registry    *prometheus.Registry
	metrics     *Metrics
	router      chi.Router

	mu           sync.Mutex
	failRegister int
}

// New creates a dev server.
func New(opts Options) *Server {
	if opts.BotUsername == "" {
		opts.BotUsername = config.DefaultBotUsername
	}
	if opts.InitDataMaxAge <= 0 {
		opts.InitDataMaxAge = DefaultInitDataMaxAge
	}
	if opts.InviteGoal <= 0 {
		opts.InviteGoal = 10
	}
	if opts.Tasks == nil {
		opts.Tasks = DefaultTasks(opts.BotUsername)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{
		store:       NewStore(opts.Tasks, opts.InviteGoal, opts.Now),
		botUsername: opts.BotUsername,
		botToken:    opts.BotToken,
		maxAge:      opts.InitDataMaxAge,
		logger:      opts.Logger,
		now:         opts.Now,
		registry:    prometheus.NewRegistry(),
	}
	if s.logger == nil {
		s.logger = config.NullLogger()
	}
	s.metrics = NewMetrics(s.registry)
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Store returns the server's state.
func (s *Server) Store() *Store {
	return s.store
}

// Registry returns the prometheus registry behind /metrics.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// FailRegister makes the next n registration calls fail with a 500.
func (s *Server) FailRegister(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRegister = n
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
// ready, when not nil, receives the bound address once listening.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready func(net.Addr)) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.logger.Info("listening on %s", ln.Addr())
	if ready != nil {
		ready(ln.Addr())
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireInitData)

		r.Get("/user/is-registered/{key}", s.handleIsRegistered)
		r.Post("/user/register", s.handleRegister)

		r.Get("/referral/link/{address}", s.handleReferralLink)
		r.Get("/referral/stats/{address}", s.handleReferralStats)
		r.Post("/referral/apply", s.handleApplyReferral)

		r.Get("/tasks/{userID}", s.handleTasks)
		r.Post("/task/complete", s.handleCompleteTask)
		r.Post("/task/verify", s.handleVerifyTask)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		s.metrics.ObserveRequest(route, status, elapsed)
		s.logger.Debug("%s %s %d %s", r.Method, r.URL.Path, status, elapsed.Round(time.Microsecond))
	})
}

// requireInitData rejects API calls without valid signed launch data when
// the server knows the bot token.
func (s *Server) requireInitData(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.botToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		raw := r.Header.Get(backend.InitDataHeader)
		if raw == "" {
			writeMessage(w, http.StatusUnauthorized, "init data required")
			return
		}
		if _, err := host.ValidateInitData(raw, s.botToken, s.maxAge, s.now()); err != nil {
			s.logger.Debug("rejecting init data: %v", err)
			writeMessage(w, http.StatusUnauthorized, "invalid init data")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleIsRegistered(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	writeJSON(w, http.StatusOK, map[string]bool{"isRegistered": s.store.IsRegistered(key)})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req backend.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Address = strings.TrimSpace(req.Address)
	req.Username = strings.TrimSpace(req.Username)
	if req.Address == "" || req.Username == "" {
		writeMessage(w, http.StatusBadRequest, "address and username are required")
		return
	}

	if s.takeInjectedFailure() {
		s.metrics.InjectedFailures.Inc()
		writeMessage(w, http.StatusInternalServerError, "injected failure")
		return
	}

	user, err := s.store.Register(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.Registrations.Inc()
	s.logger.Info("registered %s (referred by %q)", user.Address, user.ReferredBy)
	writeJSON(w, http.StatusCreated, map[string]any{"message": "User registered", "user": user})
}

func (s *Server) takeInjectedFailure() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRegister <= 0 {
		return false
	}
	s.failRegister--
	return true
}

func (s *Server) handleReferralLink(w http.ResponseWriter, r *http.Request) {
	user, _, err := s.store.User(chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, backend.ReferralLink{
		ReferralCode: user.ReferralCode,
		ReferralLink: "https://t.me/" + s.botUsername + "?start=" + user.ReferralCode,
		BotUsername:  s.botUsername,
	})
}

func (s *Server) handleReferralStats(w http.ResponseWriter, r *http.Request) {
	_, count, err := s.store.User(chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, backend.ReferralStats{ReferralCount: count})
}

func (s *Server) handleApplyReferral(w http.ResponseWriter, r *http.Request) {
	var req backend.ApplyReferralRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Address == "" || req.ReferralCode == "" {
		writeMessage(w, http.StatusBadRequest, "address and referralCode are required")
		return
	}
	if err := s.store.ApplyReferral(req.Address, strings.TrimSpace(req.ReferralCode)); err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.ReferralsApplied.Inc()
	writeMessage(w, http.StatusOK, "Referral applied successfully")
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		writeMessage(w, http.StatusBadRequest, "invalid user id")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]backend.Task{"tasks": s.store.Tasks(userID)})
}

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	var req backend.CompleteTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID <= 0 || req.TaskID == "" {
		writeMessage(w, http.StatusBadRequest, "userId and taskId are required")
		return
	}
	res, err := s.store.CompleteTask(req.UserID, req.TaskID)
	s.writeTaskResult(w, res, err)
}

func (s *Server) handleVerifyTask(w http.ResponseWriter, r *http.Request) {
	var req backend.VerifyTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID <= 0 || req.TaskType == "" {
		writeMessage(w, http.StatusBadRequest, "userId and taskType are required")
		return
	}
	res, err := s.store.VerifyTask(req.UserID, req.TaskType)
	s.writeTaskResult(w, res, err)
}

func (s *Server) writeTaskResult(w http.ResponseWriter, res backend.TaskResult, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	if res.Completed() {
		s.metrics.TasksCompleted.Inc()
	}
	writeJSON(w, http.StatusOK, res)
}

// writeError maps store errors to statuses. Anything unexpected is a 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errUserExists):
		status = http.StatusConflict
	case errors.Is(err, errUserNotFound), errors.Is(err, errInvalidCode), errors.Is(err, errTaskNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errSelfReferral), errors.Is(err, errAlreadyApplied), errors.Is(err, errUnknownType):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("unhandled store error: %v", err)
		writeMessage(w, status, "internal error")
		return
	}
	writeMessage(w, status, apperr.UserMessage(err))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
