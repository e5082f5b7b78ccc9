package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/chat"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	appweb "fintrack/web"
)

// Config wires the server to the conversation and its session store.
type Config struct {
	Addr               string
	Controller         *chat.Controller
	Sessions           *chat.SessionStore
	RateLimitPerMinute int
	// SecureCookies forces the Secure flag on the session cookie.
	SecureCookies bool
	// SheetURL, when set, is linked from the chat page.
	SheetURL string
	Logger   *applog.Logger
}

type Server struct {
	http.Server
	templates     *template.Template
	controller    *chat.Controller
	sessions      *chat.SessionStore
	secureCookies bool
	sheetURL      string
	logger        *applog.Logger

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	started          time.Time

	shutdownOnce sync.Once
}

// NewServer parses the embedded templates and configures routes,
// returning a ready-to-run server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Controller == nil || cfg.Sessions == nil {
		return nil, fmt.Errorf("server requires a controller and a session store")
	}
	if cfg.Logger == nil {
		cfg.Logger = applog.New(applog.DefaultConfig())
	}
	logger := cfg.Logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		controller:       cfg.Controller,
		sessions:         cfg.Sessions,
		secureCookies:    cfg.SecureCookies,
		sheetURL:         cfg.SheetURL,
		logger:           logger,
		securityDetector: security.NewDetector(),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: cfg.RateLimitPerMinute,
		}),
		started: time.Now(),
	}
	s.traceMiddleware = trace.NewMiddleware(cfg.Logger, s.securityDetector.ExtractClientIP)

	t, err := template.New("").Funcs(s.templateFuncs()).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.rateLimiter.Stop()
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	s.templates = t

	mux := http.NewServeMux()

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	page := func(h http.Handler) http.Handler {
		return security.NoStore(applog.ComponentMiddleware(applog.ComponentChat)(h))
	}
	mux.Handle("GET /{$}", page(http.HandlerFunc(s.handleIndex)))
	mux.Handle("POST /chat", page(http.HandlerFunc(s.handleChatSubmit)))
	mux.Handle("POST /chat/confirm", page(http.HandlerFunc(s.handleChatConfirm)))
	mux.Handle("POST /chat/amend", page(http.HandlerFunc(s.handleChatAmend)))
	mux.Handle("POST /chat/cancel", page(http.HandlerFunc(s.handleChatCancel)))
	mux.Handle("POST /chat/ack", page(http.HandlerFunc(s.handleChatAcknowledge)))
	mux.Handle("GET /chat", page(http.HandlerFunc(s.handleChatState)))

	mux.HandleFunc("GET /dashboard", s.handleDashboard)
	mux.HandleFunc("GET /ui/summary", s.handleSummaryPartial)
	mux.HandleFunc("GET /api/summary", s.handleSummaryAPI)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.handleRateLimited, http.MethodPost)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.securityDetector.Middleware(true)(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) templateFuncs() template.FuncMap {
	return template.FuncMap{
		"money": func(d decimal.Decimal) string {
			return core.FormatAmount(d, s.controller.CurrencySymbol())
		},
		"date": func(d core.Date) string {
			return d.String()
		},
		// categoriesFor lists the choices offered when amending a pending
		// transaction of type t.
		"categoriesFor": func(t core.TxType) []string {
			return append(s.controller.Categories().ForType(t), core.Uncategorized)
		},
	}
}

// render executes a template into a buffer first so a template error never
// leaves a half-written response.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) ([]byte, bool) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		applog.FromContext(r.Context()).WithComponent(applog.ComponentTemplate).ErrorContext(r.Context(),
			"Template execution failed", "template", name, applog.FieldError, err)
		InternalServerError("Something went wrong rendering this page.").Write(w)
		return nil, false
	}
	return buf.Bytes(), true
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, name string, data any) {
	body, ok := s.render(w, r, name, data)
	if !ok {
		return
	}
	NewHTMXResponse().BodyHTML(string(body)).Write(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WithComponent(applog.ComponentRateLimit).WarnContext(r.Context(),
		"Rate limit exceeded",
		applog.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		applog.FieldPath, r.URL.Path)

	msg := "Too many requests. Please wait a moment and try again."
	if wantsJSON(r) {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: msg})
		return
	}
	ErrorResponse(http.StatusTooManyRequests, msg).TriggerErrorNotification(msg).Write(w)
}
