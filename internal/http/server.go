package http

import (
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"budget/internal/cache"
	applog "budget/internal/log"
	"budget/internal/middleware/ratelimit"
	"budget/internal/middleware/security"
	"budget/internal/middleware/trace"
	"budget/internal/services"
	appweb "budget/web"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthReporter is implemented by optional connections such as the AMQP client.
type HealthReporter interface {
	Healthy() bool
}

type Config struct {
	Addr               string
	RateLimitPerMinute int
	CORSAllowedOrigins []string
	CookieSecure       bool
	CleanupInterval    time.Duration
}

type Deps struct {
	Budgets  *services.BudgetService
	Auth     *services.AuthService
	Database Pinger
	Events   HealthReporter // nil when events are disabled
	Logger   *applog.Logger
}

type Server struct {
	http.Server

	pages        map[string]*template.Template
	budgets      *services.BudgetService
	auth         *services.AuthService
	database     Pinger
	events       HealthReporter
	cookieSecure bool

	logger           *applog.Logger
	errors           *applog.StructuredLogger
	traceMiddleware  *trace.Middleware
	securityDetector *security.Detector
	rateLimiter      *ratelimit.Limiter
	cacheManager     *cache.Manager

	appMetrics   appMetrics
	shutdownOnce sync.Once
}

type appMetrics struct {
	uptime       time.Time
	logins       int64
	loginFailed  int64
	registered   int64
	transactions int64
}

var pageNames = []string{
	"login.html",
	"register.html",
	"dashboard.html",
	"budget.html",
	"edit_transaction.html",
	"edit_category.html",
	"edit_income.html",
}

// parsePages builds one template set per page, each sharing the layout.
func parsePages(fsys fs.FS) (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(templateFuncs).ParseFS(fsys, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		pages[name] = t
	}
	return pages, nil
}

// NewServer wires middleware, routes and templates into a ready-to-run server.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	httpLogger := logger.WithComponent(applog.ComponentHTTP)

	pages, err := parsePages(appweb.TemplatesFS)
	if err != nil {
		return nil, err
	}

	cleanup := cfg.CleanupInterval
	if cleanup <= 0 {
		cleanup = 10 * time.Minute
	}

	detector := security.NewDetector()
	s := &Server{
		Server: http.Server{
			Addr:              cfg.Addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		pages:            pages,
		budgets:          deps.Budgets,
		auth:             deps.Auth,
		database:         deps.Database,
		events:           deps.Events,
		cookieSecure:     cfg.CookieSecure,
		logger:           httpLogger,
		errors:           applog.NewStructuredLogger(httpLogger),
		traceMiddleware:  trace.NewMiddleware(logger, detector.ExtractClientIP),
		securityDetector: detector,
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: cfg.RateLimitPerMinute,
			Methods:           []string{http.MethodPost},
		}),
		cacheManager: cache.NewManager(),
		appMetrics:   appMetrics{uptime: time.Now()},
	}

	if c := s.budgets.SummaryCache(); c != nil {
		s.cacheManager.Register(c)
	}
	s.cacheManager.Register(sessionSweeper{auth: s.auth})
	s.cacheManager.StartCleanup(cleanup)

	s.Handler = s.routes(cfg)
	return s, nil
}

func (s *Server) routes(cfg Config) http.Handler {
	r := chi.NewRouter()

	r.Use(s.traceMiddleware.Middleware)
	r.Use(chimw.Recoverer)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.securityDetector.Middleware)
	r.Use(s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, nil))
	r.Use(s.loadSession)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		r.With(security.StaticAssetMiddleware(3600)).Handle("/static/*", static)
	} else {
		s.logger.Warn("Failed to mount embedded static FS", "error", err)
	}

	r.Get("/login", s.handleLoginPage)
	r.Post("/login", s.handleLogin)
	r.Get("/register", s.handleRegisterPage)
	r.Post("/register", s.handleRegister)
	r.Get("/logout", s.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)

		r.Get("/", s.handleDashboard)
		r.Get("/budget/{id}", s.handleViewBudget)
		r.Post("/add_budget", s.handleAddBudget)
		r.Post("/rename_budget/{id}", s.handleRenameBudget)
		r.Post("/update_budget", s.handleUpdateBudget)

		r.Post("/add_transaction", s.handleAddTransaction)
		r.Get("/edit_transaction/{id}", s.handleEditTransactionPage)
		r.Post("/edit_transaction/{id}", s.handleEditTransaction)
		r.With(s.requireLinkToken).Get("/delete_transaction/{id}", s.handleDeleteTransaction)

		r.Post("/add_category", s.handleAddCategory)
		r.Get("/edit_category/{id}", s.handleEditCategoryPage)
		r.Post("/edit_category/{id}", s.handleEditCategory)
		r.With(s.requireLinkToken).Get("/delete_category/{id}", s.handleDeleteCategory)

		r.Post("/add_income", s.handleAddIncome)
		r.Get("/edit_income/{id}", s.handleEditIncomePage)
		r.Post("/edit_income/{id}", s.handleEditIncome)
		r.With(s.requireLinkToken).Get("/delete_income/{id}", s.handleDeleteIncome)
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", trace.HeaderRequestID},
			ExposedHeaders:   []string{trace.HeaderRequestID},
			AllowCredentials: true,
			MaxAge:           300,
		}))
		api.Use(s.requireAPISession)
		api.Get("/budgets/{id}/summary", s.handleAPISummary)
	})

	return r
}

// sessionSweeper lets the cache manager purge expired sessions on its schedule.
type sessionSweeper struct {
	auth *services.AuthService
}

func (sw sessionSweeper) CleanExpired() int {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	n, err := sw.auth.PurgeExpiredSessions(ctx)
	if err != nil {
		return 0
	}
	return int(n)
}

// pageData is the envelope every page template receives.
type pageData struct {
	Title    string
	Username string
	Token    string // link token for delete links
	Flash    *Flash
	Data     any
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, page, title string, data any) {
	t, ok := s.pages[page]
	if !ok {
		s.errors.LogError(r.Context(), "Unknown template", fmt.Errorf("template %s not registered", page), applog.OpRender,
			applog.NewFields().WithComponent(applog.ComponentTemplate))
		http.Error(w, "template not found", http.StatusInternalServerError)
		return
	}

	pd := pageData{Title: title, Flash: s.popFlash(w, r), Data: data}
	if sess, ok := currentSession(r.Context()); ok {
		pd.Username = sess.Username
		pd.Token = linkToken(sess.Token)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.ExecuteTemplate(w, "layout", pd); err != nil {
		s.errors.LogError(r.Context(), "Template execution failed", err, applog.OpRender,
			applog.NewFields().WithComponent(applog.ComponentTemplate))
	}
}

// Shutdown stops background cleanup and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) countLogin(ok bool) {
	if ok {
		atomic.AddInt64(&s.appMetrics.logins, 1)
		return
	}
	atomic.AddInt64(&s.appMetrics.loginFailed, 1)
}
