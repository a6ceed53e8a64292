// Package httpapi exposes the authorization core over HTTP: the
// authentication gate, per-route guards, audit middleware and the JSON
// handlers for auth, posts, users, audit and admin.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"gatehouse.dev/internal/audit"
	"gatehouse.dev/internal/auth"
	"gatehouse.dev/internal/obs"
	"gatehouse.dev/internal/posts"
	"gatehouse.dev/internal/rbac"
	"gatehouse.dev/internal/users"
)

// ReadyProbe reports whether backing storage is reachable.
type ReadyProbe interface {
	Ping(ctx context.Context) error
}

// Services bundles the collaborators the handlers call into.
type Services struct {
	Auth   *auth.Service
	Engine *rbac.Engine
	Posts  *posts.Service
	Users  *users.Service
	Audit  *audit.Recorder
	Ready  ReadyProbe
}

// Options tunes the transport.
type Options struct {
	Version       string
	Environment   string
	CORSOrigins   []string
	RateBurst     int
	RatePerSecond int
	LoginLimit    int
	LoginWindow   time.Duration
}

// API is the HTTP layer.
type API struct {
	auth   *auth.Service
	engine *rbac.Engine
	posts  *posts.Service
	users  *users.Service
	audit  *audit.Recorder
	ready  ReadyProbe
	opts   Options
	router chi.Router
}

func New(svc Services, opts Options) *API {
	if svc.Engine == nil {
		svc.Engine = rbac.NewEngine(nil)
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 50
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 20
	}
	if opts.LoginLimit <= 0 {
		opts.LoginLimit = 100
	}
	if opts.LoginWindow <= 0 {
		opts.LoginWindow = 15 * time.Minute
	}
	a := &API{
		auth:   svc.Auth,
		engine: svc.Engine,
		posts:  svc.Posts,
		users:  svc.Users,
		audit:  svc.Audit,
		ready:  svc.Ready,
		opts:   opts,
	}
	a.router = a.routes()
	return a
}

// Handler returns the root handler for the server.
func (a *API) Handler() http.Handler { return a.router }

func (a *API) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(CorrelationID)
	r.Use(obs.Instrument)
	r.Use(RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(SecurityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.opts.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", correlationHeader},
		ExposedHeaders:   []string{correlationHeader},
		AllowCredentials: true,
		MaxAge:           600,
	}))
	r.Use(MaxBodyBytes(maxBodyBytes))

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(RateLimit(a.opts.RateBurst, a.opts.RatePerSecond))

		r.Route("/auth", func(r chi.Router) {
			r.With(a.Audited("register", "user")).Post("/register", a.handleRegister)
			r.With(httprate.Limit(a.opts.LoginLimit, a.opts.LoginWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
					writeError(w, http.StatusTooManyRequests, "Too many login attempts, please try again later")
				}),
			)).Post("/login", a.handleLogin)
			r.Post("/refresh", a.handleRefresh)
			r.With(a.authenticate).Post("/logout", a.handleLogout)
			r.With(a.authenticate).Get("/me", a.handleMe)
		})

		r.Group(func(r chi.Router) {
			r.Use(a.authenticate)

			r.Route("/posts", func(r chi.Router) {
				postOwner := OwnerFromParam(a.posts.Owner)
				r.With(a.Require(rbac.ResourcePosts, rbac.Read)).Get("/", a.handleListPosts)
				r.With(ValidID, a.Require(rbac.ResourcePosts, rbac.Read)).Get("/{id}", a.handleGetPost)
				r.With(a.Require(rbac.ResourcePosts, rbac.Create), a.Audited("create", "post")).Post("/", a.handleCreatePost)
				r.With(ValidID, a.RequireOwnership(rbac.ResourcePosts, rbac.Update, postOwner), a.Audited("update", "post")).Put("/{id}", a.handleUpdatePost)
				r.With(ValidID, a.RequireOwnership(rbac.ResourcePosts, rbac.Delete, postOwner), a.Audited("delete", "post")).Delete("/{id}", a.handleDeletePost)
			})

			r.Route("/users", func(r chi.Router) {
				r.With(a.Require(rbac.ResourceUsers, rbac.Read)).Get("/", a.handleListUsers)
				r.With(ValidID, a.RequireOwnership(rbac.ResourceUsers, rbac.Read, SelfOwned)).Get("/{id}", a.handleGetUser)
				r.With(ValidID, a.Require(rbac.ResourceUsers, rbac.Update), a.Audited("update", "user")).Put("/{id}", a.handleUpdateUser)
				r.With(ValidID, a.Require(rbac.ResourceUsers, rbac.Delete), a.Audited("delete", "user")).Delete("/{id}", a.handleDeleteUser)
			})

			r.With(a.Require(rbac.ResourceAdmin, rbac.ViewLogs)).Get("/audit", a.handleListAudit)
			r.With(a.Require(rbac.ResourceAdmin, rbac.AccessPanel)).Get("/admin/overview", a.handleAdminOverview)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   "gatehouse",
		"version":   a.opts.Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if a.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.ready.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
