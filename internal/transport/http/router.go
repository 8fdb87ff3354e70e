package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"idserver/internal/platform/middleware"
)

// Handlers groups the endpoint handlers the router mounts.
type Handlers struct {
	Authorize *AuthorizeHandler
	Token     *TokenHandler
	Discovery *DiscoveryHandler
	UserInfo  *UserInfoHandler
	Register  *RegistrationHandler
}

// NewRouter assembles the full HTTP surface.
func NewRouter(h Handlers, validator middleware.AccessTokenValidator, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/authorize", h.Authorize.handleAuthorize)
	r.Post("/login", h.Authorize.handleLogin)
	r.Post("/two-factor", h.Authorize.handleTwoFactor)
	r.Post("/consent", h.Authorize.handleConsent)

	r.Post("/token", h.Token.handleToken)
	r.Post("/register", h.Register.handleRegister)

	r.Get("/.well-known/openid-configuration", h.Discovery.handleConfiguration)
	r.Get("/.well-known/jwks.json", h.Discovery.handleJWKS)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireBearer(validator, logger))
		r.Get("/userinfo", h.UserInfo.handleUserInfo)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// requestLogger logs one line per request with the fields dashboards key on.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"request_id", chimiddleware.GetReqID(r.Context()),
			)
		})
	}
}
