package http

import (
	"log/slog"
	"net/http"

	"github.com/quartzid/quartz/internal/idp/service"
	"github.com/quartzid/quartz/internal/idp/store"
	"github.com/quartzid/quartz/pkg/httpx"
	"github.com/quartzid/quartz/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	store  store.Store
	logger *slog.Logger

	TokenService      *service.TokenService
	AuthorizeService  *service.AuthorizeService
	PasskeyService    *service.PasskeyService
	FederationService *service.FederationService
	TOTPService       *service.AccountTOTPService
	BootstrapService  *service.BootstrapService
}

func NewRouter(st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:    http.NewServeMux(),
		store:  st,
		logger: logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerOAuth2()
	r.registerUserInfo()
	r.registerPasskeys()
	r.registerFederation()
	r.registerAccountTOTP()
	r.registerBootstrap()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// tenantChain prefixes a handler chain with tenant resolution. Every
// tenant-scoped route fails closed when the org cannot be resolved.
func (r *Router) tenantChain(h http.Handler, mws ...httpx.Middleware) http.Handler {
	chain := append([]httpx.Middleware{TenantMiddleware(r.store)}, mws...)
	return httpx.Chain(h, chain...)
}

func (r *Router) validator() httpx.TokenValidator {
	return &bearerValidator{tokens: r.TokenService}
}

func (r *Router) registerOAuth2() {
	authorizeHandler := &AuthorizeHandler{AuthorizeService: r.AuthorizeService}

	// GET /authorize - lenient rate limit (only echoes the login form params)
	r.Mux.Handle("GET /v1/oauth2/authorize",
		r.tenantChain(http.HandlerFunc(authorizeHandler.HandleGet),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	// POST /authorize - strict rate limit (authentication attempts)
	// Rate limited by IP + username form field to prevent brute force
	r.Mux.Handle("POST /v1/oauth2/authorize",
		r.tenantChain(http.HandlerFunc(authorizeHandler.HandlePost),
			httpx.RateLimitByIPAndFormField(httpx.StrictLimit, "username"),
		),
	)

	// POST /token - strict rate limit by IP
	tokenHandler := &TokenHandler{TokenService: r.TokenService}
	r.Mux.Handle("POST /v1/oauth2/token",
		r.tenantChain(tokenHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerUserInfo() {
	h := &UserInfoHandler{Store: r.store}

	secured := r.tenantChain(h,
		httpx.AuthnMiddleware(r.validator()),
		httpx.RequireAnyScope("openid"),
		httpx.RateLimitByUser(httpx.LenientLimit),
	)

	r.Mux.Handle("GET /v1/userinfo", secured)
}

func (r *Router) registerPasskeys() {
	ceremonies := &PasskeyCeremonyHandler{Passkeys: r.PasskeyService}

	// Ceremony endpoints are unauthenticated by nature; strict IP limits
	// keep challenge churn down.
	r.Mux.Handle("POST /v1/passkeys/register/begin",
		r.tenantChain(http.HandlerFunc(ceremonies.HandleRegisterBegin),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/passkeys/register/finish",
		r.tenantChain(http.HandlerFunc(ceremonies.HandleRegisterFinish),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/passkeys/login/begin",
		r.tenantChain(http.HandlerFunc(ceremonies.HandleLoginBegin),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/passkeys/login/finish",
		r.tenantChain(http.HandlerFunc(ceremonies.HandleLoginFinish),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	management := &PasskeyHandler{Passkeys: r.PasskeyService}

	securedList := r.tenantChain(http.HandlerFunc(management.HandleList),
		httpx.AuthnMiddleware(r.validator()),
		httpx.RateLimitByUser(httpx.ModerateLimit),
	)
	securedDelete := r.tenantChain(http.HandlerFunc(management.HandleDelete),
		httpx.AuthnMiddleware(r.validator()),
		httpx.RateLimitByUser(httpx.ModerateLimit),
	)

	r.Mux.Handle("GET /v1/passkeys", securedList)
	r.Mux.Handle("DELETE /v1/passkeys/{credential_id}", securedDelete)
}

func (r *Router) registerFederation() {
	h := &FederationHandler{Federation: r.FederationService}

	r.Mux.Handle("GET /v1/federation/{provider}/callback",
		r.tenantChain(http.HandlerFunc(h.HandleCallback),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerAccountTOTP() {
	h := &AccountTOTPHandler{TOTP: r.TOTPService}

	// POST /accounts/totp/enroll - moderate rate limit by user
	securedEnroll := r.tenantChain(http.HandlerFunc(h.HandleEnroll),
		httpx.AuthnMiddleware(r.validator()),
		httpx.RateLimitByUser(httpx.ModerateLimit),
	)

	// POST /accounts/totp/verify - strict rate limit by user (prevent
	// brute force of TOTP codes)
	securedVerify := r.tenantChain(http.HandlerFunc(h.HandleVerify),
		httpx.AuthnMiddleware(r.validator()),
		httpx.RateLimitByUser(httpx.StrictLimit),
	)

	// DELETE /accounts/totp - strict rate limit by user (requires a code)
	securedDisable := r.tenantChain(http.HandlerFunc(h.HandleDisable),
		httpx.AuthnMiddleware(r.validator()),
		httpx.RateLimitByUser(httpx.StrictLimit),
	)

	r.Mux.Handle("POST /v1/accounts/totp/enroll", securedEnroll)
	r.Mux.Handle("POST /v1/accounts/totp/verify", securedVerify)
	r.Mux.Handle("DELETE /v1/accounts/totp", securedDisable)
}

func (r *Router) registerBootstrap() {
	// POST /bootstrap - very strict rate limit by IP (one-time setup
	// endpoint, no tenant)
	bootstrapHandler := &BootstrapHandler{Bootstrap: r.BootstrapService}
	r.Mux.Handle("POST /v1/bootstrap",
		httpx.Chain(bootstrapHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerSystem() {
	// Lenient limit: monitoring systems may poll frequently
	r.Mux.Handle("GET /healthz",
		httpx.Chain(&HealthHandler{Store: r.store},
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
