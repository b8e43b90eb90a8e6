package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"resumatch.org/internal/identity"
	"resumatch.org/internal/obs"
)

// ReadyProbe checks downstream readiness (database ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options tunes the HTTP layer.
type Options struct {
	// FrontendOrigin is the browser origin allowed to call with credentials.
	FrontendOrigin string
	// SecureCookies disables the Secure/Partitioned cookie attributes when
	// false (plain-HTTP local development only).
	SecureCookies bool
	// RateBurst/RatePerSecond configure the per-IP limiter; zero values pick
	// defaults.
	RateBurst     int
	RatePerSecond int
}

// API is the HTTP layer over the identity service.
type API struct {
	mux           *http.ServeMux
	svc           *identity.Service
	validate      *validator.Validate
	readyProbe    ReadyProbe
	version       string
	secureCookies bool
	opts          Options
}

func New(svc *identity.Service, rp ReadyProbe, version string, opts Options) *API {
	if opts.RateBurst <= 0 {
		opts.RateBurst = 20
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 10
	}
	a := &API{
		mux:           http.NewServeMux(),
		svc:           svc,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		readyProbe:    rp,
		version:       version,
		secureCookies: opts.SecureCookies,
		opts:          opts,
	}

	// signup flow
	a.mux.HandleFunc("/signup-sendotp", a.handleSignupSendOTP)
	a.mux.HandleFunc("/signup-verifyotp", a.handleSignupVerifyOTP)
	a.mux.HandleFunc("/resend-otp", a.handleResendOTP)
	a.mux.HandleFunc("/create-password", a.handleCreatePassword)

	// session flow
	a.mux.HandleFunc("/signin", a.handleSignIn)
	a.mux.HandleFunc("/refresh-token", a.handleRefreshToken)
	a.mux.Handle("/user-info", a.withAuth(http.HandlerFunc(a.handleUserInfo)))

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = RateLimit(h, a.opts.RateBurst, a.opts.RatePerSecond)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h, a.opts.FrontendOrigin)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- health handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "resumatch-auth",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "resumatch-auth",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
