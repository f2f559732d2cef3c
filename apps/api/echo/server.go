package echoapi

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/proofmate/core"
	"github.com/trezcool/proofmate/core/assignment"
	"github.com/trezcool/proofmate/core/user"
	"github.com/trezcool/proofmate/services/ratelimit"
)

type (
	ServerDeps struct {
		Conf          *core.Config
		Logger        core.Logger
		UserSvc       user.Service
		AssignmentSvc assignment.Service
		Validate      *validator.Validate
		Translator    ut.Translator

		// optional
		Registry    *prometheus.Registry    // a new registry is used when nil
		RateLimiter *ratelimit.Store        // built from Conf.RateLimit when nil
		RateStats   ratelimit.StatsRecorder // rate limit decisions are not recorded when nil
	}

	Server interface {
		http.Handler
		Start()
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
		Shutdown(ctx context.Context) error
		Close() error
	}

	server struct {
		deps     ServerDeps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(deps ServerDeps) Server {
	if deps.Registry == nil {
		deps.Registry = prometheus.NewRegistry()
	}
	if deps.RateLimiter == nil {
		rl := deps.Conf.RateLimit
		deps.RateLimiter = ratelimit.NewStore(rl.RPS, rl.Burst, rl.IdleTTL)
	}

	s := &server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Debug = conf.Debug
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(&s.deps, s.signalShutdown)

	ipExtractor, err := newIPExtractor(conf.Server.TrustedProxies)
	if err != nil {
		s.deps.Logger.Fatal("setting up ip extractor", err)
	}
	s.app.IPExtractor = ipExtractor

	metrics, err := newHTTPMetrics(s.deps.Registry)
	if err != nil {
		s.deps.Logger.Fatal("setting up metrics", err)
	}

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(
		middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}),
		middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     []string{conf.FrontendBaseURL},
			AllowCredentials: true,
		}),
		metrics.middleware(),
	)

	s.app.GET("/", home)
	s.app.GET(metricsPath, echo.WrapHandler(promhttp.HandlerFor(s.deps.Registry, promhttp.HandlerOpts{})))

	api := s.app.Group("/api")
	auth := authMiddleware(conf, s.deps.UserSvc)
	limit := rateLimitMiddleware(s.deps.RateLimiter, s.deps.RateStats, s.deps.Logger)

	registerAuthAPI(api, auth, limit, authApi{conf: conf, svc: s.deps.UserSvc, validate: s.deps.Validate})
	registerUserAPI(api, auth, userApi{svc: s.deps.UserSvc, validate: s.deps.Validate})
	registerAssignmentAPI(api, auth, assignmentApi{
		conf:     conf,
		svc:      s.deps.AssignmentSvc,
		validate: s.deps.Validate,
	})
	registerDashboardAPI(api, auth, dashboardApi{svc: s.deps.AssignmentSvc})
}

// newIPExtractor reads client IPs from the connection, or from X-Forwarded-For when the request comes through
// one of trustedProxies (CIDRs).
func newIPExtractor(trustedProxies []string) (echo.IPExtractor, error) {
	if len(trustedProxies) == 0 {
		return echo.ExtractIPDirect(), nil
	}
	opts := []echo.TrustOption{echo.TrustLoopback(false), echo.TrustLinkLocal(false), echo.TrustPrivateNet(false)}
	for _, cidr := range trustedProxies {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing trusted proxy %q", cidr)
		}
		opts = append(opts, echo.TrustIPRange(ipNet))
	}
	return echo.ExtractIPFromXFFHeader(opts...), nil
}

// Start blocks serving HTTP requests; failures are reported on Errors().
func (s *server) Start() {
	s.deps.Logger.Info("API listening on " + s.deps.Conf.Server.Host)
	if err := s.app.Start(s.deps.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *server) Errors() <-chan error { return s.errors }

func (s *server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

func (s *server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already shutting down
	}
}

func (s *server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error { return s.app.Close() }

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to ProofMate API!")
}
