package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/sso-hub/access"
	"github.com/jrsteele09/sso-hub/authclient"
	"github.com/jrsteele09/sso-hub/authservice"
	"github.com/jrsteele09/sso-hub/directory"
	"github.com/jrsteele09/sso-hub/directory/repofakes"
	"github.com/jrsteele09/sso-hub/internal/config"
	"github.com/jrsteele09/sso-hub/internal/metrics"
	"github.com/jrsteele09/sso-hub/internal/telemetry"
	"github.com/jrsteele09/sso-hub/provisioning"
	"github.com/jrsteele09/sso-hub/ratelimit"
	"github.com/jrsteele09/sso-hub/server"
	"github.com/jrsteele09/sso-hub/sessionstore"
	"github.com/jrsteele09/sso-hub/translate"
)

const (
	redisSessionPrefix = "hub:session"
	redisLimiterPrefix = "hub:signin"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Error().Err(err).Msg("Error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("panic", fmt.Sprint(r)).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.New()
	if err != nil {
		return err
	}
	setupLogging(c.GetEnv())
	displayAppname(c.GetAppName())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, "sso-hub", c.GetOTLPEndpoint())
	if err != nil {
		return fmt.Errorf("telemetry.Setup: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	deps, closeDeps, err := buildDeps(ctx, c)
	if err != nil {
		return err
	}
	defer closeDeps()

	handler, err := server.New(c, deps)
	if err != nil {
		return err
	}
	srv := &http.Server{Addr: c.GetPort(), Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() { serveErr <- listenAndServe(srv) }()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(srv)
}

// buildDeps wires the stores. Postgres and Redis are optional; without them the hub runs on
// in-memory stand-ins, which is only suitable for a single local process.
func buildDeps(ctx context.Context, c config.Config) (server.Deps, func(), error) {
	m := metrics.New()
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var dir directory.Repo
	if url := c.GetDatabaseURL(); url != "" {
		db, err := directory.OpenPostgres(ctx, url)
		if err != nil {
			return server.Deps{}, closeAll, err
		}
		closers = append(closers, func() { _ = db.Close() })
		repo, err := directory.NewPostgresRepo(db)
		if err != nil {
			closeAll()
			return server.Deps{}, closeAll, err
		}
		dir = repo
	} else {
		log.Warn().Msg("DATABASE_URL not set, using an in-memory directory")
		dir = repofakes.NewFakeDirectory()
	}

	limits := ratelimit.Config{Attempts: c.GetSigninAttemptsPerWindow(), Window: c.GetSigninWindow()}
	var (
		backend sessionstore.Backend
		limiter ratelimit.Limiter
	)
	if url := c.GetRedisURL(); url != "" {
		rb, err := sessionstore.NewRedisBackend(ctx, url, redisSessionPrefix)
		if err != nil {
			closeAll()
			return server.Deps{}, closeAll, err
		}
		closers = append(closers, func() { _ = rb.Close() })
		backend = rb
		limiter = ratelimit.NewRedisLimiter(rb.Client(), redisLimiterPrefix, limits)
	} else {
		backend = sessionstore.NewMemoryBackend()
		ml := ratelimit.NewMemoryLimiter(limits)
		ml.StartCleanup(ctx)
		limiter = ml
	}

	kind := sessionstore.Select(c.GetPublicHost(), c.GetParentDomain())
	log.Info().Str("host", c.GetPublicHost()).Str("store", kind.String()).Msg("session store selected")

	authService := authservice.New(c.GetAuthServiceURL(), c.GetAuthServiceAnonKey(), c.GetAuthServiceServiceKey())
	var verifier authclient.TokenVerifier
	if jwks := c.GetAuthJWKSURL(); jwks != "" {
		verifier = authclient.NewOIDCVerifier(ctx, jwks, c.GetAuthIssuer())
	}

	deps := server.Deps{
		Sessions: sessionstore.NewProvider(kind, sessionstore.Options{
			ParentDomain: c.GetParentDomain(),
			MaxAge:       c.GetSessionCookieMaxAge(),
			Backend:      backend,
			Metrics:      m,
		}),
		Factory: authclient.NewFactory(authService, authclient.Options{
			StorageKey:   c.GetSessionStorageKey(),
			ParentDomain: c.GetParentDomain(),
			Verifier:     verifier,
			Metrics:      m,
		}),
		Resolver:     access.NewResolver(dir, access.Options{FleetAppURL: c.GetFleetAppURL(), Metrics: m}),
		Directory:    dir,
		Limiter:      limiter,
		Translator:   translate.New(c.GetTranslateURL(), m),
		Provisioning: provisioning.NewService(authService, dir, c.GetParentDomain()),
		Metrics:      m,
	}
	return deps, closeAll, nil
}

func setupLogging(env string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if env == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	zerolog.DefaultContextLogger = &log.Logger
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
