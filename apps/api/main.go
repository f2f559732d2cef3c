package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	echoapi "github.com/trezcool/proofmate/apps/api/echo"
	"github.com/trezcool/proofmate/core"
	"github.com/trezcool/proofmate/core/assignment"
	"github.com/trezcool/proofmate/core/user"
	"github.com/trezcool/proofmate/services/analyzer"
	emailsvc "github.com/trezcool/proofmate/services/email"
	"github.com/trezcool/proofmate/services/filestore"
	logsvc "github.com/trezcool/proofmate/services/logger"
	"github.com/trezcool/proofmate/services/ratelimit"
	"github.com/trezcool/proofmate/storage/database"
	dummydb "github.com/trezcool/proofmate/storage/database/dummy"
	pgrepos "github.com/trezcool/proofmate/storage/database/postgres"
	kvstore "github.com/trezcool/proofmate/storage/kv"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	// set up user DB
	var usrRepo user.Repository
	if conf.Database.Engine == core.BackendMemory {
		dbLogger.Warn("using the in-memory user database: accounts are lost on restart")
		usrRepo = dummydb.NewUserRepository(dummydb.Open())
	} else {
		db, err := setUpDB(conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
		}
		defer func() {
			if err = db.Close(); err != nil {
				dbLogger.Fatal("Failed to close", err)
			}
		}()
		usrRepo = pgrepos.NewUserRepository(db)
	}

	// set up assignment store & solution files
	kv, err := kvstore.New(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening %s store: %v", conf.Store.Backend, err), err)
	}
	defer func() {
		if err = kv.Close(); err != nil {
			dbLogger.Error("Failed to close store", err)
		}
	}()

	files, err := filestore.New(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up %s file store: %v", conf.Files.Backend, err), err)
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	usrSvc := user.NewCachedService(
		user.NewService(usrRepo, mailSvc, conf),
		conf.Cache.UserCacheSize,
		conf.Cache.UserCacheTTL,
	)
	asgSvc := assignment.NewService(kv, analyzer.New(conf, logger), files, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	if err = core.ParseEmailTemplates(true); err != nil {
		logger.Fatal(fmt.Sprintf("parsing email templates: %v", err), err)
	}

	// migrate the store keys written by older clients
	if _, err = asgSvc.Sync(context.Background(), nil); err != nil {
		logger.Error(fmt.Sprintf("syncing store: %v", err), err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rateLimiter := ratelimit.NewStore(conf.RateLimit.RPS, conf.RateLimit.Burst, conf.RateLimit.IdleTTL)
	rateLimiter.StartJanitor(ctx)

	var rateStats ratelimit.StatsRecorder
	if conf.Store.Backend == core.BackendRedis {
		rdb := redis.NewClient(&redis.Options{
			Addr:     conf.Store.RedisAddr,
			Password: conf.Store.RedisPassword,
			DB:       conf.Store.RedisDB,
		})
		defer func() { _ = rdb.Close() }()
		rateStats = ratelimit.NewRedisStats(rdb, conf.Store.KeyPrefix+"ratelimit:stats")
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("store").Set(conf.Store.Backend)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:          conf,
			Logger:        logger,
			UserSvc:       usrSvc,
			AssignmentSvc: asgSvc,
			Validate:      validate,
			Translator:    translator,
			RateLimiter:   rateLimiter,
			RateStats:     rateStats,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB); err != nil {
		return nil, err
	}
	return db, nil
}
