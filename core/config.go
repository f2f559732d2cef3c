package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store / file backends
const (
	BackendMemory = "memory"
	BackendBolt   = "bolt"
	BackendRedis  = "redis"
	BackendMinio  = "minio"
)

type Config struct {
	Debug            bool
	TestMode         bool
	AppName          string
	SecretKey        string
	Env              string // DEV, TEST, QA, PROD
	Build            string
	FrontendBaseURL  string
	RollbarToken     string
	SendgridApiKey   string
	DefaultFromEmail mail.Address

	Server struct {
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		JWTCookieExpirationDelta  time.Duration
		DisableReqLogs            bool
		TrustedProxies            []string // CIDRs allowed to set X-Forwarded-For
	}

	Tokens struct {
		PasswordResetTimeout     time.Duration
		EmailVerificationTimeout time.Duration
	}

	Database struct {
		Engine        string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Host          string
		Port          string
		Name          string
		DisableTLS    bool
	}

	Store struct {
		Backend       string
		BoltPath      string
		RedisAddr     string
		RedisPassword string
		RedisDB       int
		KeyPrefix     string
	}

	Files struct {
		Backend       string
		Endpoint      string
		AccessKey     string
		SecretKey     string
		Bucket        string
		Region        string
		UseSSL        bool
		PresignExpiry time.Duration
	}

	Analyzer struct {
		URL     string
		Timeout time.Duration
	}

	RateLimit struct {
		RPS     float64
		Burst   int
		IdleTTL time.Duration
	}

	Cache struct {
		UserCacheSize int
		UserCacheTTL  time.Duration
	}
}

func (c *Config) IsProd() bool { return c.Env == "PROD" }

// Address returns the "host:port" of the database server.
func (c *Config) DatabaseAddress() string {
	return net.JoinHostPort(c.Database.Host, c.Database.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)

	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "ProofMate")
	v.SetDefault("secretKey", "k7u2-pr(0)fm4te$+19=qz&hnx8(w!r)#*c4(#ya7^$dfgm5emz")
	v.SetDefault("build", "develop")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("defaultFromName", "ProofMate")
	v.SetDefault("defaultFromEmail", "noreply@localhost")

	v.SetDefault("server.host", "0.0.0.0:8000")
	v.SetDefault("server.debugHost", "0.0.0.0:4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 30*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtCookieExpirationDelta", 30*24*time.Hour)
	v.SetDefault("server.disableReqLogs", false)
	v.SetDefault("server.trustedProxies", "") // comma separated

	v.SetDefault("tokens.passwordResetTimeout", 10*time.Minute)
	v.SetDefault("tokens.emailVerificationTimeout", 24*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.user", "proofmate")
	v.SetDefault("database.password", "proofmate")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "proofmate")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("store.backend", BackendBolt)
	v.SetDefault("store.boltPath", filepath.Join("data", "proofmate.db"))
	v.SetDefault("store.redisAddr", "localhost:6379")
	v.SetDefault("store.redisPassword", "")
	v.SetDefault("store.redisDB", 0)
	v.SetDefault("store.keyPrefix", "")

	v.SetDefault("files.backend", BackendMemory)
	v.SetDefault("files.endpoint", "localhost:9000")
	v.SetDefault("files.accessKey", "")
	v.SetDefault("files.secretKey", "")
	v.SetDefault("files.bucket", "proofmate-solutions")
	v.SetDefault("files.region", "us-east-1")
	v.SetDefault("files.useSSL", false)
	v.SetDefault("files.presignExpiry", 15*time.Minute)

	v.SetDefault("analyzer.url", "")
	v.SetDefault("analyzer.timeout", 30*time.Second)

	v.SetDefault("rateLimit.rps", 1.0)
	v.SetDefault("rateLimit.burst", 5)
	v.SetDefault("rateLimit.idleTTL", 15*time.Minute)

	v.SetDefault("cache.userCacheSize", 1024)
	v.SetDefault("cache.userCacheTTL", 5*time.Minute)
}

// NewConfig reads the app configuration from defaults, an optional `config/.env.<env>` file and the environment.
// Env vars are prefixed by the ENV name and nested keys are joined by "_" (eg: PROD_SERVER_HOST).
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := new(Config)
	conf.Env = env
	conf.Debug = v.GetBool("debug")
	conf.TestMode = v.GetBool("testMode")
	conf.AppName = v.GetString("appName")
	conf.SecretKey = v.GetString("secretKey")
	conf.Build = v.GetString("build")
	conf.FrontendBaseURL = strings.TrimSuffix(v.GetString("frontendBaseURL"), "/")
	conf.RollbarToken = v.GetString("rollbarToken")
	conf.SendgridApiKey = v.GetString("sendgridApiKey")
	conf.DefaultFromEmail = mail.Address{Name: v.GetString("defaultFromName"), Address: v.GetString("defaultFromEmail")}

	conf.Server.Host = v.GetString("server.host")
	conf.Server.DebugHost = v.GetString("server.debugHost")
	conf.Server.ShutdownTimeout = v.GetDuration("server.shutdownTimeout")
	conf.Server.JWTExpirationDelta = v.GetDuration("server.jwtExpirationDelta")
	conf.Server.JWTRefreshExpirationDelta = v.GetDuration("server.jwtRefreshExpirationDelta")
	conf.Server.JWTCookieExpirationDelta = v.GetDuration("server.jwtCookieExpirationDelta")
	conf.Server.DisableReqLogs = v.GetBool("server.disableReqLogs")
	conf.Server.TrustedProxies = splitList(v.GetString("server.trustedProxies"))

	conf.Tokens.PasswordResetTimeout = v.GetDuration("tokens.passwordResetTimeout")
	conf.Tokens.EmailVerificationTimeout = v.GetDuration("tokens.emailVerificationTimeout")

	conf.Database.Engine = v.GetString("database.engine")
	conf.Database.User = v.GetString("database.user")
	conf.Database.Password = v.GetString("database.password")
	conf.Database.AdminUser = v.GetString("database.adminUser")
	conf.Database.AdminPassword = v.GetString("database.adminPassword")
	conf.Database.Host = v.GetString("database.host")
	conf.Database.Port = v.GetString("database.port")
	conf.Database.Name = v.GetString("database.name")
	conf.Database.DisableTLS = v.GetBool("database.disableTLS")

	conf.Store.Backend = strings.ToLower(v.GetString("store.backend"))
	conf.Store.BoltPath = v.GetString("store.boltPath")
	conf.Store.RedisAddr = v.GetString("store.redisAddr")
	conf.Store.RedisPassword = v.GetString("store.redisPassword")
	conf.Store.RedisDB = v.GetInt("store.redisDB")
	conf.Store.KeyPrefix = v.GetString("store.keyPrefix")

	conf.Files.Backend = strings.ToLower(v.GetString("files.backend"))
	conf.Files.Endpoint = v.GetString("files.endpoint")
	conf.Files.AccessKey = v.GetString("files.accessKey")
	conf.Files.SecretKey = v.GetString("files.secretKey")
	conf.Files.Bucket = v.GetString("files.bucket")
	conf.Files.Region = v.GetString("files.region")
	conf.Files.UseSSL = v.GetBool("files.useSSL")
	conf.Files.PresignExpiry = v.GetDuration("files.presignExpiry")

	conf.Analyzer.URL = strings.TrimSuffix(v.GetString("analyzer.url"), "/")
	conf.Analyzer.Timeout = v.GetDuration("analyzer.timeout")

	conf.RateLimit.RPS = v.GetFloat64("rateLimit.rps")
	conf.RateLimit.Burst = v.GetInt("rateLimit.burst")
	conf.RateLimit.IdleTTL = v.GetDuration("rateLimit.idleTTL")

	conf.Cache.UserCacheSize = v.GetInt("cache.userCacheSize")
	conf.Cache.UserCacheTTL = v.GetDuration("cache.userCacheTTL")

	return conf
}

// splitList splits a comma separated value, dropping blank items.
func splitList(val string) []string {
	var items []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// NewTestConfig returns the configuration used by tests: no env lookups, in-memory backends.
func NewTestConfig() *Config {
	v := viper.New()
	setDefaults(v)

	conf := new(Config)
	conf.Env = "TEST"
	conf.TestMode = true
	conf.AppName = v.GetString("appName")
	conf.SecretKey = "secret"
	conf.Build = "test"
	conf.FrontendBaseURL = "http://frontend.test"
	conf.DefaultFromEmail = mail.Address{Name: "ProofMate", Address: "noreply@proofmate.test"}
	conf.Server.JWTExpirationDelta = v.GetDuration("server.jwtExpirationDelta")
	conf.Server.JWTRefreshExpirationDelta = v.GetDuration("server.jwtRefreshExpirationDelta")
	conf.Server.JWTCookieExpirationDelta = v.GetDuration("server.jwtCookieExpirationDelta")
	conf.Server.DisableReqLogs = true
	conf.Tokens.PasswordResetTimeout = v.GetDuration("tokens.passwordResetTimeout")
	conf.Tokens.EmailVerificationTimeout = v.GetDuration("tokens.emailVerificationTimeout")
	conf.Store.Backend = BackendMemory
	conf.Files.Backend = BackendMemory
	conf.Files.PresignExpiry = v.GetDuration("files.presignExpiry")
	conf.RateLimit.RPS = 1000
	conf.RateLimit.Burst = 1000
	conf.RateLimit.IdleTTL = v.GetDuration("rateLimit.idleTTL")
	conf.Cache.UserCacheSize = 128
	conf.Cache.UserCacheTTL = time.Minute
	return conf
}
