package configuration

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenantgate/pkg/logging"
)

const Production = "production"

var singleton = sync.OnceValue(func() *Configuration {
	c, err := New([]string{".env", ".env.local"})
	if err != nil {
		panic(err)
	}
	return c
})

// LoadEnv loads the env files that exist, looking next to the go.mod root
// when a file is missing from the working directory.
func LoadEnv(envFiles []string) (int, error) {
	existingFiles := make([]string, 0, len(envFiles))
	root, hasRoot := "", false
	if wd, err := os.Getwd(); err == nil {
		root, hasRoot = findGoModRoot(wd)
	}
	for _, file := range envFiles {
		if fileExists(file) {
			existingFiles = append(existingFiles, file)
			continue
		}
		if hasRoot && !filepath.IsAbs(file) {
			candidate := filepath.Join(root, file)
			if fileExists(candidate) {
				existingFiles = append(existingFiles, candidate)
			}
		}
	}

	if len(existingFiles) == 0 {
		return 0, nil
	}

	return len(existingFiles), godotenv.Load(existingFiles...)
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"tenantgate"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	MaxConns int32  `env:"DB_MAX_CONNS" envDefault:"20"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable pool_max_conns=%d",
		d.Host, d.Port, d.User, d.Name, d.Password, d.MaxConns,
	)
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	TempoURL    string `env:"OTEL_TEMPO_URL" envDefault:"localhost:4318"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"tenantgate"`
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"true"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/metrics"`
}

type RateLimitOptions struct {
	Enabled  bool   `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	Storage  string `env:"RATE_LIMIT_STORAGE" envDefault:"memory"` // memory or redis
	RedisURL string `env:"RATE_LIMIT_REDIS_URL"`
	// Plans maps plan ids to policies, e.g. "free:fixed:60-M,pro:token:20/40".
	Plans         string `env:"RATE_LIMIT_PLANS" envDefault:"free:fixed:60-M,pro:token:20/40,enterprise:sliding:600-M"`
	DefaultPolicy string `env:"RATE_LIMIT_DEFAULT_POLICY" envDefault:"fixed:120-M"`
	AIPolicy      string `env:"RATE_LIMIT_AI_POLICY" envDefault:"fixed:10-M"`
	LoginPerMin   int    `env:"RATE_LIMIT_LOGIN_PER_MINUTE" envDefault:"10"`
}

// Validate checks the rate limit configuration for errors
func (r *RateLimitOptions) Validate() error {
	if r.Storage != "memory" && r.Storage != "redis" {
		return fmt.Errorf("rate limit Storage must be 'memory' or 'redis', got '%s'", r.Storage)
	}
	if r.Storage == "redis" && r.RedisURL == "" {
		return fmt.Errorf("rate limit RedisURL is required when Storage is 'redis'")
	}
	if r.LoginPerMin < 0 {
		return fmt.Errorf("rate limit LoginPerMin must be non-negative, got %d", r.LoginPerMin)
	}
	return nil
}

type TenancyOptions struct {
	HeaderName         string        `env:"TENANT_HEADER" envDefault:"X-Tenant-Id"`
	QueryParamEnabled  bool          `env:"TENANT_QUERY_PARAM_ENABLED" envDefault:"false"`
	ReservedSubdomains []string      `env:"TENANT_RESERVED_SUBDOMAINS" envDefault:"www,api" envSeparator:","`
	TrustProxy         bool          `env:"TRUST_PROXY" envDefault:"false"`
	CacheSlidingTTL    time.Duration `env:"TENANT_CACHE_SLIDING_TTL" envDefault:"5m"`
	CacheAbsoluteTTL   time.Duration `env:"TENANT_CACHE_ABSOLUTE_TTL" envDefault:"30m"`
	RetryAfter         time.Duration `env:"TENANT_PROVISIONING_RETRY_AFTER" envDefault:"30s"`
}

func (t *TenancyOptions) Validate() error {
	if t.CacheSlidingTTL <= 0 || t.CacheAbsoluteTTL <= 0 {
		return fmt.Errorf("tenant cache TTLs must be positive")
	}
	if t.CacheSlidingTTL > t.CacheAbsoluteTTL {
		return fmt.Errorf(
			"TENANT_CACHE_SLIDING_TTL (%s) must not exceed TENANT_CACHE_ABSOLUTE_TTL (%s)",
			t.CacheSlidingTTL, t.CacheAbsoluteTTL,
		)
	}
	if strings.TrimSpace(t.HeaderName) == "" {
		return fmt.Errorf("TENANT_HEADER must not be empty")
	}
	for i, s := range t.ReservedSubdomains {
		t.ReservedSubdomains[i] = strings.ToLower(strings.TrimSpace(s))
	}
	return nil
}

type AuthOptions struct {
	JWTSecret       string        `env:"JWT_SECRET"`
	JWTIssuer       string        `env:"JWT_ISSUER" envDefault:"tenantgate"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`
	BcryptCost      int           `env:"BCRYPT_COST" envDefault:"12"`
}

const minSecretLength = 32

func (a *AuthOptions) validate(environment string) error {
	if a.AccessTokenTTL <= 0 || a.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	if a.AccessTokenTTL >= a.RefreshTokenTTL {
		return fmt.Errorf("ACCESS_TOKEN_TTL (%s) must be shorter than REFRESH_TOKEN_TTL (%s)", a.AccessTokenTTL, a.RefreshTokenTTL)
	}
	if a.BcryptCost < 4 || a.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be within [4, 31], got %d", a.BcryptCost)
	}
	if len(a.JWTSecret) >= minSecretLength {
		return nil
	}
	if environment == Production {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes in production", minSecretLength)
	}
	// Outside production an ephemeral secret keeps the service bootable;
	// issued tokens do not survive a restart.
	b := make([]byte, minSecretLength)
	if _, err := rand.Read(b); err != nil {
		return err
	}
	a.JWTSecret = base64.RawURLEncoding.EncodeToString(b)
	return nil
}

type Configuration struct {
	Database      DatabaseOptions
	OpenTelemetry OpenTelemetryOptions
	Prometheus    PrometheusOptions
	RateLimit     RateLimitOptions
	Tenancy       TenancyOptions
	Auth          AuthOptions

	ServerPort       int    `env:"PORT" envDefault:"3200"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	SocketAddress    string `env:"-"`
	Origin           string `env:"ORIGIN" envDefault:"http://localhost:3200"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`
	LogPath          string `env:"LOG_PATH"`
	AllowlistPath    string `env:"ROUTING_ALLOWLIST_PATH"`
	// Incoming request id header; a uuid is generated when it is absent.
	RequestIDHeader string `env:"REQUEST_ID_HEADER" envDefault:"X-Request-ID"`
	// Client ip header set by the proxy; read only with TRUST_PROXY=true,
	// otherwise RemoteAddr is used.
	RealIPHeader string `env:"REAL_IP_HEADER" envDefault:"X-Real-IP"`

	// Ops endpoints guard (/health, /metrics). Enforced only in production.
	OpsGuardEnabled bool   `env:"OPS_GUARD_ENABLED" envDefault:"true"`
	OpsGuardCIDRs   string `env:"OPS_GUARD_CIDRS" envDefault:""`
	OpsGuardToken   string `env:"OPS_GUARD_TOKEN" envDefault:""`

	logFile *os.File
	logger  *logrus.Logger
}

// New builds a configuration from the given env files and the process environment.
func New(envFiles []string) (*Configuration, error) {
	c := &Configuration{}
	if err := c.load(envFiles); err != nil {
		c.Unload()
		return nil, err
	}
	return c, nil
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func (c *Configuration) IsProduction() bool {
	return c.GoAppEnvironment == Production
}

func Use() *Configuration {
	return singleton()
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 && len(envFiles) > 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}

	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate limit configuration error: %w", err)
	}
	if err := c.Tenancy.Validate(); err != nil {
		return fmt.Errorf("tenancy configuration error: %w", err)
	}
	if err := c.Auth.validate(c.GoAppEnvironment); err != nil {
		return fmt.Errorf("auth configuration error: %w", err)
	}

	if c.LogPath != "" {
		f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
		if err != nil {
			return err
		}
		c.logFile = f
		c.logger = logger
	} else {
		c.logger = logging.ConsoleLogger(c.LogrusLogLevel())
	}

	c.Database.Opts = c.Database.ConnectionString()
	if c.IsProduction() {
		c.SocketAddress = fmt.Sprintf(":%d", c.ServerPort)
	} else {
		c.SocketAddress = fmt.Sprintf("localhost:%d", c.ServerPort)
	}
	return nil
}

// Unload handles a graceful shutdown.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
	}
}

var storeNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// ValidStoreName reports whether name can be used as a tenant schema name.
func ValidStoreName(name string) bool {
	return storeNamePattern.MatchString(name)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func findGoModRoot(start string) (string, bool) {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}
