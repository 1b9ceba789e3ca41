package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	GCS          GCSConfig
	PubSub       PubSubConfig
	Gemini       GeminiConfig
	Screenshot   ScreenshotConfig
	Scan         ScanConfig
	Search       SearchConfig
	Upload       UploadConfig
	Worker       WorkerConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"IMAGEGUARD_APP_ENV" required:"true"`
	Port         string `envconfig:"IMAGEGUARD_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"IMAGEGUARD_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"IMAGEGUARD_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"IMAGEGUARD_DB_DSN"`
	Driver string `envconfig:"IMAGEGUARD_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"IMAGEGUARD_DB_HOST"`
	LegacyPort     int    `envconfig:"IMAGEGUARD_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"IMAGEGUARD_DB_USER"`
	LegacyPassword string `envconfig:"IMAGEGUARD_DB_PASSWORD"`
	LegacyName     string `envconfig:"IMAGEGUARD_DB_NAME"`
	LegacySSLMode  string `envconfig:"IMAGEGUARD_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"IMAGEGUARD_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"IMAGEGUARD_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"IMAGEGUARD_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"IMAGEGUARD_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"IMAGEGUARD_REDIS_URL" required:"true"`
	Address      string        `envconfig:"IMAGEGUARD_REDIS_ADDR"`
	Password     string        `envconfig:"IMAGEGUARD_REDIS_PASSWORD"`
	DB           int           `envconfig:"IMAGEGUARD_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"IMAGEGUARD_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"IMAGEGUARD_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"IMAGEGUARD_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"IMAGEGUARD_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"IMAGEGUARD_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"IMAGEGUARD_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"IMAGEGUARD_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"IMAGEGUARD_JWT_EXPIRATION_MINUTES" required:"true"`
}

// Expiration returns the access token lifetime.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"IMAGEGUARD_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"IMAGEGUARD_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"IMAGEGUARD_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"IMAGEGUARD_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"IMAGEGUARD_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	AssetBucket    string `envconfig:"IMAGEGUARD_GCS_ASSET_BUCKET" required:"true"`
	EvidenceBucket string `envconfig:"IMAGEGUARD_GCS_EVIDENCE_BUCKET" required:"true"`
}

type PubSubConfig struct {
	ScanEventsTopic string `envconfig:"IMAGEGUARD_PUBSUB_SCAN_EVENTS_TOPIC"`
}

type GeminiConfig struct {
	APIKey  string        `envconfig:"IMAGEGUARD_GEMINI_API_KEY"`
	Model   string        `envconfig:"IMAGEGUARD_GEMINI_MODEL" default:"gemini-2.0-flash"`
	Timeout time.Duration `envconfig:"IMAGEGUARD_GEMINI_TIMEOUT" default:"45s"`
}

type ScreenshotConfig struct {
	APIKey       string        `envconfig:"IMAGEGUARD_SCREENSHOTONE_API_KEY"`
	ViewportWide int           `envconfig:"IMAGEGUARD_SCREENSHOT_VIEWPORT_WIDTH" default:"1280"`
	DelaySeconds int           `envconfig:"IMAGEGUARD_SCREENSHOT_DELAY_SECONDS" default:"3"`
	Timeout      time.Duration `envconfig:"IMAGEGUARD_SCREENSHOT_TIMEOUT" default:"60s"`
}

type ScanConfig struct {
	SimilarityThreshold int    `envconfig:"IMAGEGUARD_SCAN_SIMILARITY_THRESHOLD" default:"50"`
	DegradedScore       int    `envconfig:"IMAGEGUARD_SCAN_DEGRADED_SCORE" default:"45"`
	LowDefaultScore     int    `envconfig:"IMAGEGUARD_SCAN_LOW_DEFAULT_SCORE" default:"30"`
	PlatformCandidates  int    `envconfig:"IMAGEGUARD_SCAN_PLATFORM_CANDIDATES" default:"10"`
	MaxKeywords         int    `envconfig:"IMAGEGUARD_SCAN_MAX_KEYWORDS" default:"5"`
	CaseNumberPrefix    string `envconfig:"IMAGEGUARD_CASE_NUMBER_PREFIX" default:"IGP"`
}

type SearchConfig struct {
	GoogleAPIKey string `envconfig:"IMAGEGUARD_GOOGLE_SEARCH_API_KEY"`
	GoogleCSEID  string `envconfig:"IMAGEGUARD_GOOGLE_CSE_ID"`
	SerpAPIKey   string `envconfig:"IMAGEGUARD_SERPAPI_KEY"`
}

type UploadConfig struct {
	MaxUploadMB  int      `envconfig:"IMAGEGUARD_MAX_UPLOAD_MB" default:"10"`
	AllowedMimes []string `envconfig:"IMAGEGUARD_UPLOAD_ALLOWED_MIMES" default:"image/jpeg,image/png,image/webp,image/gif"`
}

type WorkerConfig struct {
	PollInterval    time.Duration `envconfig:"IMAGEGUARD_WORKER_POLL_INTERVAL" default:"1m"`
	PendingScanAge  time.Duration `envconfig:"IMAGEGUARD_WORKER_PENDING_SCAN_AGE" default:"5m"`
	DispatchTimeout time.Duration `envconfig:"IMAGEGUARD_WORKER_DISPATCH_TIMEOUT" default:"10m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
