package config

// EnvPrefix is passed to envconfig; explicit envconfig tags below carry the
// full variable names so the prefix mostly documents intent.
const EnvPrefix = "IMAGEGUARD"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

// Environment variable names shared with tests and deploy tooling.
const (
	EnvAppEnv   = "IMAGEGUARD_APP_ENV"
	EnvPort     = "IMAGEGUARD_APP_PORT"
	EnvLogLevel = "IMAGEGUARD_LOG_LEVEL"

	EnvDBDSN    = "IMAGEGUARD_DB_DSN"
	EnvDBHost   = "IMAGEGUARD_DB_HOST"
	EnvDBUser   = "IMAGEGUARD_DB_USER"
	EnvDBName   = "IMAGEGUARD_DB_NAME"
	EnvRedisURL = "IMAGEGUARD_REDIS_URL"

	EnvJWTSecret  = "IMAGEGUARD_JWT_SECRET"
	EnvJWTIssuer  = "IMAGEGUARD_JWT_ISSUER"
	EnvJWTExpMins = "IMAGEGUARD_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID      = "IMAGEGUARD_GCP_PROJECT_ID"
	EnvGCSAssetBucket    = "IMAGEGUARD_GCS_ASSET_BUCKET"
	EnvGCSEvidenceBucket = "IMAGEGUARD_GCS_EVIDENCE_BUCKET"

	EnvPubSubScanTopic = "IMAGEGUARD_PUBSUB_SCAN_EVENTS_TOPIC"

	EnvGeminiAPIKey     = "IMAGEGUARD_GEMINI_API_KEY"
	EnvScreenshotAPIKey = "IMAGEGUARD_SCREENSHOTONE_API_KEY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
