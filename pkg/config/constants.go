package config

const (
	EnvPrefix = "STOREFRONT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv         = "STOREFRONT_APP_ENV"
	EnvPort           = "STOREFRONT_APP_PORT"
	EnvDBDSN          = "STOREFRONT_DB_DSN"
	EnvDBHost         = "STOREFRONT_DB_HOST"
	EnvDBUser         = "STOREFRONT_DB_USER"
	EnvDBName         = "STOREFRONT_DB_NAME"
	EnvRedisURL       = "STOREFRONT_REDIS_URL"
	EnvJWTSecret      = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer      = "STOREFRONT_JWT_ISSUER"
	EnvGCPProjectID   = "STOREFRONT_GCP_PROJECT_ID"
	EnvGCSBucket      = "STOREFRONT_GCS_EVIDENCE_BUCKET"
	EnvCheckoutTTL    = "STOREFRONT_CHECKOUT_INTENT_TTL"
	EnvMinReasonChars = "STOREFRONT_CANCELLATION_MIN_REASON"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
