package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Server       ServerConfig       `env:",prefix=SERVER_"`
	Postgres     PostgresConfig     `env:",prefix=POSTGRES_"`
	Redis        RedisConfig        `env:",prefix=REDIS_"`
	JWT          JWTConfig          `env:",prefix=JWT_"`
	Verification VerificationConfig `env:",prefix=VERIFICATION_"`
	OAuth        OAuthConfig        `env:",prefix=OAUTH_"`
	Mailer       MailerConfig       `env:",prefix=MAILER_"`
	Security     SecurityConfig     `env:",prefix="`
	CORS         CORSConfig         `env:",prefix=CORS_"`
	Env          string             `env:"ENV,default=development"`
}

type ServerConfig struct {
	Port         string   `env:"PORT,default=8080"`
	Host         string   `env:"HOST,default=0.0.0.0"`
	ReadTimeout  Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout Duration `env:"WRITE_TIMEOUT,default=15s"`
}

type PostgresConfig struct {
	Host           string `env:"HOST,default=localhost"`
	Port           string `env:"PORT,default=5432"`
	User           string `env:"USER,default=identity_service"`
	Password       string `env:"PASSWORD,default=identity_service_password"`
	DBName         string `env:"DB,default=identity_service_db"`
	SSLMode        string `env:"SSLMODE,default=disable"`
	MigrationsPath string `env:"MIGRATIONS_PATH,default=file://migrations"`
}

type RedisConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=6379"`
	Password string `env:"PASSWORD,default="`
	DB       int    `env:"DB,default=0"`
}

type JWTConfig struct {
	Secret             string   `env:"SECRET,required"`
	AccessTokenExpiry  Duration `env:"ACCESS_TOKEN_EXPIRY,default=15m"`
	RefreshTokenExpiry Duration `env:"REFRESH_TOKEN_EXPIRY,default=7d"`
}

type VerificationConfig struct {
	EmailTokenLifetime Duration `env:"EMAIL_TOKEN_LIFETIME,default=24h"`
	ResetTokenLifetime Duration `env:"RESET_TOKEN_LIFETIME,default=1h"`
	ResendCooldown     Duration `env:"RESEND_COOLDOWN,default=60s"`
}

type OAuthConfig struct {
	Google   OAuthProviderConfig `env:",prefix=GOOGLE_"`
	Facebook OAuthProviderConfig `env:",prefix=FACEBOOK_"`
	Apple    AppleConfig         `env:",prefix=APPLE_"`
}

type OAuthProviderConfig struct {
	ClientID     string `env:"CLIENT_ID,default="`
	ClientSecret string `env:"CLIENT_SECRET,default="`
	RedirectURL  string `env:"REDIRECT_URL,default="`
}

type AppleConfig struct {
	ClientID     string   `env:"CLIENT_ID,default="`
	ClientSecret string   `env:"CLIENT_SECRET,default="`
	RedirectURL  string   `env:"REDIRECT_URL,default="`
	Timeout      Duration `env:"TIMEOUT,default=10s"`
	KeyCacheTTL  Duration `env:"KEY_CACHE_TTL,default=1h"`
}

type MailerConfig struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN,default="`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN,default="`
	SenderEmail          string `env:"SENDER_EMAIL,default=no-reply@localhost"`
}

type SecurityConfig struct {
	BCryptCost        int      `env:"BCRYPT_COST,default=12"`
	RateLimitRequests int      `env:"RATE_LIMIT_REQUESTS,default=10"`
	RateLimitWindow   Duration `env:"RATE_LIMIT_WINDOW,default=1m"`
}

type CORSConfig struct {
	AllowedOrigins []string `env:"ALLOWED_ORIGINS,default=http://localhost:3000"`
	AllowedMethods []string `env:"ALLOWED_METHODS,default=GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders []string `env:"ALLOWED_HEADERS,default=Content-Type,Authorization"`
}

// DSN returns PostgreSQL connection string
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

// Address returns Redis connection address
func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	var config Config

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Validate JWT secret length
	if len(config.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters long")
	}

	if config.Verification.ResendCooldown.Duration <= 0 {
		return nil, fmt.Errorf("VERIFICATION_RESEND_COOLDOWN must be positive")
	}

	return &config, nil
}

// LoadWithDefaults loads configuration with default context
func LoadWithDefaults() (*Config, error) {
	return Load(context.Background())
}
