package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

const devSecret = "supersecret-dev-key"

type Config struct {
	Mode     Mode   `validate:"oneof=offline online"`
	HTTPAddr string `validate:"required"`

	DBDriver string `validate:"oneof=sqlite postgres"`
	DBDSN    string

	AuthSecret      string `validate:"required,min=16"`
	EnableLocalAuth bool
	EnableGuestAuth bool
	AdminUser       string
	AdminPassHash   string // bcrypt; empty disables seeding

	BlobDriver     string `validate:"oneof=fs minio"`
	BlobBasePath   string `validate:"required_if=BlobDriver fs"`
	MinioEndpoint  string `validate:"required_if=BlobDriver minio"`
	MinioAccessKey string `validate:"required_if=BlobDriver minio"`
	MinioSecretKey string `validate:"required_if=BlobDriver minio"`
	MinioBucket    string `validate:"required_if=BlobDriver minio"`
	MinioUseSSL    bool

	RedisAddr     string // empty disables session resume
	RedisPassword string
	RedisDB       int           `validate:"gte=0"`
	SessionTTL    time.Duration `validate:"gt=0"`

	AMQPURL       string // empty keeps events in the log only
	RelayInterval time.Duration `validate:"gt=0"`

	Judge0URL       string `validate:"omitempty,url"`
	Judge0APIKey    string
	Judge0Host      string
	CodePollTimeout time.Duration `validate:"gt=0"`
	CodeConcurrency int           `validate:"gt=0,lte=32"`
	MinCodeLength   int           `validate:"gte=0"`

	CORSOrigins []string `validate:"min=1,dive,required"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("MODE", string(ModeOffline))
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_DSN", "")
	v.SetDefault("AUTH_HMAC_SECRET", devSecret)
	v.SetDefault("ENABLE_LOCAL_AUTH", true)
	v.SetDefault("ENABLE_GUEST_AUTH", false)
	v.SetDefault("ADMIN_USER", "admin")
	v.SetDefault("ADMIN_PASS_HASH", "")
	v.SetDefault("BLOB_DRIVER", "fs")
	v.SetDefault("BLOB_BASE_PATH", "./data")
	v.SetDefault("MINIO_ENDPOINT", "")
	v.SetDefault("MINIO_ACCESS_KEY", "")
	v.SetDefault("MINIO_SECRET_KEY", "")
	v.SetDefault("MINIO_BUCKET", "algodrill")
	v.SetDefault("MINIO_USE_SSL", false)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("AMQP_URL", "")
	v.SetDefault("RELAY_INTERVAL", "2s")
	v.SetDefault("JUDGE0_URL", "")
	v.SetDefault("JUDGE0_API_KEY", "")
	v.SetDefault("JUDGE0_HOST", "")
	v.SetDefault("CODE_POLL_TIMEOUT", "10s")
	v.SetDefault("CODE_CONCURRENCY", 4)
	v.SetDefault("MIN_CODE_LENGTH", 10)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
}

// FromEnv reads configuration from the environment, after loading a .env file
// from the working directory when one exists.
func FromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("config: .env: %v", err)
	}
	v := viper.New()
	defaults(v)
	v.AutomaticEnv()

	cfg := Config{
		Mode:     Mode(strings.ToLower(v.GetString("MODE"))),
		HTTPAddr: v.GetString("HTTP_ADDR"),

		DBDriver: v.GetString("DB_DRIVER"),
		DBDSN:    v.GetString("DB_DSN"),

		AuthSecret:      v.GetString("AUTH_HMAC_SECRET"),
		EnableLocalAuth: v.GetBool("ENABLE_LOCAL_AUTH"),
		EnableGuestAuth: v.GetBool("ENABLE_GUEST_AUTH"),
		AdminUser:       v.GetString("ADMIN_USER"),
		AdminPassHash:   v.GetString("ADMIN_PASS_HASH"),

		BlobDriver:     v.GetString("BLOB_DRIVER"),
		BlobBasePath:   v.GetString("BLOB_BASE_PATH"),
		MinioEndpoint:  v.GetString("MINIO_ENDPOINT"),
		MinioAccessKey: v.GetString("MINIO_ACCESS_KEY"),
		MinioSecretKey: v.GetString("MINIO_SECRET_KEY"),
		MinioBucket:    v.GetString("MINIO_BUCKET"),
		MinioUseSSL:    v.GetBool("MINIO_USE_SSL"),

		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),
		SessionTTL:    v.GetDuration("SESSION_TTL"),

		AMQPURL:       v.GetString("AMQP_URL"),
		RelayInterval: v.GetDuration("RELAY_INTERVAL"),

		Judge0URL:       v.GetString("JUDGE0_URL"),
		Judge0APIKey:    v.GetString("JUDGE0_API_KEY"),
		Judge0Host:      v.GetString("JUDGE0_HOST"),
		CodePollTimeout: v.GetDuration("CODE_POLL_TIMEOUT"),
		CodeConcurrency: v.GetInt("CODE_CONCURRENCY"),
		MinCodeLength:   v.GetInt("MIN_CODE_LENGTH"),

		CORSOrigins: csv(v.GetString("CORS_ORIGINS")),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field rules. Online mode refuses the development secret.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config: %w", err)
	}
	if c.Mode == ModeOnline && c.AuthSecret == devSecret {
		return errors.New("config: AUTH_HMAC_SECRET must be set in online mode")
	}
	return nil
}

func csv(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
