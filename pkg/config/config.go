package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App         AppConfig
	DB          DBConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Lock        LockConfig
	Retry       RetryConfig
	Idempotency IdempotencyConfig
	Batch       BatchConfig
	Event       EventConfig
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
	Env          string `envconfig:"CBMM_APP_ENV" required:"true"`
	Port         string `envconfig:"CBMM_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CBMM_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CBMM_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"CBMM_DB_DSN"`
	Driver string `envconfig:"CBMM_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CBMM_DB_HOST"`
	LegacyPort     int    `envconfig:"CBMM_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CBMM_DB_USER"`
	LegacyPassword string `envconfig:"CBMM_DB_PASSWORD"`
	LegacyName     string `envconfig:"CBMM_DB_NAME"`
	LegacySSLMode  string `envconfig:"CBMM_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CBMM_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CBMM_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CBMM_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CBMM_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	AutoMigrate bool `envconfig:"CBMM_DB_AUTO_MIGRATE" default:"false"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CBMM_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CBMM_REDIS_ADDR"`
	Password     string        `envconfig:"CBMM_REDIS_PASSWORD"`
	DB           int           `envconfig:"CBMM_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CBMM_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CBMM_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CBMM_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CBMM_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CBMM_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type KafkaConfig struct {
	Brokers        []string      `envconfig:"CBMM_KAFKA_BROKERS" default:"localhost:9092"`
	Topic          string        `envconfig:"CBMM_KAFKA_TOPIC" default:"cbmm-events"`
	GroupID        string        `envconfig:"CBMM_KAFKA_GROUP_ID" default:"cbmm-accounts"`
	MinBytes       int           `envconfig:"CBMM_KAFKA_MIN_BYTES" default:"1"`
	MaxBytes       int           `envconfig:"CBMM_KAFKA_MAX_BYTES" default:"10485760"`
	CommitInterval time.Duration `envconfig:"CBMM_KAFKA_COMMIT_INTERVAL" default:"0s"`
}

type LockConfig struct {
	WaitTimeout   time.Duration `envconfig:"CBMM_LOCK_WAIT_TIMEOUT" default:"5s"`
	LeaseTime     time.Duration `envconfig:"CBMM_LOCK_LEASE_TIME" default:"10s"`
	RetryInterval time.Duration `envconfig:"CBMM_LOCK_RETRY_INTERVAL" default:"50ms"`
}

type RetryConfig struct {
	MaxAttempts  int           `envconfig:"CBMM_RETRY_MAX_ATTEMPTS" default:"3"`
	InitialDelay time.Duration `envconfig:"CBMM_RETRY_INITIAL_DELAY" default:"100ms"`
	MaxDelay     time.Duration `envconfig:"CBMM_RETRY_MAX_DELAY" default:"5s"`
}

type IdempotencyConfig struct {
	TTL time.Duration `envconfig:"CBMM_IDEMPOTENCY_TTL" default:"24h"`
}

type BatchConfig struct {
	MaxConcurrency int   `envconfig:"CBMM_BATCH_MAX_CONCURRENCY" default:"32"`
	MaxFileBytes   int64 `envconfig:"CBMM_BATCH_MAX_FILE_BYTES" default:"10485760"`
}

type EventConfig struct {
	ProcessTimeout time.Duration `envconfig:"CBMM_EVENT_PROCESS_TIMEOUT" default:"30s"`
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
