package domain

import "time"

// Config holds the complete Harrier configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines infrastructure backends
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Business policy
	Scoring  ScoringConfig  `json:"scoring"`
	Decision DecisionConfig `json:"decision"`
	Batch    BatchConfig    `json:"batch"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// ScoringConfig holds the risk-component policy knobs. These are deployment
// configuration, not engine constants: the point values encode business
// policy and vary across installations.
type ScoringConfig struct {
	// DefaultCurrency is assumed when a monetary string carries none.
	DefaultCurrency string `json:"defaultCurrency"`

	// MinPlausibleDate is the floor for document dates; anything earlier
	// scores as a date anomaly.
	MinPlausibleDate time.Time `json:"minPlausibleDate"`

	// Date anomaly point values, each capped into [0,100] after summing.
	DateFuturePenalty     float64 `json:"dateFuturePenalty"`
	DateBeforeMinPenalty  float64 `json:"dateBeforeMinPenalty"`
	DateUnparsablePenalty float64 `json:"dateUnparsablePenalty"`

	// Signature component values.
	SignatureMissingPenalty   float64 `json:"signatureMissingPenalty"`
	SignatureUncertainPenalty float64 `json:"signatureUncertainPenalty"`

	// TextConfidenceThreshold: extraction confidence below this raises
	// the text-quality score proportionally to (threshold - confidence).
	TextConfidenceThreshold float64 `json:"textConfidenceThreshold"`

	// AmountZScoreThreshold: |z| above this against the entity baseline
	// flags an amount anomaly.
	AmountZScoreThreshold float64 `json:"amountZScoreThreshold"`

	// BaselineMinSamples is the minimum entity history size before the
	// statistical amount baseline applies.
	BaselineMinSamples int64 `json:"baselineMinSamples"`

	// BaselineTTL bounds how long a cached entity baseline is reused.
	BaselineTTL time.Duration `json:"baselineTTL"`
}

// DecisionConfig holds the score cut points the per-class threshold tables
// are built from. Scores compare as fractions of 100.
type DecisionConfig struct {
	RejectThreshold   float64 `json:"rejectThreshold"`   // default 0.85
	EscalateThreshold float64 `json:"escalateThreshold"` // default 0.30
}

// BatchConfig holds batch anomaly detector settings.
type BatchConfig struct {
	// ContaminationRate is the fraction of each batch expected to be
	// flagged as outliers.
	ContaminationRate float64 `json:"contaminationRate"`

	// VelocityWindow is the per-entity window for transaction velocity.
	VelocityWindow time.Duration `json:"velocityWindow"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity is the single-node tier with SQLite + channels.
	TierCommunity Tier = "community"

	// TierPro is the clustered tier with PostgreSQL + NATS + Redis.
	TierPro Tier = "pro"
)

// DefaultConfig returns the Community tier configuration with the canonical
// default scoring policy.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./harrier.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Scoring:  DefaultScoringConfig(),
		Decision: DecisionConfig{RejectThreshold: 0.85, EscalateThreshold: 0.30},
		Batch: BatchConfig{
			ContaminationRate: 0.10,
			VelocityWindow:    time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "harrier",
		},
	}
}

// DefaultScoringConfig returns the canonical scoring policy.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		DefaultCurrency:           "USD",
		MinPlausibleDate:          time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
		DateFuturePenalty:         50,
		DateBeforeMinPenalty:      60,
		DateUnparsablePenalty:     100,
		SignatureMissingPenalty:   40,
		SignatureUncertainPenalty: 20,
		TextConfidenceThreshold:   0.70,
		AmountZScoreThreshold:     3.0,
		BaselineMinSamples:        5,
		BaselineTTL:               15 * time.Minute,
	}
}

// ProConfig returns the Pro tier configuration.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "harrier",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       5 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
