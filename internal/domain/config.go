package domain

import "time"

// Config holds the complete Shrike configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines backing-service selection
	Tier Tier `json:"tier"`

	// Detection thresholds for the abuse engine
	Detection DetectionConfig `json:"detection"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// AuditHashKey keys the one-way id hashing in audit entries. Optional;
	// unkeyed SHA-256 is used when empty.
	AuditHashKey string `json:"-"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// DetectionConfig is the immutable set of tunable detection constants.
// Supplied once at engine construction; the engine never reads the
// environment itself.
type DetectionConfig struct {
	// Reciprocity
	ReciprocityWindowDays    int `json:"reciprocityWindowDays"`
	ReciprocityThreshold     int `json:"reciprocityThreshold"`
	MutualExchangeThreshold  int `json:"mutualExchangeThreshold"`

	// Frequency
	DailyLimit   int `json:"dailyLimit"`
	WeeklyLimit  int `json:"weeklyLimit"`
	// MonthlyLimit is configured for parity with the other limits but is
	// folded into the weekly check; no separate monthly query runs.
	MonthlyLimit int `json:"monthlyLimit"`

	// Content
	MinReasonLength    int `json:"minReasonLength"`
	MaxDuplicateReason int `json:"maxDuplicateReason"`
	DuplicateWindowDays int `json:"duplicateWindowDays"`

	// Weight manipulation. SevereWeightThreshold is the HIGH/MEDIUM cutoff
	// for evidenceless high weight; it is deliberately distinct from
	// HighWeightThreshold.
	HighWeightThreshold   float64 `json:"highWeightThreshold"`
	SevereWeightThreshold float64 `json:"severeWeightThreshold"`
	WeightVariance        float64 `json:"weightVariance"`

	// Severity aggregation
	SeverityPoints map[Severity]int `json:"severityPoints"`
	CriticalScore  int              `json:"criticalScore"`
	HighScore      int              `json:"highScore"`
	MediumScore    int              `json:"mediumScore"`

	// Weight adjustment
	PenaltyFactors map[FlagType]float64 `json:"penaltyFactors"`
	WeightFloor    float64              `json:"weightFloor"`

	// DetectorTimeout bounds one full detector pass; expiry is treated as
	// any other detection error (fail-open).
	DetectorTimeout time.Duration `json:"detectorTimeout"`
}

// DefaultDetectionConfig returns the standard threshold set.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		ReciprocityWindowDays:   7,
		ReciprocityThreshold:    5,
		MutualExchangeThreshold: 3,

		DailyLimit:   10,
		WeeklyLimit:  50,
		MonthlyLimit: 100,

		MinReasonLength:     20,
		MaxDuplicateReason:  3,
		DuplicateWindowDays: 30,

		HighWeightThreshold:   2.5,
		SevereWeightThreshold: 3.5,
		WeightVariance:        0.5,

		SeverityPoints: map[Severity]int{
			SeverityLow:      1,
			SeverityMedium:   5,
			SeverityHigh:     10,
			SeverityCritical: 20,
		},
		CriticalScore: 20,
		HighScore:     10,
		MediumScore:   5,

		PenaltyFactors: map[FlagType]float64{
			FlagReciprocity:        0.7,
			FlagFrequency:          0.8,
			FlagContent:            0.9,
			FlagWeightManipulation: 0.3,
			FlagEvidence:           0.4,
		},
		WeightFloor: 0.1,

		DetectorTimeout: 3 * time.Second,
	}
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
	Endpoint    string `json:"endpoint"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + in-process channels + LRU cache.
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis.
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for the Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier:      TierCommunity,
		Detection: DefaultDetectionConfig(),
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./shrike.db",
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
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "shrike",
		},
	}
}

// ProConfig returns a configuration for the Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "shrike",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
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
