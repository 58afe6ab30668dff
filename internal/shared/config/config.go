package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"corridor-server/internal/shared/utils"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Auth       AuthConfig
	Gateway    GatewayConfig
	Logging    LoggingConfig
	RateLimit  RateLimitConfig
	Simulation SimulationConfig
	Content    ContentConfig
	Journal    JournalConfig
}

type RedisConfig struct {
	Enabled  bool
	URL      string
	Host     string
	Port     string
	Password string
	DB       int
	Channel  string
}

type ServerConfig struct {
	Port            string
	Environment     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsPath  string
}

type AuthConfig struct {
	JWTSecret       string
	TokenExpiration time.Duration
	Issuer          string
}

type GatewayConfig struct {
	AllowedOrigins []string
	CORSDebug      bool
}

type LoggingConfig struct {
	Level      string
	Format     string
	JSONFormat bool
}

type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	BurstSize         int
	TrustProxy        bool
}

// SimulationConfig holds the tick intervals and timing constants of the
// background loops.
type SimulationConfig struct {
	JobTickInterval        time.Duration
	QuestTickInterval      time.Duration
	BeaconTickInterval     time.Duration
	NewsTickInterval       time.Duration
	VoteSweepInterval      time.Duration
	HeartbeatEvery         int
	TransitCleanupDelay    time.Duration
	EvacuationGrace        time.Duration
	FinaleDelay            time.Duration
	EndgameErrorBackoff    time.Duration
	EmergencyBeaconDelay   time.Duration
	EmergencyBeaconSpacing time.Duration
	RadioBeaconSpacing     time.Duration
	VoteTimeout            time.Duration
	RadioRangeSystems      int
	InterferenceAmplitude  float64
	GameTimeScale          float64
	GameEpoch              time.Time
	GameAnchor             time.Time
	RandomSeed             int64
}

type ContentConfig struct {
	CatalogPath string
}

type JournalConfig struct {
	Enabled bool
	Dir     string
	Prefix  string
}

var GlobalConfig *Config

func Init() error {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using system environment variables")
	}

	config, err := load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := config.validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	GlobalConfig = config
	return nil
}

func load() (*Config, error) {
	simulation, err := loadSimulationConfig()
	if err != nil {
		return nil, err
	}

	config := &Config{
		Server:     loadServerConfig(),
		Database:   loadDatabaseConfig(),
		Redis:      loadRedisConfig(),
		Auth:       loadAuthConfig(),
		Gateway:    loadGatewayConfig(),
		Logging:    loadLoggingConfig(),
		RateLimit:  loadRateLimitConfig(),
		Simulation: simulation,
		Content:    loadContentConfig(),
		Journal:    loadJournalConfig(),
	}

	return config, nil
}

func loadRedisConfig() RedisConfig {
	enabled := utils.GetEnv("REDIS_ENABLED", "false") == "true"
	db, _ := strconv.Atoi(utils.GetEnv("REDIS_DB", "0"))

	return RedisConfig{
		Enabled:  enabled,
		URL:      utils.GetEnv("REDIS_URL", ""),
		Host:     utils.GetEnv("REDIS_HOST", "localhost"),
		Port:     utils.GetEnv("REDIS_PORT", "6379"),
		Password: utils.GetEnv("REDIS_PASSWORD", ""),
		DB:       db,
		Channel:  utils.GetEnv("REDIS_NOTIFY_CHANNEL", "corridor:notifications"),
	}
}

func loadServerConfig() ServerConfig {
	readTimeout, _ := strconv.Atoi(utils.GetEnv("SERVER_READ_TIMEOUT_SECONDS", "15"))
	writeTimeout, _ := strconv.Atoi(utils.GetEnv("SERVER_WRITE_TIMEOUT_SECONDS", "15"))
	idleTimeout, _ := strconv.Atoi(utils.GetEnv("SERVER_IDLE_TIMEOUT_SECONDS", "60"))

	return ServerConfig{
		Port:            utils.GetEnv("SERVER_PORT", "8080"),
		Environment:     utils.GetEnv("ENVIRONMENT", "development"),
		ReadTimeout:     time.Duration(readTimeout) * time.Second,
		WriteTimeout:    time.Duration(writeTimeout) * time.Second,
		IdleTimeout:     time.Duration(idleTimeout) * time.Second,
		ShutdownTimeout: utils.GetEnvSeconds("SERVER_SHUTDOWN_TIMEOUT_SECONDS", 20),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	maxOpenConns, _ := strconv.Atoi(utils.GetEnv("DB_MAX_OPEN_CONNS", "25"))
	maxIdleConns, _ := strconv.Atoi(utils.GetEnv("DB_MAX_IDLE_CONNS", "5"))
	connMaxLifetime, _ := strconv.Atoi(utils.GetEnv("DB_CONN_MAX_LIFETIME_MINUTES", "5"))

	return DatabaseConfig{
		Host:            utils.GetEnv("DB_HOST", "localhost"),
		Port:            utils.GetEnv("DB_PORT", "5432"),
		User:            utils.GetEnv("DB_USER", "postgres"),
		Password:        utils.GetEnv("DB_PASSWORD", "postgres"),
		Name:            utils.GetEnv("DB_NAME", "corridors"),
		SSLMode:         utils.GetEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    maxOpenConns,
		MaxIdleConns:    maxIdleConns,
		ConnMaxLifetime: time.Duration(connMaxLifetime) * time.Minute,
		MigrationsPath:  utils.GetEnv("DB_MIGRATIONS_PATH", "migrations"),
	}
}

func loadAuthConfig() AuthConfig {
	tokenExpiration, _ := strconv.Atoi(utils.GetEnv("JWT_EXPIRATION_HOURS", "720"))

	return AuthConfig{
		JWTSecret:       utils.GetEnv("JWT_SECRET", ""),
		TokenExpiration: time.Duration(tokenExpiration) * time.Hour,
		Issuer:          utils.GetEnv("JWT_ISSUER", "corridor-server"),
	}
}

func loadGatewayConfig() GatewayConfig {
	var origins []string
	for _, origin := range strings.Split(utils.GetEnv("GATEWAY_ALLOWED_ORIGINS", "http://localhost:3000"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}

	return GatewayConfig{
		AllowedOrigins: origins,
		CORSDebug:      utils.GetEnv("CORS_DEBUG", "") == "true",
	}
}

func loadLoggingConfig() LoggingConfig {
	environment := utils.GetEnv("ENVIRONMENT", "development")
	jsonFormat := environment == "production" || utils.GetEnv("LOG_FORMAT", "text") == "json"

	return LoggingConfig{
		Level:      utils.GetEnv("LOG_LEVEL", "debug"),
		Format:     utils.GetEnv("LOG_FORMAT", "text"),
		JSONFormat: jsonFormat,
	}
}

func loadRateLimitConfig() RateLimitConfig {
	enabled := utils.GetEnv("RATE_LIMIT_ENABLED", "true") == "true"
	requestsPerSecond, _ := strconv.ParseFloat(utils.GetEnv("RATE_LIMIT_REQUESTS_PER_SECOND", "2"), 64)
	burstSize, _ := strconv.Atoi(utils.GetEnv("RATE_LIMIT_BURST_SIZE", "5"))

	return RateLimitConfig{
		Enabled:           enabled,
		RequestsPerSecond: requestsPerSecond,
		BurstSize:         burstSize,
		TrustProxy:        utils.GetEnvBool("RATE_LIMIT_TRUST_PROXY", false),
	}
}

func loadSimulationConfig() (SimulationConfig, error) {
	epoch, err := time.Parse(time.RFC3339, utils.GetEnv("GAME_EPOCH", "2751-01-01T00:00:00Z"))
	if err != nil {
		return SimulationConfig{}, fmt.Errorf("GAME_EPOCH must be RFC3339: %w", err)
	}
	anchor, err := time.Parse(time.RFC3339, utils.GetEnv("GAME_ANCHOR", "2026-01-01T00:00:00Z"))
	if err != nil {
		return SimulationConfig{}, fmt.Errorf("GAME_ANCHOR must be RFC3339: %w", err)
	}

	return SimulationConfig{
		JobTickInterval:        utils.GetEnvSeconds("SIM_JOB_TICK_SECONDS", 60),
		QuestTickInterval:      utils.GetEnvSeconds("SIM_QUEST_TICK_SECONDS", 30),
		BeaconTickInterval:     utils.GetEnvSeconds("SIM_BEACON_TICK_SECONDS", 60),
		NewsTickInterval:       utils.GetEnvSeconds("SIM_NEWS_TICK_SECONDS", 30),
		VoteSweepInterval:      utils.GetEnvSeconds("SIM_VOTE_SWEEP_SECONDS", 60),
		HeartbeatEvery:         utils.GetEnvInt("SIM_HEARTBEAT_EVERY", 10),
		TransitCleanupDelay:    utils.GetEnvSeconds("SIM_TRANSIT_CLEANUP_SECONDS", 30),
		EvacuationGrace:        utils.GetEnvSeconds("SIM_EVACUATION_GRACE_SECONDS", 300),
		FinaleDelay:            utils.GetEnvSeconds("SIM_FINALE_DELAY_SECONDS", 60),
		EndgameErrorBackoff:    utils.GetEnvSeconds("SIM_ENDGAME_ERROR_BACKOFF_SECONDS", 60),
		EmergencyBeaconDelay:   utils.GetEnvSeconds("SIM_EMERGENCY_BEACON_DELAY_SECONDS", 30),
		EmergencyBeaconSpacing: utils.GetEnvSeconds("SIM_EMERGENCY_BEACON_SPACING_SECONDS", 1800),
		RadioBeaconSpacing:     utils.GetEnvSeconds("SIM_RADIO_BEACON_SPACING_SECONDS", 3600),
		VoteTimeout:            utils.GetEnvSeconds("SIM_VOTE_TIMEOUT_SECONDS", 300),
		RadioRangeSystems:      utils.GetEnvInt("SIM_RADIO_RANGE_SYSTEMS", 3),
		InterferenceAmplitude:  utils.GetEnvFloat("SIM_INTERFERENCE_AMPLITUDE", 5),
		GameTimeScale:          utils.GetEnvFloat("GAME_TIME_SCALE", 4),
		GameEpoch:              epoch,
		GameAnchor:             anchor,
		RandomSeed:             int64(utils.GetEnvInt("SIM_RANDOM_SEED", 0)),
	}, nil
}

func loadContentConfig() ContentConfig {
	return ContentConfig{
		CatalogPath: utils.GetEnv("CONTENT_CATALOG_PATH", ""),
	}
}

func loadJournalConfig() JournalConfig {
	return JournalConfig{
		Enabled: utils.GetEnvBool("JOURNAL_ENABLED", true),
		Dir:     utils.GetEnv("JOURNAL_DIR", "data/journal"),
		Prefix:  utils.GetEnv("JOURNAL_PREFIX", "events"),
	}
}

func (c *Config) validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters long")
	}

	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}

	if c.Database.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}

	if c.Simulation.JobTickInterval <= 0 || c.Simulation.QuestTickInterval <= 0 || c.Simulation.BeaconTickInterval <= 0 {
		return fmt.Errorf("simulation tick intervals must be positive")
	}

	if c.Simulation.GameTimeScale <= 0 {
		return fmt.Errorf("GAME_TIME_SCALE must be positive")
	}

	return nil
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}
