package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/i474232898/dam-monitoring/internal/dam"
)

// AppConfig holds all runtime configuration.
type AppConfig struct {
	Port   string
	AppEnv string

	// HS256 secret for bearer tokens.
	JWTSecret string

	// Prediction service.
	PredictionBaseURL       string
	PredictionTimeout       time.Duration // 0 = none
	PredictionHealthTimeout time.Duration
	PredictionMaxRetries    int
	PredictionWindow        int

	// HealthProbeInterval controls how often the scheduler probes the prediction service.
	HealthProbeInterval time.Duration

	// Reading store.
	StoreBackend     string // memory | postgres
	DatabaseURL      string
	StoreMaxReadings int // max number of readings per dam (0 = unlimited)
	SeedReadings     int

	// Ingestion behaviour.
	CommitMode       dam.CommitMode
	StrictReadings   bool
	StrictThresholds bool

	MQTTBrokerURL     string
	MQTTClientID      string
	MQTTUsername      string
	MQTTPassword      string
	MQTTReadingsTopic string
	MQTTAlertsTopic   string

	KafkaBrokers     []string
	KafkaAlertsTopic string

	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	GeocoderAPIKey string
}

// IsProduction reports whether strict bearer authentication applies.
func (c *AppConfig) IsProduction() bool {
	return c.AppEnv == "production"
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.Port = getenvDefault("PORT", "5000")
	cfg.AppEnv = getenvDefault("APP_ENV", "development")
	cfg.JWTSecret = getenvDefault("JWT_SECRET", "your-secret-key-here")

	cfg.PredictionBaseURL = getenvDefault("PREDICTION_BASE_URL", "http://localhost:5001")
	cfg.PredictionMaxRetries = getenvInt("PREDICTION_MAX_RETRIES", 0)
	cfg.PredictionWindow = getenvInt("PREDICTION_WINDOW", dam.DefaultWindow)

	var err error
	if cfg.PredictionTimeout, err = getenvDuration("PREDICTION_TIMEOUT", "0s"); err != nil {
		return nil, err
	}
	if cfg.PredictionHealthTimeout, err = getenvDuration("PREDICTION_HEALTH_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.HealthProbeInterval, err = getenvDuration("HEALTH_PROBE_INTERVAL", "5m"); err != nil {
		return nil, err
	}

	cfg.StoreBackend = strings.ToLower(getenvDefault("STORE_BACKEND", "memory"))
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.StoreMaxReadings = getenvInt("STORE_MAX_READINGS", 0)
	cfg.SeedReadings = getenvInt("SEED_READINGS", 24)

	switch cfg.StoreBackend {
	case "memory":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when STORE_BACKEND=postgres")
		}
	default:
		return nil, fmt.Errorf("invalid STORE_BACKEND %q: use memory or postgres", cfg.StoreBackend)
	}

	cfg.CommitMode = dam.CommitMode(strings.ToLower(getenvDefault("INGEST_COMMIT_MODE", string(dam.CommitAlways))))
	if cfg.CommitMode != dam.CommitAlways && cfg.CommitMode != dam.CommitTransaction {
		return nil, fmt.Errorf("invalid INGEST_COMMIT_MODE %q: use commit or transaction", cfg.CommitMode)
	}
	cfg.StrictReadings = getenvBool("STRICT_READINGS", false)
	cfg.StrictThresholds = getenvBool("STRICT_THRESHOLDS", false)

	cfg.MQTTBrokerURL = os.Getenv("MQTT_BROKER_URL")
	cfg.MQTTClientID = getenvDefault("MQTT_CLIENT_ID", "dam-monitor")
	cfg.MQTTUsername = os.Getenv("MQTT_USERNAME")
	cfg.MQTTPassword = os.Getenv("MQTT_PASSWORD")
	cfg.MQTTReadingsTopic = getenvDefault("MQTT_READINGS_TOPIC", "dams/+/readings")
	cfg.MQTTAlertsTopic = getenvDefault("MQTT_ALERTS_TOPIC", "dams/alerts")

	cfg.KafkaBrokers = splitList(os.Getenv("KAFKA_BROKERS"))
	cfg.KafkaAlertsTopic = getenvDefault("KAFKA_ALERTS_TOPIC", "dam-alerts")

	cfg.InfluxURL = os.Getenv("INFLUX_URL")
	cfg.InfluxToken = os.Getenv("INFLUX_TOKEN")
	cfg.InfluxOrg = os.Getenv("INFLUX_ORG")
	cfg.InfluxBucket = os.Getenv("INFLUX_BUCKET")

	cfg.GeocoderAPIKey = os.Getenv("GEOCODER_API_KEY")

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
