package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	MQTT     MQTTConfig
	SMTP     SMTPConfig
	Pipeline PipelineConfig
	Registry Registry
	Log      LogConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers            []string
	TopicTelemetry     string
	TopicNotifications string
	GroupID            string
}

type MQTTConfig struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TopicTelemetry string
	TopicAlarms    string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

// PipelineConfig tunes the significance/alarm pipeline.
type PipelineConfig struct {
	DedupWindow     time.Duration
	CallTimeout     time.Duration
	ToleranceTemp   float64
	ToleranceHum    float64
	ToleranceOil    float64
	PlaceholderOil  float64
	TolerancePrefix string
}

type LogConfig struct {
	Format string // json or console
}

// Registry holds the static device/plant/alarm lookup tables. The pipeline
// receives these at construction so tests can substitute fixtures.
type Registry struct {
	Plants      map[string]string `json:"plants"`      // device name -> plant name
	DeviceIDs   map[string]int    `json:"device_ids"`  // device name -> numeric id
	AlarmCodeID map[string]int    `json:"alarm_codes"` // alarm code -> numeric id
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	config := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "telemetry_user"),
			Password: getEnv("DB_PASSWORD", "telemetry_pass"),
			DBName:   getEnv("DB_NAME", "telemetry_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:            strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			TopicTelemetry:     getEnv("KAFKA_TOPIC_TELEMETRY", "plant.telemetry.raw"),
			TopicNotifications: getEnv("KAFKA_TOPIC_NOTIFICATIONS", "plant.alarms.notify"),
			GroupID:            getEnv("KAFKA_GROUP_ID", "processor-group"),
		},
		MQTT: MQTTConfig{
			Broker:         getEnv("MQTT_BROKER", "tcp://localhost:1883"),
			ClientID:       getEnv("MQTT_CLIENT_ID", "telemetry-processor"),
			Username:       getEnv("MQTT_USERNAME", ""),
			Password:       getEnv("MQTT_PASSWORD", ""),
			TopicTelemetry: getEnv("MQTT_TOPIC_TELEMETRY", "plant/telemetry"),
			TopicAlarms:    getEnv("MQTT_TOPIC_ALARMS", "plant/alarms"),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "telemetry-pipeline@example.com"),
			To:       getEnv("SMTP_TO", "ops@example.com"),
		},
		Pipeline: PipelineConfig{
			DedupWindow:     getEnvAsDuration("PIPELINE_DEDUP_WINDOW", 1000*time.Millisecond),
			CallTimeout:     getEnvAsDuration("PIPELINE_CALL_TIMEOUT", 5*time.Second),
			ToleranceTemp:   getEnvAsFloat("TOLERANCE_TEMPERATURE", 0.5),
			ToleranceHum:    getEnvAsFloat("TOLERANCE_HUMIDITY", 2.0),
			ToleranceOil:    getEnvAsFloat("TOLERANCE_OIL_LEVEL", 1.0),
			PlaceholderOil:  getEnvAsFloat("PLACEHOLDER_OIL_LEVEL", 50),
			TolerancePrefix: getEnv("TOLERANCE_KEY_PREFIX", "tolerance"),
		},
		Log: LogConfig{
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	registry, err := loadRegistry(getEnv("DEVICE_REGISTRY_FILE", ""))
	if err != nil {
		return nil, err
	}
	config.Registry = *registry

	return config, nil
}

// loadRegistry reads the device registry from a JSON file, falling back to the
// built-in demo fleet when no file is configured.
func loadRegistry(path string) (*Registry, error) {
	if path == "" {
		return DefaultRegistry(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read device registry %s: %w", path, err)
	}

	var reg Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("failed to parse device registry %s: %w", path, err)
	}

	return &reg, nil
}

// DefaultRegistry returns the demo fleet mapping used when no registry file is
// configured.
func DefaultRegistry() *Registry {
	return &Registry{
		Plants: map[string]string{
			"esp32_01": "Plant North",
			"esp32_02": "Plant North",
			"esp32_03": "Plant South",
		},
		DeviceIDs: map[string]int{
			"esp32_01": 1,
			"esp32_02": 2,
			"esp32_03": 3,
		},
		AlarmCodeID: map[string]int{
			"TEMP_HIGH":        14,
			"TEMP_LOW":         14,
			"HUM_HIGH":         14,
			"HUM_LOW":          14,
			"OIL_EMPTY":        15,
			"OIL_CRITICAL_LOW": 15,
			"OIL_LOW":          15,
			"OIL_HALF":         15,
			"ALM_OIL_REFILL":   15,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
