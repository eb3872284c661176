package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DBConfig holds database configuration
type DBConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Enabled reports whether a ledger database is configured
func (d DBConfig) Enabled() bool {
	return d.Host != ""
}

// Config holds all configuration for the application
type Config struct {
	AppEnv     string
	BaseURL    string
	EndpointID string
	APIKey     string
	OutputDir  string

	HFToken              string
	CustomLoraRepo       string
	CustomLoraWeightName string

	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSRegion          string
	S3Bucket           string
	S3Prefix           string

	DefaultImageWidth     int
	DefaultImageHeight    int
	DefaultNumImages      int
	DefaultInferenceSteps int
	DefaultGuidanceScale  float64
	DefaultNegativePrompt string

	HTTPTimeout       time.Duration
	GenerationTimeout time.Duration
	CheckInterval     time.Duration
	MaxAttempts       int
	DB                DBConfig
}

// Load loads the configuration from an optional .env file and environment variables
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	config := &Config{
		AppEnv:                getEnv("APP_ENV", "production"),
		BaseURL:               getEnv("RUNPOD_BASE_URL", "https://api.runpod.ai/v2"),
		EndpointID:            os.Getenv("RUNPOD_ENDPOINT_ID"),
		APIKey:                os.Getenv("RUNPOD_API_KEY"),
		OutputDir:             getEnv("OUTPUT_DIR", "."),
		HFToken:               os.Getenv("HF_TOKEN"),
		CustomLoraRepo:        os.Getenv("CUSTOM_LORA_REPO"),
		CustomLoraWeightName:  os.Getenv("CUSTOM_LORA_WEIGHT_NAME"),
		AWSAccessKeyID:        os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey:    os.Getenv("AWS_SECRET_ACCESS_KEY"),
		AWSRegion:             getEnv("AWS_REGION", "ap-south-1"),
		S3Bucket:              os.Getenv("S3_BUCKET"),
		S3Prefix:              os.Getenv("S3_PREFIX"),
		DefaultNegativePrompt: os.Getenv("DEFAULT_NEGATIVE_PROMPT"),
	}

	// Load and parse numeric values
	config.DefaultImageWidth = getEnvInt("DEFAULT_IMAGE_WIDTH", 1024)
	config.DefaultImageHeight = getEnvInt("DEFAULT_IMAGE_HEIGHT", 1024)
	config.DefaultNumImages = getEnvInt("DEFAULT_NUM_IMAGES", 1)
	config.DefaultInferenceSteps = getEnvInt("DEFAULT_INFERENCE_STEPS", 28)

	if scale, err := strconv.ParseFloat(os.Getenv("DEFAULT_GUIDANCE_SCALE"), 64); err == nil {
		config.DefaultGuidanceScale = scale
	} else {
		config.DefaultGuidanceScale = 3.5 // default value
	}

	config.HTTPTimeout = time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 300)) * time.Second
	config.GenerationTimeout = time.Duration(getEnvInt("DEFAULT_GENERATION_TIMEOUT", 600)) * time.Second
	config.CheckInterval = time.Duration(getEnvInt("DEFAULT_CHECK_INTERVAL", 2)) * time.Second
	config.MaxAttempts = getEnvInt("DEFAULT_MAX_ATTEMPTS", 150)

	// Load database configuration
	config.DB = DBConfig{
		Host:            os.Getenv("DB_HOST"),
		Port:            getEnvInt("DB_PORT", 5432),
		User:            os.Getenv("DB_USER"),
		Password:        os.Getenv("DB_PASSWORD"),
		Database:        os.Getenv("DB_NAME"),
		SSLMode:         getEnv("DB_SSL_MODE", "disable"),
		MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 25),
		ConnMaxLifetime: time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME", 300)) * time.Second,
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks required fields
func (c *Config) Validate() error {
	if c.EndpointID == "" {
		return fmt.Errorf("RUNPOD_ENDPOINT_ID is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("RUNPOD_API_KEY is required")
	}
	if c.CheckInterval <= 0 {
		return fmt.Errorf("DEFAULT_CHECK_INTERVAL must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("DEFAULT_MAX_ATTEMPTS must be positive")
	}

	// The ledger is optional, but once DB_HOST is set the rest must follow
	if c.DB.Enabled() {
		if c.DB.User == "" {
			return fmt.Errorf("DB_USER is required")
		}
		if c.DB.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required")
		}
		if c.DB.Database == "" {
			return fmt.Errorf("DB_NAME is required")
		}
	}
	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}
