package config

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds all configuration for the spectrometer daemon
type Config struct {
	Server     ServerConfig
	Ingest     IngestConfig
	S3         S3Config
	Acquire    AcquireConfig
	Processing ProcessingConfig
	Data       DataConfig
}

// ServerConfig holds the device control API configuration
type ServerConfig struct {
	Port           string
	Env            string
	AllowedOrigins []string
}

// IngestConfig holds packet delivery configuration
type IngestConfig struct {
	URL           string
	MaxElapsed    time.Duration
	QueueCapacity int
	SpoolCapacity int
}

// S3Config holds the snapshot archive configuration; an empty bucket
// disables archiving
type S3Config struct {
	Region    string
	Bucket    string
	Endpoint  string
	KeyPrefix string
}

// AcquireConfig holds frame acquisition configuration
type AcquireConfig struct {
	FrameDir      string
	Width         int
	Ceiling       float64
	Period        time.Duration
	QueueCapacity int
}

// ProcessingConfig holds the signal-processing tunables. The source
// hardware never fixed these; they are deliberately all exposed.
type ProcessingConfig struct {
	PolyDegree      int
	BandTop         int
	BandBottom      int
	Aggregation     string
	SmoothingSigma  float64
	MinProminence   float64
	MinSeparationNm float64
	ReferenceGain   float64
	Epsilon         float64
}

// DataConfig holds where calibration and reference frames live on disk
type DataConfig struct {
	Dir string
}

// Load loads configuration from environment variables and .env files
func Load() (*Config, error) {
	// Set defaults
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("ENVIRONMENT", "dev")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")
	viper.SetDefault("INGEST_URL", "http://localhost:5000/ingest")
	viper.SetDefault("INGEST_MAX_ELAPSED", "30s")
	viper.SetDefault("INGEST_QUEUE_CAPACITY", 8)
	viper.SetDefault("INGEST_SPOOL_CAPACITY", 64)
	viper.SetDefault("AWS_REGION", "us-east-1")
	viper.SetDefault("S3_BUCKET", "")
	viper.SetDefault("S3_ENDPOINT", "")
	viper.SetDefault("S3_KEY_PREFIX", "captures")
	viper.SetDefault("FRAME_DIR", "frames")
	viper.SetDefault("SENSOR_WIDTH", 1280)
	viper.SetDefault("SENSOR_CEILING", 255.0)
	viper.SetDefault("CAPTURE_PERIOD", "15s")
	viper.SetDefault("FRAME_QUEUE_CAPACITY", 4)
	viper.SetDefault("POLY_DEGREE", 3)
	viper.SetDefault("BAND_TOP", 220)
	viper.SetDefault("BAND_BOTTOM", 260)
	viper.SetDefault("BAND_AGGREGATION", "mean")
	viper.SetDefault("SMOOTHING_SIGMA", 2.0)
	viper.SetDefault("MIN_PROMINENCE", 0.05)
	viper.SetDefault("MIN_SEPARATION_NM", 10.0)
	viper.SetDefault("REFERENCE_GAIN", 255.0)
	viper.SetDefault("CORRECTION_EPSILON", 1.0)
	viper.SetDefault("DATA_DIR", "data")

	// Read from .env files based on environment
	env := viper.GetString("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}
	viper.SetConfigName(".env." + env)
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig() // Ignore error - file may not exist

	// Environment variables override .env file values
	viper.AutomaticEnv()

	viper.BindEnv("PORT")
	viper.BindEnv("ENVIRONMENT")
	viper.BindEnv("ALLOWED_ORIGINS")
	viper.BindEnv("INGEST_URL")
	viper.BindEnv("INGEST_MAX_ELAPSED")
	viper.BindEnv("INGEST_QUEUE_CAPACITY")
	viper.BindEnv("INGEST_SPOOL_CAPACITY")
	viper.BindEnv("AWS_REGION")
	viper.BindEnv("S3_BUCKET")
	viper.BindEnv("S3_ENDPOINT")
	viper.BindEnv("S3_KEY_PREFIX")
	viper.BindEnv("FRAME_DIR")
	viper.BindEnv("SENSOR_WIDTH")
	viper.BindEnv("SENSOR_CEILING")
	viper.BindEnv("CAPTURE_PERIOD")
	viper.BindEnv("FRAME_QUEUE_CAPACITY")
	viper.BindEnv("POLY_DEGREE")
	viper.BindEnv("BAND_TOP")
	viper.BindEnv("BAND_BOTTOM")
	viper.BindEnv("BAND_AGGREGATION")
	viper.BindEnv("SMOOTHING_SIGMA")
	viper.BindEnv("MIN_PROMINENCE")
	viper.BindEnv("MIN_SEPARATION_NM")
	viper.BindEnv("REFERENCE_GAIN")
	viper.BindEnv("CORRECTION_EPSILON")
	viper.BindEnv("DATA_DIR")

	var config Config
	config.Server.Port = viper.GetString("PORT")
	config.Server.Env = viper.GetString("ENVIRONMENT")
	config.Server.AllowedOrigins = strings.Split(viper.GetString("ALLOWED_ORIGINS"), ",")
	config.Ingest.URL = viper.GetString("INGEST_URL")
	config.Ingest.MaxElapsed = viper.GetDuration("INGEST_MAX_ELAPSED")
	config.Ingest.QueueCapacity = viper.GetInt("INGEST_QUEUE_CAPACITY")
	config.Ingest.SpoolCapacity = viper.GetInt("INGEST_SPOOL_CAPACITY")
	config.S3.Region = viper.GetString("AWS_REGION")
	config.S3.Bucket = viper.GetString("S3_BUCKET")
	config.S3.Endpoint = viper.GetString("S3_ENDPOINT")
	config.S3.KeyPrefix = viper.GetString("S3_KEY_PREFIX")
	config.Acquire.FrameDir = viper.GetString("FRAME_DIR")
	config.Acquire.Width = viper.GetInt("SENSOR_WIDTH")
	config.Acquire.Ceiling = viper.GetFloat64("SENSOR_CEILING")
	config.Acquire.Period = viper.GetDuration("CAPTURE_PERIOD")
	config.Acquire.QueueCapacity = viper.GetInt("FRAME_QUEUE_CAPACITY")
	config.Processing.PolyDegree = viper.GetInt("POLY_DEGREE")
	config.Processing.BandTop = viper.GetInt("BAND_TOP")
	config.Processing.BandBottom = viper.GetInt("BAND_BOTTOM")
	config.Processing.Aggregation = viper.GetString("BAND_AGGREGATION")
	config.Processing.SmoothingSigma = viper.GetFloat64("SMOOTHING_SIGMA")
	config.Processing.MinProminence = viper.GetFloat64("MIN_PROMINENCE")
	config.Processing.MinSeparationNm = viper.GetFloat64("MIN_SEPARATION_NM")
	config.Processing.ReferenceGain = viper.GetFloat64("REFERENCE_GAIN")
	config.Processing.Epsilon = viper.GetFloat64("CORRECTION_EPSILON")
	config.Data.Dir = viper.GetString("DATA_DIR")

	log.Info().
		Str("env", config.Server.Env).
		Str("ingest", config.Ingest.URL).
		Int("polyDegree", config.Processing.PolyDegree).
		Msg("Configuration loaded")

	return &config, nil
}
