package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort           string `mapstructure:"APP_PORT"`
	DatabaseURL       string `mapstructure:"DATABASE_URL"`
	Env               string `mapstructure:"ENV"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	MaxRequestsPerMin int    `mapstructure:"MAX_REQUESTS_PER_MIN"`

	// Redis configuration.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisCacheDB  int    `mapstructure:"REDIS_CACHE_DB"`
	RedisQueueDB  int    `mapstructure:"REDIS_QUEUE_DB"`

	// Payment gateway.
	StripeKey              string `mapstructure:"STRIPE_KEY"`
	Currency               string `mapstructure:"CURRENCY"`
	PaymentMaxAttempts     int    `mapstructure:"PAYMENT_MAX_ATTEMPTS"`
	PaymentRetryBaseMillis int    `mapstructure:"PAYMENT_RETRY_BASE_MS"`
	GatewayTimeoutSeconds  int    `mapstructure:"GATEWAY_TIMEOUT_SEC"`

	// Response windows, in minutes.
	SOSResponseWindowMin    int `mapstructure:"SOS_RESPONSE_WINDOW_MIN"`
	NormalResponseWindowMin int `mapstructure:"NORMAL_RESPONSE_WINDOW_MIN"`

	// Emergency ranker tuning.
	RankWeightDistance float64 `mapstructure:"RANK_WEIGHT_DISTANCE"`
	RankWeightRating   float64 `mapstructure:"RANK_WEIGHT_RATING"`
	RankWeightResponse float64 `mapstructure:"RANK_WEIGHT_RESPONSE"`
	RankWeightUrgency  float64 `mapstructure:"RANK_WEIGHT_URGENCY"`
	RankTopN           int     `mapstructure:"RANK_TOP_N"`
	RankMaxDistanceKm  float64 `mapstructure:"RANK_MAX_DISTANCE_KM"`
}

var AppConfig Config

func LoadConfig() {
	// Look for a config file named "config.yaml" in the current and "config" directory.
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	// Automatically use environment variables where available.
	viper.AutomaticEnv()

	// Set default values.
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("MAX_REQUESTS_PER_MIN", 100)
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_CACHE_DB", 0)
	viper.SetDefault("REDIS_QUEUE_DB", 3)
	viper.SetDefault("DATABASE_URL", "mongodb://localhost:27017")
	viper.SetDefault("STRIPE_KEY", "")
	viper.SetDefault("CURRENCY", "usd")
	viper.SetDefault("PAYMENT_MAX_ATTEMPTS", 3)
	viper.SetDefault("PAYMENT_RETRY_BASE_MS", 200)
	viper.SetDefault("GATEWAY_TIMEOUT_SEC", 10)
	viper.SetDefault("SOS_RESPONSE_WINDOW_MIN", 15)
	viper.SetDefault("NORMAL_RESPONSE_WINDOW_MIN", 1440)
	viper.SetDefault("RANK_WEIGHT_DISTANCE", 40.0)
	viper.SetDefault("RANK_WEIGHT_RATING", 15.0)
	viper.SetDefault("RANK_WEIGHT_RESPONSE", 25.0)
	viper.SetDefault("RANK_WEIGHT_URGENCY", 20.0)
	viper.SetDefault("RANK_TOP_N", 10)
	viper.SetDefault("RANK_MAX_DISTANCE_KM", 25.0)

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
}

func GetEnv() string {
	return AppConfig.Env
}

func IsProduction() bool {
	return GetEnv() == "production"
}
