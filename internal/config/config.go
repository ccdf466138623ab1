package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port string `mapstructure:"PORT"`
	Env  string `mapstructure:"ENV"`

	UploadDir      string `mapstructure:"UPLOAD_DIR"`
	MaxUploadBytes int64  `mapstructure:"MAX_UPLOAD_BYTES"`

	DBType     string `mapstructure:"DB_TYPE"`
	DBPath     string `mapstructure:"DB_PATH"`
	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     int    `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`

	InferenceURL        string `mapstructure:"INFERENCE_URL"`
	InferenceTimeoutSec int    `mapstructure:"INFERENCE_TIMEOUT_SEC"`
	UseMockPredictor    bool   `mapstructure:"USE_MOCK_PREDICTOR"`

	PositiveThreshold float64 `mapstructure:"POSITIVE_THRESHOLD"`
	HighRiskThreshold float64 `mapstructure:"HIGH_RISK_THRESHOLD"`

	CareProviders        string  `mapstructure:"CARE_PROVIDERS"`
	GoogleMapsAPIKey     string  `mapstructure:"GOOGLE_MAPS_API_KEY"`
	OverpassEndpoint     string  `mapstructure:"OVERPASS_ENDPOINT"`
	StaticFacilitiesFile string  `mapstructure:"STATIC_FACILITIES_FILE"`
	CareRadiusKm         float64 `mapstructure:"CARE_RADIUS_KM"`
	CareTopN             int     `mapstructure:"CARE_TOP_N"`
	CareCacheTTLSec      int     `mapstructure:"CARE_CACHE_TTL_SEC"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("UPLOAD_DIR", "./uploads")
	v.SetDefault("MAX_UPLOAD_BYTES", 10<<20)
	v.SetDefault("DB_TYPE", "sqlite")
	v.SetDefault("DB_PATH", "./xrayaid.db")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("INFERENCE_URL", "http://localhost:8000")
	v.SetDefault("INFERENCE_TIMEOUT_SEC", 30)
	v.SetDefault("USE_MOCK_PREDICTOR", false)
	v.SetDefault("POSITIVE_THRESHOLD", 0.25)
	v.SetDefault("HIGH_RISK_THRESHOLD", 0.60)
	v.SetDefault("CARE_PROVIDERS", "google,overpass,static")
	v.SetDefault("CARE_RADIUS_KM", 50)
	v.SetDefault("CARE_TOP_N", 5)
	v.SetDefault("CARE_CACHE_TTL_SEC", 300)

	for _, key := range []string{
		"PORT", "ENV", "UPLOAD_DIR", "MAX_UPLOAD_BYTES",
		"DB_TYPE", "DB_PATH", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME",
		"INFERENCE_URL", "INFERENCE_TIMEOUT_SEC", "USE_MOCK_PREDICTOR",
		"POSITIVE_THRESHOLD", "HIGH_RISK_THRESHOLD",
		"CARE_PROVIDERS", "GOOGLE_MAPS_API_KEY", "OVERPASS_ENDPOINT",
		"STATIC_FACILITIES_FILE", "CARE_RADIUS_KM", "CARE_TOP_N",
		"CARE_CACHE_TTL_SEC",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	// The .env file is a development convenience, not a requirement.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// ProviderList returns the care provider fallback order.
func (c *Config) ProviderList() []string {
	parts := strings.Split(c.CareProviders, ",")
	providers := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			providers = append(providers, p)
		}
	}
	return providers
}

func (c *Config) InferenceTimeout() time.Duration {
	return time.Duration(c.InferenceTimeoutSec) * time.Second
}

func (c *Config) CareCacheTTL() time.Duration {
	return time.Duration(c.CareCacheTTLSec) * time.Second
}

func (c *Config) Validate() error {
	switch c.DBType {
	case "sqlite":
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH is required when DB_TYPE is sqlite")
		}
	case "postgres":
		if c.DBHost == "" || c.DBName == "" {
			return fmt.Errorf("DB_HOST and DB_NAME are required when DB_TYPE is postgres")
		}
	default:
		return fmt.Errorf("DB_TYPE must be \"sqlite\" or \"postgres\", got %q", c.DBType)
	}

	if c.PositiveThreshold <= 0 || c.PositiveThreshold >= 1 {
		return fmt.Errorf("POSITIVE_THRESHOLD must be in (0, 1), got %g", c.PositiveThreshold)
	}
	if c.HighRiskThreshold <= c.PositiveThreshold || c.HighRiskThreshold >= 1 {
		return fmt.Errorf("HIGH_RISK_THRESHOLD must be in (POSITIVE_THRESHOLD, 1), got %g", c.HighRiskThreshold)
	}

	for _, p := range c.ProviderList() {
		switch p {
		case "google", "overpass", "static":
		default:
			return fmt.Errorf("unknown care provider %q in CARE_PROVIDERS", p)
		}
	}
	if len(c.ProviderList()) == 0 {
		return fmt.Errorf("CARE_PROVIDERS must name at least one provider")
	}

	return nil
}
