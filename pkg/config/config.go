package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Warehouse WarehouseConfig
	Geo       GeoConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Security  SecurityConfig
	Dashboard DashboardConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type WarehouseConfig struct {
	// Driver is "bigquery" or "sqlite".
	Driver          string
	ProjectID       string
	CredentialsJSON string
	Location        string
	HistoryTable    string
	ForecastTable   string
	SQLitePath      string
	QueryTimeoutSec int
	InitTimeoutSec  int
}

func (c WarehouseConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSec) * time.Second
}

func (c WarehouseConfig) InitTimeout() time.Duration {
	return time.Duration(c.InitTimeoutSec) * time.Second
}

type GeoConfig struct {
	KeyFile           string
	BaseURL           string
	LossDataset       string
	BoundaryTable     string
	BoundaryProperty  string
	TestImage         string
	RequestTimeoutSec int
	InitTimeoutSec    int
	LenientReducers   bool
	PreflightCheck    bool
}

func (c GeoConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

func (c GeoConfig) InitTimeout() time.Duration {
	return time.Duration(c.InitTimeoutSec) * time.Second
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	TTLSec   int
}

func (c RedisConfig) TTL() time.Duration {
	return time.Duration(c.TTLSec) * time.Second
}

type RateLimitConfig struct {
	Enabled              bool
	MaxRequestsPerMinute int
	Burst                int
}

type SecurityConfig struct {
	AllowedOrigins []string
	IsDevelopment  bool
}

type DashboardConfig struct {
	WarehouseSource string
	GeoSource       string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

// Load reads config.yaml (if any), .env.local / .env (if any) and the
// environment. Backend credentials are not required here; the clients report
// a configuration error on first use instead.
func Load() (*Config, error) {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/forest-dashboard")

	v.SetEnvPrefix("FOREST_DASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.Warehouse.Driver = strings.ToLower(strings.TrimSpace(config.Warehouse.Driver))

	return &config, nil
}

func bindEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"warehouse.projectID":       "BIGQUERY_PROJECT_ID",
		"warehouse.credentialsJSON": "BIGQUERY_CREDENTIALS_JSON",
		"geo.keyFile":               "GEE_KEY_FILE",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, "FOREST_DASH_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 120)
	v.SetDefault("server.bodyLimit", 1048576)

	v.SetDefault("warehouse.driver", "bigquery")
	v.SetDefault("warehouse.location", "US")
	v.SetDefault("warehouse.historyTable", "qst843-ecb.climate_ds.v_forest_loss_yearly")
	v.SetDefault("warehouse.forecastTable", "qst843-ecb.climate_ds.forest_loss_forecast_15y")
	v.SetDefault("warehouse.sqlitePath", "./data/warehouse.db")
	v.SetDefault("warehouse.queryTimeoutSec", 30)
	v.SetDefault("warehouse.initTimeoutSec", 30)

	v.SetDefault("geo.keyFile", "keys/gee-service.json")
	v.SetDefault("geo.baseURL", "https://earthengine.googleapis.com")
	v.SetDefault("geo.lossDataset", "UMD/hansen/global_forest_change_2023_v1_11")
	v.SetDefault("geo.boundaryTable", "USDOS/LSIB_SIMPLE/2017")
	v.SetDefault("geo.boundaryProperty", "COUNTRY_NA")
	v.SetDefault("geo.testImage", "COPERNICUS/S2_SR/20210101T100319_20210101T100321_T32UPA")
	v.SetDefault("geo.requestTimeoutSec", 90)
	v.SetDefault("geo.initTimeoutSec", 30)
	v.SetDefault("geo.lenientReducers", false)
	v.SetDefault("geo.preflightCheck", false)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttlSec", 3600)

	v.SetDefault("rateLimit.enabled", true)
	v.SetDefault("rateLimit.maxRequestsPerMinute", 60)
	v.SetDefault("rateLimit.burst", 10)

	v.SetDefault("security.allowedOrigins", []string{})
	v.SetDefault("security.isDevelopment", false)

	v.SetDefault("dashboard.warehouseSource", "BigQuery climate_ds (v_forest_loss_yearly, forest_loss_forecast_15y)")
	v.SetDefault("dashboard.geoSource", "Hansen Global Forest Change v1.11 (2023)")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
