package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`

	TLS struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`

	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`

	Session struct {
		Secret   string        `mapstructure:"SECRET"`
		TokenTTL time.Duration `mapstructure:"TOKEN_TTL"`
	} `mapstructure:"SESSION"`

	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBName         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConn     int           `mapstructure:"MAX_OPEN_CONN"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`

	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`

	AccessControl struct {
		Model  string `mapstructure:"MODEL"`
		Policy string `mapstructure:"POLICY"`
	} `mapstructure:"ACCESS_CONTROL"`

	Currency struct {
		HomeCode       string `mapstructure:"HOME_CODE"`
		DisplayDefault string `mapstructure:"DISPLAY_DEFAULT"`
	} `mapstructure:"CURRENCY"`

	Provider struct {
		HTTPTimeout     time.Duration `mapstructure:"HTTP_TIMEOUT"`
		SyncInterval    time.Duration `mapstructure:"SYNC_INTERVAL"`
		BalanceCacheTTL time.Duration `mapstructure:"BALANCE_CACHE_TTL"`
	} `mapstructure:"PROVIDER"`

	Payment struct {
		CallbackKey string `mapstructure:"CALLBACK_KEY"`
	} `mapstructure:"PAYMENT"`

	Affiliate struct {
		DefaultRate float64       `mapstructure:"DEFAULT_RATE"`
		CookieTTL   time.Duration `mapstructure:"COOKIE_TTL"`
	} `mapstructure:"AFFILIATE"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func LoadConfig() *Config {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		zap.L().Error("failed to read config file", zap.Error(err))
		os.Exit(1)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	applyDefaults(&cfg)

	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Session.TokenTTL == 0 {
		cfg.Session.TokenTTL = 24 * time.Hour
	}
	if cfg.Currency.HomeCode == "" {
		cfg.Currency.HomeCode = "USD"
	}
	if cfg.Currency.DisplayDefault == "" {
		cfg.Currency.DisplayDefault = "USD"
	}
	if cfg.Provider.HTTPTimeout == 0 {
		cfg.Provider.HTTPTimeout = 30 * time.Second
	}
	if cfg.Provider.SyncInterval == 0 {
		cfg.Provider.SyncInterval = 5 * time.Minute
	}
	if cfg.Provider.BalanceCacheTTL == 0 {
		cfg.Provider.BalanceCacheTTL = 10 * time.Minute
	}
	if cfg.Affiliate.CookieTTL == 0 {
		cfg.Affiliate.CookieTTL = 30 * 24 * time.Hour
	}
}
