package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const EnvPrefix = "AEGIS"

// Config holds every tunable the service reads at startup.
type Config struct {
	Port     int
	DBPath   string
	LogLevel string
	GinMode  string

	Simulation bool
	Tickers    []string

	VerificationThreshold int
	PlausibleWindow       time.Duration
	Lookback              time.Duration
	ForwardSlack          time.Duration
	MinPanicScore         int
	ContentTimeout        time.Duration

	ImpactDelay       time.Duration
	ImpactSweepWindow time.Duration
	ScanInterval      time.Duration

	MarketBaseURL  string
	YFAPIKey       string
	GeminiAPIKey   string
	GeminiModel    string
	DeepSeekAPIKey string

	RedisAddr string
}

// LoadEnv loads environment variables from .env files when present.
func LoadEnv(logger logrus.FieldLogger) {
	files := []string{".env", ".env.dev"}
	loaded := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Overload(file); err != nil {
			if logger != nil {
				logger.WithError(err).Warnf("Failed to load %s", file)
			}
			continue
		}
		loaded = append(loaded, file)
	}
	if logger == nil {
		return
	}
	if len(loaded) == 0 {
		logger.Debug("No local env files loaded; relying on process environment")
	} else {
		logger.Debugf("Loaded env files: %s", strings.Join(loaded, ", "))
	}
}

// SetDefaults registers defaults and environment bindings on v.
func SetDefaults(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", 8090)
	v.SetDefault("db_path", "aegis.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("gin_mode", "release")
	v.SetDefault("simulation", false)
	v.SetDefault("tickers", "")

	v.SetDefault("verification_threshold", 70)
	v.SetDefault("plausible_window", "15m")
	v.SetDefault("lookback", "30m")
	v.SetDefault("forward_slack", "5m")
	v.SetDefault("min_panic_score", 60)
	v.SetDefault("content_timeout", "20s")

	v.SetDefault("impact_delay", "5m")
	v.SetDefault("impact_sweep_window", "2h")
	v.SetDefault("scan_interval", "5m")

	v.SetDefault("market_base_url", "https://yfapi.net")
	v.SetDefault("gemini_model", "gemini-2.0-flash-lite")
	v.SetDefault("redis_addr", "")

	// ключи провайдеров читаются без префикса
	_ = v.BindEnv("yf_api_key", "YF_API_KEY", EnvPrefix+"_YF_API_KEY")
	_ = v.BindEnv("gemini_api_key", "GEMINI_API_KEY", EnvPrefix+"_GEMINI_API_KEY")
	_ = v.BindEnv("deepseek_api_key", "DEEPSEEK_API_KEY", EnvPrefix+"_DEEPSEEK_API_KEY")
}

// Load reads a Config out of v. SetDefaults must have been called first.
func Load(v *viper.Viper) Config {
	return Config{
		Port:     v.GetInt("port"),
		DBPath:   v.GetString("db_path"),
		LogLevel: v.GetString("log_level"),
		GinMode:  v.GetString("gin_mode"),

		Simulation: v.GetBool("simulation"),
		Tickers:    splitList(v.GetString("tickers")),

		VerificationThreshold: v.GetInt("verification_threshold"),
		PlausibleWindow:       v.GetDuration("plausible_window"),
		Lookback:              v.GetDuration("lookback"),
		ForwardSlack:          v.GetDuration("forward_slack"),
		MinPanicScore:         v.GetInt("min_panic_score"),
		ContentTimeout:        v.GetDuration("content_timeout"),

		ImpactDelay:       v.GetDuration("impact_delay"),
		ImpactSweepWindow: v.GetDuration("impact_sweep_window"),
		ScanInterval:      v.GetDuration("scan_interval"),

		MarketBaseURL:  v.GetString("market_base_url"),
		YFAPIKey:       v.GetString("yf_api_key"),
		GeminiAPIKey:   v.GetString("gemini_api_key"),
		GeminiModel:    v.GetString("gemini_model"),
		DeepSeekAPIKey: v.GetString("deepseek_api_key"),

		RedisAddr: v.GetString("redis_addr"),
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.ToUpper(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
