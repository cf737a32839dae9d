package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Limits  LimitsConfig  `mapstructure:"limits"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Stats   StatsConfig   `mapstructure:"stats"`
	Logger  LoggerConfig  `mapstructure:"logger"`
}

// LimitsConfig são os limites padrão de cada agente e os parâmetros do gate.
type LimitsConfig struct {
	PerSecond    uint                     `mapstructure:"per_second"`
	PerMinute    uint                     `mapstructure:"per_minute"`
	Penalty      time.Duration            `mapstructure:"penalty"`
	PollInterval time.Duration            `mapstructure:"poll_interval"`
	PruneEvery   time.Duration            `mapstructure:"prune_every"`
	Overrides    map[string]LimitOverride `mapstructure:"overrides"`
}

// LimitOverride define a cota de um agente específico. Zero mantém o padrão.
type LimitOverride struct {
	PerSecond uint `mapstructure:"per_second"`
	PerMinute uint `mapstructure:"per_minute"`
}

type GatewayConfig struct {
	Listen           string        `mapstructure:"listen"`
	Upstream         string        `mapstructure:"upstream"`
	AgentHeader      string        `mapstructure:"agent_header"`
	EndpointFromPath bool          `mapstructure:"endpoint_from_path"`
	Mode             string        `mapstructure:"mode"`
	WaitTimeout      time.Duration `mapstructure:"wait_timeout"`
	TrustXFF         bool          `mapstructure:"trust_xff"`
	RateLimitHeaders bool          `mapstructure:"rate_limit_headers"`
}

type MonitorConfig struct {
	Listen string `mapstructure:"listen"`
	// URL é usado pelos comandos de cliente (status, reset, limits).
	URL string `mapstructure:"url"`
}

type StatsConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	Prefix        string        `mapstructure:"prefix"`
	TTL           time.Duration `mapstructure:"ttl"`
	Bucket        string        `mapstructure:"bucket"`
	TrackAgents   bool          `mapstructure:"track_agents"`
	TrackRoutes   bool          `mapstructure:"track_routes"`
}

type LoggerConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Load lê o arquivo (se houver) e as variáveis ADMISSION_*.
// Sem path explícito procura configs/gateway.yaml; a ausência do arquivo não é erro.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ADMISSION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("gateway")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("limits.per_second", 10)
	v.SetDefault("limits.per_minute", 600)
	v.SetDefault("limits.penalty", "5s")
	v.SetDefault("limits.poll_interval", "100ms")
	v.SetDefault("limits.prune_every", "1m")

	v.SetDefault("gateway.listen", ":8080")
	v.SetDefault("gateway.upstream", "http://localhost:8081")
	v.SetDefault("gateway.agent_header", "X-Agent-ID")
	v.SetDefault("gateway.endpoint_from_path", false)
	v.SetDefault("gateway.mode", "reject")
	v.SetDefault("gateway.wait_timeout", "2s")
	v.SetDefault("gateway.trust_xff", false)
	v.SetDefault("gateway.rate_limit_headers", true)

	v.SetDefault("monitor.listen", ":9090")
	v.SetDefault("monitor.url", "http://localhost:9090")

	v.SetDefault("stats.enabled", false)
	v.SetDefault("stats.redis_addr", "localhost:6379")
	v.SetDefault("stats.redis_password", "")
	v.SetDefault("stats.redis_db", 0)
	v.SetDefault("stats.prefix", "admission:stats")
	v.SetDefault("stats.ttl", "24h")
	v.SetDefault("stats.bucket", "minute")
	v.SetDefault("stats.track_agents", true)
	v.SetDefault("stats.track_routes", false)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.output", "stderr")
}

func (c *Config) Validate() error {
	var errs []error

	if c.Limits.PerSecond == 0 {
		errs = append(errs, errors.New("limits.per_second must be > 0"))
	}
	if c.Limits.PerMinute == 0 {
		errs = append(errs, errors.New("limits.per_minute must be > 0"))
	}
	if c.Limits.Penalty <= 0 {
		errs = append(errs, errors.New("limits.penalty must be > 0"))
	}
	if c.Limits.PollInterval <= 0 {
		errs = append(errs, errors.New("limits.poll_interval must be > 0"))
	}
	if c.Limits.PruneEvery < 0 {
		errs = append(errs, errors.New("limits.prune_every must be >= 0"))
	}

	switch c.Gateway.Mode {
	case "reject", "wait":
	default:
		errs = append(errs, fmt.Errorf("gateway.mode must be reject or wait, got %q", c.Gateway.Mode))
	}
	if c.Gateway.WaitTimeout < 0 {
		errs = append(errs, errors.New("gateway.wait_timeout must be >= 0"))
	}
	if u, err := url.Parse(c.Gateway.Upstream); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("gateway.upstream must be an absolute URL, got %q", c.Gateway.Upstream))
	}

	if c.Stats.Enabled && strings.TrimSpace(c.Stats.RedisAddr) == "" {
		errs = append(errs, errors.New("stats.redis_addr is required when stats.enabled=true"))
	}
	switch c.Stats.Bucket {
	case "minute", "none":
	default:
		errs = append(errs, fmt.Errorf("stats.bucket must be minute or none, got %q", c.Stats.Bucket))
	}

	switch strings.ToLower(c.Logger.Format) {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logger.format must be console or json, got %q", c.Logger.Format))
	}

	return errors.Join(errs...)
}
