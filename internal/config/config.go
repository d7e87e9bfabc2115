package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	Redis   RedisConfig
	Program ProgramConfig
	Issuer  IssuerConfig
	NATS    NATSConfig
	Archive ArchiveConfig
}

type ServerConfig struct {
	Port     int `mapstructure:"port"`
	GRPCPort int `mapstructure:"grpc_port"` // 0 disables the gRPC health server
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	Prefix   string `mapstructure:"prefix"`
}

type ProgramConfig struct {
	IDSeed string `mapstructure:"id_seed"`
}

type IssuerConfig struct {
	AdminKey     string `mapstructure:"admin_key"`
	AdminKeyFile string `mapstructure:"admin_key_file"`
	TicketTTLSec int64  `mapstructure:"ticket_ttl_sec"`
	Operators    string `mapstructure:"operators"` // comma-separated hex identities
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ArchiveConfig struct {
	DatabaseURL string `mapstructure:"database_url"`
}

// IssuerEnabled reports whether an admin key source is configured.
func (c *Config) IssuerEnabled() bool {
	return c.Issuer.AdminKey != "" || c.Issuer.AdminKeyFile != ""
}

// OperatorList splits Issuer.Operators, dropping blanks.
func (c *Config) OperatorList() []string {
	var out []string
	for _, s := range strings.Split(c.Issuer.Operators, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("redis.prefix", "emissions:")
	v.SetDefault("program.id_seed", "ratio-emissions")
	v.SetDefault("issuer.ticket_ttl_sec", 3600)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	_ = v.ReadInConfig()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit env bindings
	bindings := map[string]string{
		"server.port":           "PORT",
		"server.grpc_port":      "GRPC_PORT",
		"redis.addr":            "REDIS_ADDR",
		"redis.password":        "REDIS_PASSWORD",
		"redis.prefix":          "REDIS_PREFIX",
		"program.id_seed":       "PROGRAM_ID_SEED",
		"issuer.admin_key":      "ADMIN_SIGNING_KEY",
		"issuer.admin_key_file": "ADMIN_SIGNING_KEY_FILE",
		"issuer.ticket_ttl_sec": "TICKET_TTL_SEC",
		"issuer.operators":      "OPERATORS",
		"nats.url":              "NATS_URL",
		"archive.database_url":  "DATABASE_URL",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	type req struct {
		val  string
		name string
	}
	for _, r := range []req{
		{c.Redis.Addr, "REDIS_ADDR"},
		{c.Program.IDSeed, "PROGRAM_ID_SEED"},
	} {
		if r.val == "" {
			return fmt.Errorf("required config missing: %s", r.name)
		}
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("invalid PORT: %d", c.Server.Port)
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort == c.Server.Port {
		return fmt.Errorf("invalid GRPC_PORT: %d", c.Server.GRPCPort)
	}
	// Ticket issuance is optional, but a key without a usable TTL is a mistake.
	if c.IssuerEnabled() && c.Issuer.TicketTTLSec <= 0 {
		return fmt.Errorf("invalid TICKET_TTL_SEC: %d", c.Issuer.TicketTTLSec)
	}
	return nil
}
