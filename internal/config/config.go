// Package config carga la configuración YAML de fleetsign con overrides por
// variables de entorno. Un solo Config sirve a los dos binarios: el service
// ignora el bloque agent y viceversa.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
		// debug | info | warn | error
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Server struct {
		Addr        string `yaml:"addr"`
		AdminAPIKey string `yaml:"admin_api_key"`
		// Requests por minuto por agente en /v1/agent. Negativo desactiva.
		AgentRateLimit int `yaml:"agent_rate_limit"`
	} `yaml:"server"`

	Storage struct {
		Driver string `yaml:"driver"` // postgres | memory
		DSN    string `yaml:"dsn"`
	} `yaml:"storage"`

	Bus struct {
		Driver string `yaml:"driver"` // redis | memory
		Redis  struct {
			Addr     string `yaml:"addr"`
			Username string `yaml:"username"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"bus"`

	Keys struct {
		// Cuánto se conserva la clave old tras una rotación.
		RetentionWindow string `yaml:"retention_window"`
		// PEM de la clave privada del custodio local (dev). Vacío genera
		// una clave efímera al arrancar.
		CustodianKeyFile string `yaml:"custodian_key_file"`
	} `yaml:"keys"`

	AgentAuth struct {
		Secret   string `yaml:"secret"` // >= 32 bytes
		Issuer   string `yaml:"issuer"`
		TokenTTL string `yaml:"token_ttl"`
	} `yaml:"agent_auth"`

	Alert struct {
		Enabled bool   `yaml:"enabled"`
		Host    string `yaml:"host"`
		Port    int    `yaml:"port"`
		User    string `yaml:"user"`
		Pass    string `yaml:"pass"`
		From    string `yaml:"from"`
		To      string `yaml:"to"`
	} `yaml:"alert"`

	// Bloque del binario agente.
	Agent struct {
		ServerURL         string `yaml:"server_url"`
		Token             string `yaml:"token"`
		TenantID          string `yaml:"tenant_id"`
		AgentID           string `yaml:"agent_id"`
		Mode              string `yaml:"mode"` // persistent | polling
		CachePath         string `yaml:"cache_path"`
		HeartbeatInterval string `yaml:"heartbeat_interval"`
		MetricsAddr       string `yaml:"metrics_addr"`
	} `yaml:"agent"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	c.applyEnv()
	return &c, nil
}

// FromEnv arma la config solo desde variables de entorno (sin YAML).
func FromEnv() *Config {
	var c Config
	c.applyDefaults()
	c.applyEnv()
	return &c
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.AgentRateLimit == 0 {
		c.Server.AgentRateLimit = 120
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Bus.Driver == "" {
		c.Bus.Driver = "memory"
	}
	if c.Keys.RetentionWindow == "" {
		c.Keys.RetentionWindow = "168h" // 7d
	}
	if c.AgentAuth.TokenTTL == "" {
		c.AgentAuth.TokenTTL = "2160h" // 90d
	}
	if c.Agent.Mode == "" {
		c.Agent.Mode = "polling"
	}
	if c.Agent.HeartbeatInterval == "" {
		c.Agent.HeartbeatInterval = "30s"
	}
	if c.Agent.CachePath == "" {
		c.Agent.CachePath = "fleetsign-keys.json"
	}
}

func (c *Config) applyEnv() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = v
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.App.LogLevel = v
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("ADMIN_API_KEY"); ok {
		c.Server.AdminAPIKey = v
	}
	if v, ok := getEnvInt("SERVER_AGENT_RATE_LIMIT"); ok {
		c.Server.AgentRateLimit = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}

	// BUS
	if v, ok := getEnvStr("BUS_DRIVER"); ok {
		c.Bus.Driver = v
	}
	if v, ok := getEnvStr("BUS_REDIS_ADDR"); ok {
		c.Bus.Redis.Addr = v
	}
	if v, ok := getEnvStr("BUS_REDIS_USERNAME"); ok {
		c.Bus.Redis.Username = v
	}
	if v, ok := getEnvStr("BUS_REDIS_PASSWORD"); ok {
		c.Bus.Redis.Password = v
	}
	if v, ok := getEnvInt("BUS_REDIS_DB"); ok {
		c.Bus.Redis.DB = v
	}

	// KEYS
	if v, ok := getEnvStr("KEYS_RETENTION_WINDOW"); ok {
		c.Keys.RetentionWindow = v
	}
	if v, ok := getEnvStr("KEYS_CUSTODIAN_KEY_FILE"); ok {
		c.Keys.CustodianKeyFile = v
	}

	// AGENT AUTH
	if v, ok := getEnvStr("AGENT_AUTH_SECRET"); ok {
		c.AgentAuth.Secret = v
	}
	if v, ok := getEnvStr("AGENT_AUTH_ISSUER"); ok {
		c.AgentAuth.Issuer = v
	}
	if v, ok := getEnvStr("AGENT_AUTH_TOKEN_TTL"); ok {
		c.AgentAuth.TokenTTL = v
	}

	// ALERT / SMTP
	if v, ok := getEnvBool("ALERT_ENABLED"); ok {
		c.Alert.Enabled = v
	}
	if v, ok := getEnvStr("SMTP_HOST"); ok {
		c.Alert.Host = v
	}
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.Alert.Port = v
	}
	if v, ok := getEnvStr("SMTP_USERNAME"); ok {
		c.Alert.User = v
	}
	if v, ok := getEnvStr("SMTP_PASSWORD"); ok {
		c.Alert.Pass = v
	}
	if v, ok := getEnvStr("SMTP_FROM"); ok {
		c.Alert.From = v
	}
	if v, ok := getEnvStr("ALERT_TO"); ok {
		c.Alert.To = v
	}

	// AGENT
	if v, ok := getEnvStr("AGENT_SERVER_URL"); ok {
		c.Agent.ServerURL = v
	}
	if v, ok := getEnvStr("AGENT_TOKEN"); ok {
		c.Agent.Token = v
	}
	if v, ok := getEnvStr("AGENT_TENANT_ID"); ok {
		c.Agent.TenantID = v
	}
	if v, ok := getEnvStr("AGENT_ID"); ok {
		c.Agent.AgentID = v
	}
	if v, ok := getEnvStr("AGENT_MODE"); ok {
		c.Agent.Mode = v
	}
	if v, ok := getEnvStr("AGENT_CACHE_PATH"); ok {
		c.Agent.CachePath = v
	}
	if v, ok := getEnvStr("AGENT_HEARTBEAT_INTERVAL"); ok {
		c.Agent.HeartbeatInterval = v
	}
	if v, ok := getEnvStr("AGENT_METRICS_ADDR"); ok {
		c.Agent.MetricsAddr = v
	}
}

// RetentionWindow parsea Keys.RetentionWindow con fallback a 7 días.
func (c *Config) RetentionWindow() time.Duration {
	return parseDur(c.Keys.RetentionWindow, 7*24*time.Hour)
}

// AgentTokenTTL parsea AgentAuth.TokenTTL con fallback a 90 días.
func (c *Config) AgentTokenTTL() time.Duration {
	return parseDur(c.AgentAuth.TokenTTL, 90*24*time.Hour)
}

// HeartbeatInterval parsea Agent.HeartbeatInterval con fallback a 30s.
func (c *Config) HeartbeatInterval() time.Duration {
	return parseDur(c.Agent.HeartbeatInterval, 30*time.Second)
}

func parseDur(s string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil && d > 0 {
		return d
	}
	return fallback
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
