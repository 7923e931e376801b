package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type HTTP struct {
	Addr            string        `yaml:"addr"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type GRPC struct {
	Addr string `yaml:"addr"` // empty disables the health server
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // chat-service
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Postgres struct {
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"maxConns"`
	MinConns          int32         `yaml:"minConns"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime   time.Duration `yaml:"maxConnIdleTime"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod"`
	ApplicationName   string        `yaml:"applicationName"`
	StatementTimeout  time.Duration `yaml:"statementTimeout"`
}

func (p Postgres) Validate() error {
	if p.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if p.MaxConns < 0 || p.MinConns < 0 {
		return errors.New("postgres pool sizes must be >= 0")
	}
	if p.StatementTimeout < 0 {
		return errors.New("postgres.statementTimeout must be >= 0")
	}
	if p.MaxConns > 0 && p.MinConns > p.MaxConns {
		return errors.New("postgres.minConns must be <= postgres.maxConns")
	}
	return nil
}

type JWT struct {
	Alg           string        `yaml:"alg"`    // HS256|RS256
	Secret        string        `yaml:"secret"` // HS256, may come from JWT_SECRET
	PublicKeyPath string        `yaml:"publicKeyPath"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	ClockSkew     time.Duration `yaml:"clockSkew"`
}

func (j JWT) Validate() error {
	switch j.Alg {
	case "HS256":
		if j.Secret == "" {
			return errors.New("security.jwt.secret (or JWT_SECRET) is required for HS256")
		}
	case "RS256":
		if j.PublicKeyPath == "" {
			return errors.New("security.jwt.publicKeyPath is required for RS256")
		}
	default:
		return fmt.Errorf("security.jwt.alg %q is not supported", j.Alg)
	}
	if j.ClockSkew < 0 || j.ClockSkew > time.Minute {
		return errors.New("security.jwt.clockSkew must be in [0..1m]")
	}
	return nil
}

type Security struct {
	JWT JWT `yaml:"jwt"`
}

type WS struct {
	ReadLimit    int64         `yaml:"readLimit"`
	PongWait     time.Duration `yaml:"pongWait"`
	PingPeriod   time.Duration `yaml:"pingPeriod"`
	WriteWait    time.Duration `yaml:"writeWait"`
	SendBuffer   int           `yaml:"sendBuffer"`
	CheckOrigin  bool          `yaml:"checkOrigin"`
	AllowOrigins []string      `yaml:"allowOrigins"`
}

type Redis struct {
	Addr     string        `yaml:"addr"` // empty disables rate limiting
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Limit    int64         `yaml:"limit"`
	Window   time.Duration `yaml:"window"`
}

type NATS struct {
	URL           string `yaml:"url"` // empty disables the relay
	SubjectPrefix string `yaml:"subjectPrefix"`
}

type CORS struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type Config struct {
	HTTP     HTTP     `yaml:"http"`
	GRPC     GRPC     `yaml:"grpc"`
	Logging  Logging  `yaml:"logging"`
	Postgres Postgres `yaml:"postgres"`
	Security Security `yaml:"security"`
	WS       WS       `yaml:"ws"`
	Redis    Redis    `yaml:"redis"`
	NATS     NATS     `yaml:"nats"`
	CORS     CORS     `yaml:"cors"`
}

func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes yaml, applies env overrides and defaults, and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("JWT_SECRET")); v != "" {
		c.Security.JWT.Secret = v
	}
	if v := strings.TrimSpace(os.Getenv("POSTGRES_DSN")); v != "" {
		c.Postgres.DSN = v
	}
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if err := c.Postgres.Validate(); err != nil {
		return err
	}
	if c.Security.JWT.Alg == "" {
		c.Security.JWT.Alg = "HS256"
	}
	c.Security.JWT.Alg = strings.ToUpper(c.Security.JWT.Alg)
	if err := c.Security.JWT.Validate(); err != nil {
		return err
	}

	// defaults
	c.HTTP.RequestTimeout = durationOr(c.HTTP.RequestTimeout, 15*time.Second)
	c.HTTP.ShutdownTimeout = durationOr(c.HTTP.ShutdownTimeout, 10*time.Second)

	if c.Logging.Service == "" {
		c.Logging.Service = "chat-service"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}

	if c.WS.ReadLimit <= 0 {
		c.WS.ReadLimit = 64 << 10
	}
	c.WS.PongWait = durationOr(c.WS.PongWait, 60*time.Second)
	c.WS.PingPeriod = durationOr(c.WS.PingPeriod, c.WS.PongWait*9/10)
	if c.WS.PingPeriod >= c.WS.PongWait {
		return errors.New("ws.pingPeriod must be shorter than ws.pongWait")
	}
	c.WS.WriteWait = durationOr(c.WS.WriteWait, 10*time.Second)
	if c.WS.SendBuffer <= 0 {
		c.WS.SendBuffer = 64
	}

	if c.Redis.Limit <= 0 {
		c.Redis.Limit = 20
	}
	c.Redis.Window = durationOr(c.Redis.Window, 10*time.Second)

	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "chat.room"
	}

	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"http://localhost:5173"}
	}
	return nil
}

func durationOr(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}
