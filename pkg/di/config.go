package di

import (
	"io"
	"os"

	"github.com/cockroachdb/errors"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-rememberable/cache"
	"gopkg.in/yaml.v3"
)

// Names under which the container registers its backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQL    = "sql"
)

// SQL drivers supported by the database backend.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config describes the backends a Container opens and the defaults applied
// to the query caches it builds.
type Config struct {
	DefaultBackend string       `yaml:"default_backend" json:"default_backend"`
	Prefix         string       `yaml:"prefix" json:"prefix"`
	Memory         cache.Config `yaml:"memory" json:"memory"`
	Redis          *RedisConfig `yaml:"redis" json:"redis"`
	SQL            *SQLConfig   `yaml:"sql" json:"sql"`
}

// RedisConfig enables the redis backend.
type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr"`
	Password  string `yaml:"password" json:"password"`
	DB        int    `yaml:"db" json:"db"`
	Namespace string `yaml:"namespace" json:"namespace"`
}

// SQLConfig enables the database backend.
type SQLConfig struct {
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" json:"dsn"`
}

// DefaultConfig returns a memory-only configuration.
func DefaultConfig() Config {
	return Config{
		DefaultBackend: BackendMemory,
		Prefix:         cache.DefaultPrefix,
		Memory:         cache.DefaultConfig(),
	}
}

// Validate checks the configuration, including that the default backend is
// actually configured.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.DefaultBackend,
			validation.Required,
			validation.In(BackendMemory, BackendRedis, BackendSQL),
		),
		validation.Field(&c.Prefix, validation.Required),
		validation.Field(&c.Memory),
		validation.Field(&c.Redis, validation.When(c.DefaultBackend == BackendRedis, validation.Required)),
		validation.Field(&c.SQL, validation.When(c.DefaultBackend == BackendSQL, validation.Required)),
	)
}

func (r RedisConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Addr, validation.Required),
		validation.Field(&r.DB, validation.Min(0)),
	)
}

func (s SQLConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Driver, validation.Required, validation.In(DriverSQLite, DriverPostgres)),
		validation.Field(&s.DSN, validation.Required),
	)
}

// LoadConfig decodes a YAML document on top of DefaultConfig and validates
// the result. Durations are written as strings, e.g. "5m". An empty document
// yields the defaults.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()

	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Wrap(err, "decode cache config")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrap(err, "invalid cache config")
	}
	return cfg, nil
}

// LoadConfigFile reads the configuration from a YAML file.
func LoadConfigFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "open cache config %s", path)
	}
	defer f.Close()

	return LoadConfig(f)
}
