package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"trading-indicators/internal/model"
)

// DefaultSpecs is used when neither INDICATOR_SPEC_FILE nor INDICATOR_SPECS
// is set.
const DefaultSpecs = "bb:period=20;k=2;source=close@1m,rsi:period=14;source=close@1m"

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string
	LogLevel      string

	// Indicators: a YAML file takes precedence over the inline list.
	SpecFile string
	Specs    string
}

// Load reads an optional .env file, then configuration from environment
// variables with sensible defaults.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/bars.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		SpecFile: getEnv("INDICATOR_SPEC_FILE", ""),
		Specs:    getEnv("INDICATOR_SPECS", DefaultSpecs),
	}
}

// IndicatorSpecs returns the configured indicator specs.
func (c *Config) IndicatorSpecs() ([]model.Spec, error) {
	if c.SpecFile != "" {
		return LoadSpecFile(c.SpecFile)
	}
	if strings.TrimSpace(c.Specs) == "" {
		return ParseSpecs(DefaultSpecs)
	}
	return ParseSpecs(c.Specs)
}

// ParseSpecs parses a comma-separated spec list of the form
// "name:key=value;key=value@timeframe". Inputs are optional
// ("atr@1h"); numeric values become float64, anything else stays a string.
func ParseSpecs(s string) ([]model.Spec, error) {
	var specs []model.Spec
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		spec, err := parseSpec(part)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil, errors.New("config: no indicator specs")
	}
	return specs, nil
}

func parseSpec(s string) (model.Spec, error) {
	at := strings.LastIndexByte(s, '@')
	if at < 0 || at == len(s)-1 {
		return model.Spec{}, fmt.Errorf("config: spec %q: missing @timeframe", s)
	}
	head, tf := s[:at], strings.TrimSpace(s[at+1:])

	name, params, _ := strings.Cut(head, ":")
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Spec{}, fmt.Errorf("config: spec %q: missing name", s)
	}

	inputs := model.Inputs{}
	for _, kv := range strings.Split(params, ";") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		k, v, ok := strings.Cut(kv, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			return model.Spec{}, fmt.Errorf("config: spec %q: bad input %q", s, kv)
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			inputs[k] = f
		} else {
			inputs[k] = v
		}
	}
	return model.Spec{Name: name, Inputs: inputs, Timeframe: tf}, nil
}

type specFile struct {
	Specs []model.Spec `yaml:"specs"`
}

// LoadSpecFile reads indicator specs from a YAML file:
//
//	specs:
//	  - name: bb
//	    timeframe: 1m
//	    inputs: {period: 20, k: 2, source: close}
func LoadSpecFile(path string) ([]model.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read spec file: %w", err)
	}
	var f specFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parse spec file: %w", err)
	}
	if len(f.Specs) == 0 {
		return nil, fmt.Errorf("config: %s: no indicator specs", path)
	}
	for i, s := range f.Specs {
		if s.Inputs == nil {
			f.Specs[i].Inputs = model.Inputs{}
		}
	}
	return f.Specs, nil
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

// GetEnv returns the environment variable key or fallback when unset.
func GetEnv(key, fallback string) string { return getEnv(key, fallback) }

// GetEnvInt is GetEnv for positive integers; invalid values yield fallback.
func GetEnvInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
