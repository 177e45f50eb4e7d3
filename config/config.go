// Package config holds the settings of the game-rpc server and client.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"game-rpc/registry"
	"game-rpc/transport"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("config: invalid")

type Config struct {
	ListenAddr  string
	MetricsAddr string // empty disables the metrics endpoint

	// ReadTimeout drops a peer that sent nothing, not even a heartbeat.
	ReadTimeout       time.Duration
	HeartbeatInterval time.Duration
	ShutdownTimeout   time.Duration

	// EtcdEndpoints enables the etcd settings store; otherwise archived
	// variables live in memory.
	EtcdEndpoints []string
	EtcdPrefix    string

	// RateLimit is the per-peer request rate; zero disables limiting.
	RateLimit float64
	RateBurst int

	LogLevel  string
	LogFormat string // "console" or "json"

	Vars []registry.Options
}

func DefaultConfig() *Config {
	return &Config{
		ListenAddr:        ":27016",
		ReadTimeout:       30 * time.Second,
		HeartbeatInterval: 10 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		EtcdPrefix:        registry.DefaultPrefix,
		RateLimit:         20,
		RateBurst:         40,
		LogLevel:          "info",
		LogFormat:         "console",
	}
}

// Validate checks the settings for values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, fmt.Errorf("%w: empty listen address", ErrInvalid))
	}
	if c.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: read timeout must be positive", ErrInvalid))
	}
	if c.HeartbeatInterval <= 0 || c.HeartbeatInterval >= c.ReadTimeout {
		errs = append(errs, fmt.Errorf("%w: heartbeat interval must be positive and below the read timeout", ErrInvalid))
	}
	if c.RateLimit < 0 || (c.RateLimit > 0 && c.RateBurst <= 0) {
		errs = append(errs, fmt.Errorf("%w: rate limit needs a positive burst", ErrInvalid))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("%w: log level: %v", ErrInvalid, err))
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("%w: log format %q", ErrInvalid, c.LogFormat))
	}
	seen := make(map[string]bool)
	for _, v := range c.Vars {
		key := strings.ToLower(v.ServerName)
		if seen[key] {
			errs = append(errs, fmt.Errorf("%w: variable %s listed twice", ErrInvalid, v.ServerName))
		}
		seen[key] = true
	}
	return errors.Join(errs...)
}

// ParseVar parses "server:client:default:access[:persist]", for example
// "sv_gravity:cl_gravity:800:admin:persist".
func ParseVar(s string) (registry.Options, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 && len(parts) != 5 {
		return registry.Options{}, fmt.Errorf("%w: variable %q: want server:client:default:access[:persist]", ErrInvalid, s)
	}
	level, err := transport.ParseLevel(parts[3])
	if err != nil {
		return registry.Options{}, fmt.Errorf("%w: variable %q: %v", ErrInvalid, s, err)
	}
	opts := registry.Options{
		ServerName: parts[0],
		ClientName: parts[1],
		Default:    parts[2],
		Access:     level,
	}
	if len(parts) == 5 {
		switch parts[4] {
		case "persist":
			opts.Persistent = true
		case "notify":
			opts.Notify = true
		default:
			b, err := strconv.ParseBool(parts[4])
			if err != nil {
				return registry.Options{}, fmt.Errorf("%w: variable %q: flag %q", ErrInvalid, s, parts[4])
			}
			opts.Persistent = b
		}
	}
	return opts, nil
}

// NewLogger builds a logger writing to stderr at level in format.
func NewLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	switch format {
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	case "console", "":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, fmt.Errorf("%w: log format %q", ErrInvalid, format)
	}
	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), zap.NewAtomicLevelAt(lvl))
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}
