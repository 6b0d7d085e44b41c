// Package config resolves comfyctl settings from .env files and COMFY_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"

	"github.com/aretw0/comfyctl/pkg/adapters/comfy"
	"github.com/aretw0/comfyctl/pkg/observability"
	"github.com/aretw0/comfyctl/pkg/orchestrator"
)

// Prefix of every environment variable read by Load.
const Prefix = "COMFY_"

// Config holds the resolved settings. Field tags name the environment
// variable without its prefix.
type Config struct {
	Server        string        `mapstructure:"SERVER"`
	Timeout       time.Duration `mapstructure:"TIMEOUT"`
	OutputDir     string        `mapstructure:"OUTPUT_DIR"`
	PollInterval  time.Duration `mapstructure:"POLL_INTERVAL"`
	MaxWait       time.Duration `mapstructure:"MAX_WAIT"`
	Insecure      bool          `mapstructure:"INSECURE"`
	RetryAttempts int           `mapstructure:"RETRY_ATTEMPTS"`
	Ledger        string        `mapstructure:"LEDGER"`
	MetricsAddr   string        `mapstructure:"METRICS_ADDR"`
	Debug         bool          `mapstructure:"DEBUG"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Server:        comfy.DefaultServer,
		Timeout:       comfy.DefaultTimeout,
		OutputDir:     "./" + orchestrator.DefaultOutputDir + "/",
		PollInterval:  orchestrator.DefaultPollInterval,
		RetryAttempts: comfy.DefaultRetryPolicy().MaxAttempts,
	}
}

// Load reads envFiles (".env" when none is given) and then the environment.
// A missing default .env is not an error; a missing explicit file is.
// Variables already set in the environment win over file values.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(envFiles...); err != nil {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	return FromEnviron(os.Environ())
}

// FromEnviron decodes COMFY_* entries of environ ("KEY=value" pairs) over
// the defaults.
func FromEnviron(environ []string) (Config, error) {
	values := make(map[string]any)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, Prefix) || value == "" {
			continue
		}
		values[strings.TrimPrefix(key, Prefix)] = value
	}

	cfg := Default()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       durationHook,
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return Config{}, err
	}
	if err := dec.Decode(values); err != nil {
		return Config{}, fmt.Errorf("invalid %s* setting: %w", Prefix, err)
	}
	return cfg, nil
}

// durationHook accepts Go durations ("90s", "2m") and bare numbers of seconds.
func durationHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	return ParseDuration(data.(string))
}

// ParseDuration parses a Go duration or a number of seconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// Validate rejects settings no run can work with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server) == "" {
		errs = append(errs, errors.New("server address is empty"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive, got %s", c.PollInterval))
	}
	if c.MaxWait < 0 {
		errs = append(errs, fmt.Errorf("max wait must not be negative, got %s", c.MaxWait))
	}
	if c.RetryAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry attempts must be at least 1, got %d", c.RetryAttempts))
	}
	return errors.Join(errs...)
}

// ClientOptions renders the transport options for these settings.
func (c Config) ClientOptions(logger *slog.Logger, metrics *observability.Metrics) comfy.Options {
	retry := comfy.DefaultRetryPolicy()
	retry.MaxAttempts = c.RetryAttempts
	return comfy.Options{
		Server:             c.Server,
		Timeout:            c.Timeout,
		InsecureSkipVerify: c.Insecure,
		Retry:              retry,
		Logger:             logger,
		Metrics:            metrics,
	}
}
