package convflux

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/convflux/internal/yml"
	"github.com/viant/convflux/service/messaging"
	"github.com/viant/convflux/service/pool"
	"github.com/viant/convflux/service/scheduler"
	"github.com/viant/convflux/service/source"
	"github.com/viant/structology/conv"
	"gopkg.in/yaml.v3"
)

// Config is a serialisable representation of the service configuration. It
// can be populated from YAML or JSON and adjusted with key/value overrides.
type Config struct {
	Pool      PoolConfig       `json:"pool" yaml:"pool"`
	Scheduler scheduler.Config `json:"scheduler" yaml:"scheduler"`
	Model     ModelConfig      `json:"model" yaml:"model"`
	Data      DataConfig       `json:"data" yaml:"data"`
	Tracing   TracingConfig    `json:"tracing" yaml:"tracing"`
	// Parallel splits every kernel invocation across goroutines.
	Parallel bool `json:"parallel" yaml:"parallel"`
}

type PoolConfig struct {
	Workers     int    `json:"workers" yaml:"workers"`
	MailboxSize int    `json:"mailboxSize" yaml:"mailboxSize"`
	Vendor      string `json:"vendor" yaml:"vendor"`
	QueuePath   string `json:"queuePath" yaml:"queuePath"`
}

// ModelConfig locates the convnetjs net and the conv layer to run.
type ModelConfig struct {
	URL   string `json:"url" yaml:"url"`
	Layer int    `json:"layer" yaml:"layer"`
}

// DataConfig locates the samples; with no ImageURL a seeded random batch is used.
type DataConfig struct {
	ImageURL      string `json:"imageURL" yaml:"imageURL"`
	LabelsURL     string `json:"labelsURL" yaml:"labelsURL"`
	Dimension     int    `json:"dimension" yaml:"dimension"`
	Channels      int    `json:"channels" yaml:"channels"`
	RandomSamples int    `json:"randomSamples" yaml:"randomSamples"`
	Classes       int    `json:"classes" yaml:"classes"`
	Seed          int64  `json:"seed" yaml:"seed"`
}

type TracingConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Output  string `json:"output" yaml:"output"`
}

// DefaultConfig returns a Config populated with the package defaults.
func DefaultConfig() *Config {
	poolConfig := pool.DefaultConfig()
	schedulerConfig := scheduler.DefaultConfig()
	schedulerConfig.RequestTimeout = 10 * time.Second
	imageConfig := source.DefaultImageConfig()
	return &Config{
		Pool: PoolConfig{
			Workers:     poolConfig.WorkerCount,
			MailboxSize: poolConfig.MailboxSize,
			Vendor:      string(poolConfig.Vendor),
			QueuePath:   poolConfig.BasePath,
		},
		Scheduler: schedulerConfig,
		Data: DataConfig{
			Dimension:     imageConfig.Dimension,
			Channels:      imageConfig.Channels,
			RandomSamples: 1000,
			Classes:       10,
			Seed:          1,
		},
	}
}

// Validate returns aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Pool.Workers <= 0 {
		errs = append(errs, fmt.Errorf("pool.workers must be > 0"))
	}
	if c.Pool.MailboxSize <= 0 {
		errs = append(errs, fmt.Errorf("pool.mailboxSize must be > 0"))
	}
	switch messaging.Vendor(c.Pool.Vendor) {
	case messaging.VendorMemory, messaging.VendorFS:
	default:
		errs = append(errs, fmt.Errorf("pool.vendor %q is not supported", c.Pool.Vendor))
	}
	if err := c.Scheduler.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Model.Layer < 0 {
		errs = append(errs, fmt.Errorf("model.layer must be >= 0"))
	}
	if c.Data.Dimension <= 0 || c.Data.Channels <= 0 {
		errs = append(errs, fmt.Errorf("data.dimension and data.channels must be > 0"))
	}
	if c.Data.ImageURL == "" && c.Data.RandomSamples <= 0 {
		errs = append(errs, fmt.Errorf("data.randomSamples must be > 0 without data.imageURL"))
	}
	return errors.Join(errs...)
}

// LoadConfig reads a YAML (or JSON) configuration on top of the defaults.
func LoadConfig(ctx context.Context, URL string, options ...storage.Option) (*Config, error) {
	data, err := afs.New().DownloadWithURL(ctx, URL, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %v: %w", URL, err)
	}
	cfg := DefaultConfig()
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %v: %w", URL, err)
	}
	return cfg, cfg.Validate()
}

// Apply overlays overrides keyed by dotted path ("pool.workers") or nested
// maps; keys are matched case-insensitively.
func (c *Config) Apply(overrides map[string]interface{}) error {
	converter := conv.NewConverter(conv.DefaultOptions())
	targets := c.targets()
	for key, value := range yml.Flatten(overrides) {
		target, ok := targets[strings.ToLower(key)]
		if !ok {
			return fmt.Errorf("unknown config key: %v", key)
		}
		if duration, ok := target.(*time.Duration); ok {
			d, err := toDuration(converter, value)
			if err != nil {
				return fmt.Errorf("invalid %v: %w", key, err)
			}
			*duration = d
			continue
		}
		if err := converter.Convert(value, target); err != nil {
			return fmt.Errorf("invalid %v: %w", key, err)
		}
	}
	return c.Validate()
}

func (c *Config) targets() map[string]interface{} {
	return map[string]interface{}{
		"pool.workers":             &c.Pool.Workers,
		"pool.mailboxsize":         &c.Pool.MailboxSize,
		"pool.vendor":              &c.Pool.Vendor,
		"pool.queuepath":           &c.Pool.QueuePath,
		"scheduler.maxinflight":    &c.Scheduler.MaxInFlight,
		"scheduler.requesttimeout": &c.Scheduler.RequestTimeout,
		"scheduler.async":          &c.Scheduler.Async,
		"model.url":                &c.Model.URL,
		"model.layer":              &c.Model.Layer,
		"data.imageurl":            &c.Data.ImageURL,
		"data.labelsurl":           &c.Data.LabelsURL,
		"data.dimension":           &c.Data.Dimension,
		"data.channels":            &c.Data.Channels,
		"data.randomsamples":       &c.Data.RandomSamples,
		"data.classes":             &c.Data.Classes,
		"data.seed":                &c.Data.Seed,
		"tracing.enabled":          &c.Tracing.Enabled,
		"tracing.output":           &c.Tracing.Output,
		"parallel":                 &c.Parallel,
	}
}

// toDuration accepts Go duration strings or integer milliseconds.
func toDuration(converter *conv.Converter, value interface{}) (time.Duration, error) {
	switch actual := value.(type) {
	case time.Duration:
		return actual, nil
	case string:
		return time.ParseDuration(actual)
	}
	var ms int64
	if err := converter.Convert(value, &ms); err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}
