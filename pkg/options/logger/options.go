// Package logger binds kart-io/logger settings to flags and config.
package logger

import (
	"fmt"
	"slices"

	"github.com/kart-io/logger"
	"github.com/kart-io/logger/option"
	"github.com/spf13/pflag"

	"github.com/kart-io/okr-assistant/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

var engines = []string{"zap", "slog"}

// Options embeds option.LogOption. Flag names reuse the option's
// mapstructure keys so a config file and a flag address the same field.
type Options struct {
	*option.LogOption
}

// NewOptions returns JSON logging at INFO to stdout.
func NewOptions() *Options {
	return &Options{LogOption: option.DefaultLogOption()}
}

func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "log."
	fs.StringVar(&o.Engine, p+"engine", o.Engine, "Logging engine, one of zap or slog.")
	fs.StringVar(&o.Level, p+"level", o.Level, "Minimum level (DEBUG, INFO, WARN, ERROR).")
	fs.StringVar(&o.Format, p+"format", o.Format, "Encoding, json or console.")
	fs.StringSliceVar(&o.OutputPaths, p+"output_paths", o.OutputPaths, "Where to write logs; stdout, stderr or file paths.")
	fs.StringVar(&o.OTLPEndpoint, p+"otlp_endpoint", o.OTLPEndpoint, "Also ship logs to this OTLP endpoint.")
	fs.BoolVar(&o.Development, p+"development", o.Development, "Human friendly output with caller and stack traces.")
}

func (o *Options) Validate() []error {
	if o == nil || o.LogOption == nil {
		return nil
	}
	var errs []error
	if o.Engine != "" && !slices.Contains(engines, o.Engine) {
		errs = append(errs, fmt.Errorf("log.engine %q is not one of %v", o.Engine, engines))
	}
	if err := o.LogOption.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errs
}

// Init installs the global logger. Every entry carries the service name
// and version.
func (o *Options) Init(service, version string) error {
	o.AddInitialField("service.name", service).AddInitialField("service.version", version)
	l, err := logger.New(o.LogOption)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	logger.SetGlobal(l)
	return nil
}
