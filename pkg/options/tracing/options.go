// Package tracing provides OpenTelemetry tracing options.
package tracing

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/okr-assistant/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Exporters.
const (
	ExporterOTLPHTTP = "otlp_http"
	ExporterStdout   = "stdout"
	ExporterNoop     = "noop"
)

// Options defines configuration for OpenTelemetry tracing.
type Options struct {
	Enabled        bool   `json:"enabled" mapstructure:"enabled"`
	ServiceName    string `json:"service-name" mapstructure:"service-name"`
	ServiceVersion string `json:"service-version" mapstructure:"service-version"`
	Environment    string `json:"environment" mapstructure:"environment"`

	Exporter string `json:"exporter" mapstructure:"exporter"`
	// Endpoint is host:port of the OTLP HTTP receiver.
	Endpoint string `json:"endpoint" mapstructure:"endpoint"`
	Insecure bool   `json:"insecure" mapstructure:"insecure"`

	// SampleRatio is used for root spans; children follow their parent.
	SampleRatio  float64       `json:"sample-ratio" mapstructure:"sample-ratio"`
	BatchTimeout time.Duration `json:"batch-timeout" mapstructure:"batch-timeout"`
}

// NewOptions creates Options with tracing disabled.
func NewOptions() *Options {
	return &Options{
		ServiceName:  "okr-server",
		Environment:  "development",
		Exporter:     ExporterOTLPHTTP,
		Endpoint:     "localhost:4318",
		Insecure:     true,
		SampleRatio:  1.0,
		BatchTimeout: 5 * time.Second,
	}
}

// AddFlags adds tracing flags to fs.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.BoolVar(&o.Enabled, p+"tracing.enabled", o.Enabled, "Enable OpenTelemetry tracing.")
	fs.StringVar(&o.ServiceName, p+"tracing.service-name", o.ServiceName, "Service name reported with spans.")
	fs.StringVar(&o.Environment, p+"tracing.environment", o.Environment, "Deployment environment.")
	fs.StringVar(&o.Exporter, p+"tracing.exporter", o.Exporter, "Span exporter (otlp_http|stdout|noop).")
	fs.StringVar(&o.Endpoint, p+"tracing.endpoint", o.Endpoint, "OTLP HTTP endpoint (host:port).")
	fs.BoolVar(&o.Insecure, p+"tracing.insecure", o.Insecure, "Disable TLS for the OTLP exporter.")
	fs.Float64Var(&o.SampleRatio, p+"tracing.sample-ratio", o.SampleRatio, "Root span sampling ratio (0.0-1.0).")
	fs.DurationVar(&o.BatchTimeout, p+"tracing.batch-timeout", o.BatchTimeout, "Maximum delay before a span batch is exported.")
}

// Validate validates the tracing options.
func (o *Options) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}
	var errs []error
	switch o.Exporter {
	case ExporterOTLPHTTP:
		if o.Endpoint == "" {
			errs = append(errs, fmt.Errorf("tracing.endpoint is required for %s", o.Exporter))
		}
	case ExporterStdout, ExporterNoop:
	default:
		errs = append(errs, fmt.Errorf("unsupported tracing.exporter %q", o.Exporter))
	}
	if o.SampleRatio < 0 || o.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample-ratio must be between 0 and 1"))
	}
	if o.ServiceName == "" {
		errs = append(errs, fmt.Errorf("tracing.service-name is required"))
	}
	return errs
}
