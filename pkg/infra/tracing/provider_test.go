package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	options "github.com/kart-io/okr-assistant/pkg/options/tracing"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(o *options.Options)
		wantErr bool
	}{
		{"disabled", func(o *options.Options) { o.Enabled = false }, false},
		{"noop exporter", func(o *options.Options) { o.Enabled = true; o.Exporter = options.ExporterNoop }, false},
		{"unknown exporter", func(o *options.Options) { o.Enabled = true; o.Exporter = "zipkin" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := options.NewOptions()
			tt.mutate(opts)

			p, err := NewProvider(context.Background(), opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			_, span := p.Tracer("test").Start(context.Background(), "span")
			span.End()
			assert.NoError(t, p.Shutdown(context.Background()))
		})
	}
}

func TestOptions_Validate(t *testing.T) {
	opts := options.NewOptions()
	assert.Empty(t, opts.Validate())

	opts.Enabled = true
	opts.SampleRatio = 2
	assert.NotEmpty(t, opts.Validate())
}
