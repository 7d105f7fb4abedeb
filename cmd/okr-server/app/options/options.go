// Package options contains flags and options for initializing the OKR server.
package options

import (
	"fmt"

	"github.com/kart-io/okr-assistant/internal/okr"
	"github.com/kart-io/okr-assistant/pkg/infra/app"
	genericoptions "github.com/kart-io/okr-assistant/pkg/options"
	chatopts "github.com/kart-io/okr-assistant/pkg/options/chat"
	llmopts "github.com/kart-io/okr-assistant/pkg/options/llm"
	logopts "github.com/kart-io/okr-assistant/pkg/options/logger"
	milvusopts "github.com/kart-io/okr-assistant/pkg/options/milvus"
	poolopts "github.com/kart-io/okr-assistant/pkg/options/pool"
	redisopts "github.com/kart-io/okr-assistant/pkg/options/redis"
	httpopts "github.com/kart-io/okr-assistant/pkg/options/server/http"
	storageopts "github.com/kart-io/okr-assistant/pkg/options/storage"
	tracingopts "github.com/kart-io/okr-assistant/pkg/options/tracing"
)

var _ app.CliOptions = (*ServerOptions)(nil)

// ServerOptions contains the configuration options for the server.
type ServerOptions struct {
	HTTPOptions    *httpopts.Options        `json:"http" mapstructure:"http"`
	LogOptions     *logopts.Options         `json:"log" mapstructure:"log"`
	StorageOptions *storageopts.Options     `json:"storage" mapstructure:"storage"`
	RedisOptions   *redisopts.Options       `json:"redis" mapstructure:"redis"`
	MilvusOptions  *milvusopts.Options      `json:"milvus" mapstructure:"milvus"`
	LLMOptions     *llmopts.ProviderOptions `json:"llm" mapstructure:"llm"`
	ChatOptions    *chatopts.Options        `json:"chat" mapstructure:"chat"`
	PoolOptions    *poolopts.Options        `json:"pool" mapstructure:"pool"`
	TracingOptions *tracingopts.Options     `json:"tracing" mapstructure:"tracing"`
}

// NewServerOptions creates a ServerOptions instance with default values.
func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		HTTPOptions:    httpopts.NewOptions(),
		LogOptions:     logopts.NewOptions(),
		StorageOptions: storageopts.NewOptions(),
		RedisOptions:   redisopts.NewOptions(),
		MilvusOptions:  milvusopts.NewOptions(),
		LLMOptions:     llmopts.NewProviderOptions(),
		ChatOptions:    chatopts.NewOptions(),
		PoolOptions:    poolopts.NewOptions(),
		TracingOptions: tracingopts.NewOptions(),
	}
}

// Flags returns flags for a specific server by section name.
func (o *ServerOptions) Flags() (fss app.NamedFlagSets) {
	o.HTTPOptions.AddFlags(fss.FlagSet("http"))
	o.LogOptions.AddFlags(fss.FlagSet("log"))
	o.StorageOptions.AddFlags(fss.FlagSet("storage"))
	o.RedisOptions.AddFlags(fss.FlagSet("redis"))
	o.MilvusOptions.AddFlags(fss.FlagSet("milvus"))
	o.LLMOptions.AddFlags(fss.FlagSet("llm"))
	o.ChatOptions.AddFlags(fss.FlagSet("chat"))
	o.PoolOptions.AddFlags(fss.FlagSet("pool"))
	o.TracingOptions.AddFlags(fss.FlagSet("tracing"))
	return fss
}

// Complete completes all the required options.
func (o *ServerOptions) Complete() error {
	if err := o.StorageOptions.Complete(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := o.RedisOptions.Complete(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if err := o.LLMOptions.Complete(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if o.TracingOptions.ServiceName == "" {
		o.TracingOptions.ServiceName = okr.Name
	}
	return nil
}

// Validate checks whether the options in ServerOptions are valid.
func (o *ServerOptions) Validate() error {
	return genericoptions.ValidateAll(
		o.HTTPOptions,
		o.LogOptions,
		o.StorageOptions,
		o.RedisOptions,
		o.MilvusOptions,
		o.LLMOptions,
		o.ChatOptions,
		o.PoolOptions,
		o.TracingOptions,
	)
}

// Config builds an okr.Config based on ServerOptions.
func (o *ServerOptions) Config() (*okr.Config, error) {
	return &okr.Config{
		HTTPOptions:    o.HTTPOptions,
		LogOptions:     o.LogOptions,
		StorageOptions: o.StorageOptions,
		RedisOptions:   o.RedisOptions,
		MilvusOptions:  o.MilvusOptions,
		LLMOptions:     o.LLMOptions,
		ChatOptions:    o.ChatOptions,
		PoolOptions:    o.PoolOptions,
		TracingOptions: o.TracingOptions,
	}, nil
}
