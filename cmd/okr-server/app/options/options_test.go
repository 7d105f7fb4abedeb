package options

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageopts "github.com/kart-io/okr-assistant/pkg/options/storage"
)

func TestServerOptions_Flags(t *testing.T) {
	o := NewServerOptions()
	fss := o.Flags()

	assert.Equal(t, []string{"http", "log", "storage", "redis", "milvus", "llm", "chat", "pool", "tracing"}, fss.Order)
	for name, key := range map[string]string{
		"http":    "http.addr",
		"storage": "storage.driver",
		"llm":     "llm.provider",
		"chat":    "chat.top-k",
		"tracing": "tracing.enabled",
	} {
		assert.NotNil(t, fss.FlagSets[name].Lookup(key), key)
	}

	require.NoError(t, fss.FlagSets["http"].Parse([]string{"--http.addr=:8080"}))
	assert.Equal(t, ":8080", o.HTTPOptions.Addr)
}

func TestServerOptions_Validate(t *testing.T) {
	o := NewServerOptions()
	o.LLMOptions.APIKey = "test-key"
	o.StorageOptions.Driver = storageopts.DriverSQLite
	require.NoError(t, o.Complete())
	require.NoError(t, o.Validate())

	o.ChatOptions.TopK = 0
	o.LLMOptions.Provider = ""
	err := o.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat.top-k")
	assert.Contains(t, err.Error(), "llm.provider")
}

func TestServerOptions_Config(t *testing.T) {
	o := NewServerOptions()
	require.NoError(t, o.Complete())
	cfg, err := o.Config()
	require.NoError(t, err)
	assert.Same(t, o.HTTPOptions, cfg.HTTPOptions)
	assert.Same(t, o.ChatOptions, cfg.ChatOptions)
	assert.Equal(t, "okr-server", cfg.TracingOptions.ServiceName)
}
