package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_StartWithoutFile(t *testing.T) {
	w := NewWatcher(viper.New())
	assert.False(t, w.Start())
}

func TestWatcher_NotifyRunsAllHandlers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "okr.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chat:\n  top-k: 3\n"), 0o600))
	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	w := NewWatcher(v)
	var order []string
	w.Subscribe("b", func(v *viper.Viper) error {
		order = append(order, "b")
		return errors.New("rejected")
	})
	w.Subscribe("a", func(v *viper.Viper) error {
		order = append(order, "a")
		assert.Equal(t, 3, v.GetInt("chat.top-k"))
		return nil
	})
	w.Subscribe("c", func(*viper.Viper) error {
		order = append(order, "c")
		return nil
	})

	w.notify(fsnotify.Event{Name: path, Op: fsnotify.Write})
	assert.Equal(t, []string{"a", "b", "c"}, order)
}
