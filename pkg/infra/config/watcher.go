// Package config 提供配置文件热更新。
package config

import (
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/kart-io/logger"
	"github.com/spf13/viper"
)

// ChangeHandler 处理配置变更，v 已包含新内容。
type ChangeHandler func(v *viper.Viper) error

// Watcher fans config file changes out to subscribed handlers. Handlers run
// sequentially in id order; a failing handler does not stop the others.
type Watcher struct {
	viper    *viper.Viper
	mu       sync.RWMutex
	handlers map[string]ChangeHandler
	once     sync.Once
}

// NewWatcher creates a watcher over v, which must already have read its
// config file.
func NewWatcher(v *viper.Viper) *Watcher {
	return &Watcher{viper: v, handlers: make(map[string]ChangeHandler)}
}

// Subscribe registers h under id, replacing any handler with the same id.
func (w *Watcher) Subscribe(id string, h ChangeHandler) {
	w.mu.Lock()
	w.handlers[id] = h
	w.mu.Unlock()
}

// Start begins watching. Calling it again has no effect. Without a config
// file there is nothing to watch and Start reports false.
func (w *Watcher) Start() bool {
	if w.viper.ConfigFileUsed() == "" {
		return false
	}
	w.once.Do(func() {
		w.viper.OnConfigChange(w.notify)
		w.viper.WatchConfig()
		logger.Infow("Watching config file", "file", w.viper.ConfigFileUsed())
	})
	return true
}

func (w *Watcher) notify(e fsnotify.Event) {
	logger.Infow("Config file changed", "file", e.Name, "op", e.Op.String())

	w.mu.RLock()
	ids := make([]string, 0, len(w.handlers))
	handlers := make(map[string]ChangeHandler, len(w.handlers))
	for id, h := range w.handlers {
		ids = append(ids, id)
		handlers[id] = h
	}
	w.mu.RUnlock()
	sort.Strings(ids)

	for _, id := range ids {
		if err := handlers[id](w.viper); err != nil {
			logger.Errorw("Config change rejected", "handler", id, "error", err.Error())
		}
	}
}
