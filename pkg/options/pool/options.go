// Package pool provides options for the background task pool.
package pool

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/okr-assistant/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options configures the ants pool used for background indexing.
type Options struct {
	Capacity         int           `json:"capacity" mapstructure:"capacity"`
	ExpiryDuration   time.Duration `json:"expiry-duration" mapstructure:"expiry-duration"`
	Nonblocking      bool          `json:"nonblocking" mapstructure:"nonblocking"`
	MaxBlockingTasks int           `json:"max-blocking-tasks" mapstructure:"max-blocking-tasks"`
}

// NewOptions creates default pool options.
func NewOptions() *Options {
	return &Options{
		Capacity:         16,
		ExpiryDuration:   10 * time.Second,
		Nonblocking:      false,
		MaxBlockingTasks: 256,
	}
}

// AddFlags adds pool flags to fs.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.IntVar(&o.Capacity, p+"pool.capacity", o.Capacity, "Maximum concurrent background indexing tasks.")
	fs.DurationVar(&o.ExpiryDuration, p+"pool.expiry-duration", o.ExpiryDuration, "Idle worker expiry.")
	fs.BoolVar(&o.Nonblocking, p+"pool.nonblocking", o.Nonblocking, "Reject tasks instead of waiting when the pool is full.")
	fs.IntVar(&o.MaxBlockingTasks, p+"pool.max-blocking-tasks", o.MaxBlockingTasks, "Maximum submitters allowed to wait for a worker.")
}

// Validate validates the pool options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if o.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("pool.capacity must be positive"))
	}
	if o.MaxBlockingTasks < 0 {
		errs = append(errs, fmt.Errorf("pool.max-blocking-tasks cannot be negative"))
	}
	return errs
}
