// Package app 基于 cobra/viper/pflag 构建命令行应用。
//
// 配置优先级：命令行参数 > 环境变量 > 配置文件 > 默认值。
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"

	"github.com/kart-io/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// RunFunc runs the application until ctx is cancelled.
type RunFunc func(ctx context.Context) error

// App is a single-command CLI application.
type App struct {
	name        string
	description string
	envPrefix   string
	options     CliOptions
	runFunc     RunFunc
	cmd         *cobra.Command
}

// Option configures an App.
type Option func(*App)

// WithName sets the command name, also used to find the config file.
func WithName(name string) Option {
	return func(a *App) { a.name = name }
}

// WithDescription sets the long help text.
func WithDescription(desc string) Option {
	return func(a *App) { a.description = desc }
}

// WithEnvPrefix sets the environment variable prefix. It defaults to the
// upper-cased application name.
func WithEnvPrefix(prefix string) Option {
	return func(a *App) { a.envPrefix = prefix }
}

// WithOptions sets the options whose flags the command exposes.
func WithOptions(opts CliOptions) Option {
	return func(a *App) { a.options = opts }
}

// WithRunFunc sets the function run after options are loaded and valid.
func WithRunFunc(run RunFunc) Option {
	return func(a *App) { a.runFunc = run }
}

// NewApp creates an application.
func NewApp(opts ...Option) *App {
	a := &App{name: filepath.Base(os.Args[0])}
	for _, opt := range opts {
		opt(a)
	}
	if a.envPrefix == "" {
		a.envPrefix = strings.ToUpper(strings.ReplaceAll(a.name, "-", "_"))
	}

	a.cmd = &cobra.Command{
		Use:          a.name,
		Short:        a.name,
		Long:         a.description,
		RunE:         a.runCommand,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
	}
	a.cmd.SetOut(os.Stdout)
	a.cmd.SetErr(os.Stderr)

	pfs := a.cmd.PersistentFlags()
	pfs.StringP("config", "c", "", "Path to config file (YAML).")
	version.AddFlags(pfs)

	if a.options != nil {
		fss := a.options.Flags()
		for _, name := range fss.Order {
			a.cmd.Flags().AddFlagSet(fss.FlagSets[name])
		}
	}
	return a
}

// Command returns the underlying cobra command.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

// Run executes the command and exits the process on error. SIGINT or
// SIGTERM cancels the run context; a second signal exits immediately.
func (a *App) Run() {
	if err := a.cmd.ExecuteContext(signalContext()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		cancel()
		<-c
		os.Exit(1)
	}()
	return ctx
}

func (a *App) runCommand(cmd *cobra.Command, _ []string) error {
	version.PrintAndExitIfRequested()

	if err := a.loadConfig(cmd); err != nil {
		return err
	}
	if a.options != nil {
		if err := a.options.Complete(); err != nil {
			return err
		}
		if err := a.options.Validate(); err != nil {
			return err
		}
	}
	if a.runFunc == nil {
		return nil
	}
	return a.runFunc(cmd.Context())
}

// loadConfig reads the config file, binds environment variables and flags,
// and decodes the result into the options.
func (a *App) loadConfig(cmd *cobra.Command) error {
	if err := a.readConfigFile(cmd); err != nil {
		return err
	}
	expandEnvVars()

	viper.SetEnvPrefix(a.envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	if a.options == nil {
		return nil
	}

	// Unmarshal 会覆盖显式设置的参数，之后重新应用一次
	changed := map[string]string{}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})
	if err := viper.Unmarshal(a.options); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	for name, val := range changed {
		if err := cmd.Flags().Set(name, val); err != nil {
			return fmt.Errorf("failed to apply flag --%s: %w", name, err)
		}
	}
	return nil
}

// readConfigFile reads --config, or searches the usual locations for
// <name>.yaml. A missing file is not an error unless it was named.
func (a *App) readConfigFile(cmd *cobra.Command) error {
	file, _ := cmd.Flags().GetString("config")
	if file != "" {
		viper.SetConfigFile(file)
	} else {
		viper.SetConfigName(a.name)
		viper.SetConfigType("yaml")
		for _, dir := range []string{".", "./configs", filepath.Join(os.Getenv("HOME"), "."+a.name), "/etc/" + a.name} {
			viper.AddConfigPath(dir)
		}
	}

	err := viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		return nil
	case file == "" && errors.As(err, &notFound):
		return nil
	default:
		return fmt.Errorf("failed to read config file: %w", err)
	}
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces ${VAR} and $VAR in string values. Unset variables
// are left as written.
func expandEnvVars() {
	for _, key := range viper.AllKeys() {
		s, ok := viper.Get(key).(string)
		if !ok || !strings.Contains(s, "$") {
			continue
		}
		expanded := envRef.ReplaceAllStringFunc(s, func(ref string) string {
			m := envRef.FindStringSubmatch(ref)
			name := m[1] + m[2]
			if v, ok := os.LookupEnv(name); ok {
				return v
			}
			return ref
		})
		if expanded != s {
			viper.Set(key, expanded)
		}
	}
}

// GetVersion returns the git version stamped at build time.
func GetVersion() string {
	return version.Get().GitVersion
}
