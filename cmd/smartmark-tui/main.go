// Command smartmark-tui is a terminal client for a smartmark server.
//
// Settings come from flags, SMARTMARK_* environment variables and
// ~/.config/smartmark/tui.yaml, in that order of priority.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/patric-chuzhbe/smartmark/internal/logger"
	"github.com/patric-chuzhbe/smartmark/internal/tui"
)

const (
	keyConfig   = "config"
	keyServer   = "server"
	keyToken    = "token"
	keyToastTTL = "toast-ttl"
	keyTimeout  = "timeout"
	keyLogLevel = "log-level"
)

type runFunc func(ctx context.Context, opts tui.Options) error

func newRootCmd(v *viper.Viper, run runFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smartmark-tui",
		Short: "Terminal client for smartmark bookmarks",
		Long: `smartmark-tui lists, searches, adds and deletes your bookmarks and
follows changes made from other sessions as they happen.

Sign in with your browser at <server>/auth/login, then paste the token
from <server>/api/session, or keep it in the token setting.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(v)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := optionsFrom(v)
			if err != nil {
				return err
			}

			if level := v.GetString(keyLogLevel); level != "" {
				if err := logger.Init(level); err != nil {
					return err
				}
				defer func() { _ = logger.Sync() }()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringP(keyConfig, "c", "", "config file (default is $HOME/.config/smartmark/tui.yaml)")
	flags.StringP(keyServer, "s", "http://localhost:8080", "smartmark server URL")
	flags.StringP(keyToken, "t", "", "session token; asked for interactively when empty")
	flags.Duration(keyToastTTL, 2*time.Second, "how long notifications stay on screen")
	flags.Duration(keyTimeout, 10*time.Second, "timeout of a single API call")
	flags.String(keyLogLevel, "", "log to stderr at this level (debug, info, warning, error)")

	for _, key := range []string{keyConfig, keyServer, keyToken, keyToastTTL, keyTimeout, keyLogLevel} {
		_ = v.BindPFlag(key, flags.Lookup(key))
	}

	return cmd
}

func initConfig(v *viper.Viper) error {
	v.SetEnvPrefix("SMARTMARK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile := v.GetString(keyConfig); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("in cmd/smartmark-tui/main.go/initConfig(): error while `v.ReadInConfig()` calling: %w", err)
		}
		return nil
	}

	v.SetConfigName("tui")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "smartmark"))
	}

	var notFound viper.ConfigFileNotFoundError
	if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
		return fmt.Errorf("in cmd/smartmark-tui/main.go/initConfig(): error while `v.ReadInConfig()` calling: %w", err)
	}

	return nil
}

func optionsFrom(v *viper.Viper) (tui.Options, error) {
	opts := tui.Options{
		Server:   strings.TrimRight(v.GetString(keyServer), "/"),
		Token:    v.GetString(keyToken),
		ToastTTL: v.GetDuration(keyToastTTL),
		Timeout:  v.GetDuration(keyTimeout),
	}

	if opts.Server == "" {
		return tui.Options{}, errors.New("server URL is required")
	}
	if opts.ToastTTL <= 0 {
		return tui.Options{}, errors.New("toast-ttl must be positive")
	}

	return opts, nil
}

func main() {
	cobra.CheckErr(newRootCmd(viper.New(), tui.Run).Execute())
}
