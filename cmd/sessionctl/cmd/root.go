package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const configPathEnvVar = "SESSION_CONFIG"

var (
	cfgFile  string
	logLevel string
	noBanner bool

	cfg    config.Config
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
)

var rootCmd = &cobra.Command{
	Use:   "sessionctl",
	Short: "Manage an authenticated session against the auth API",
	Long: `sessionctl logs in to the auth API, keeps the credential in a local
SQLite store and sends authenticated requests, renewing the access token
when the API rejects it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		path := cfgFile
		if path == "" {
			path = os.Getenv(configPathEnvVar)
		}
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded

		lvl := logLevel
		if lvl == "" {
			lvl = cfg.GetLogLevel()
		}
		level, err := zerolog.ParseLevel(lvl)
		if err != nil {
			return err
		}
		logger = logger.Level(level)
		return nil
	},
}

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $"+configPathEnvVar+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); defaults to LOG_LEVEL")
	rootCmd.PersistentFlags().BoolVar(&noBanner, "no-banner", false, "do not print the application banner")
}
