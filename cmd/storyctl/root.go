package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhouzirui/webverse/backend/internal/config"
	"github.com/zhouzirui/webverse/backend/internal/logger"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	proxyURL string
	timeout  time.Duration
	token    string
	logLevel string

	cfg *config.ClientConfig
	log *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "storyctl",
		Short: "Play the interactive comic story from a terminal",
		Long: "storyctl drives a story session against the WebVerse API server: it starts a story,\n" +
			"advances it with your choices and can narrate the current page.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.log != nil {
				_ = opts.log.Sync()
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.proxyURL, "proxy", "", "API server base URL (default $STORY_PROXY_URL or http://localhost:3001)")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 0, "per-request timeout (default $STORY_CLIENT_TIMEOUT or 30s)")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", "", "access token used to log in (default $STORY_ACCESS_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	rootCmd.AddCommand(newPlayCmd(opts))
	rootCmd.AddCommand(newNarrateCmd(opts))

	return rootCmd
}

// load reads the client config and applies flag overrides.
func (o *rootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("proxy") {
		cfg.ProxyURL = o.proxyURL
	}
	if flags.Changed("timeout") {
		if o.timeout <= 0 {
			return fmt.Errorf("--timeout must be positive")
		}
		cfg.Timeout = o.timeout
	}
	if flags.Changed("token") {
		cfg.AccessToken = o.token
	}

	logCfg := cfg.Log.Logger()
	logCfg.Level = o.logLevel
	logCfg.Encoding = "console"
	logCfg.OutputPath = "stderr"
	log, err := logger.New(logCfg)
	if err != nil {
		return err
	}

	o.cfg = cfg
	o.log = log
	return nil
}
