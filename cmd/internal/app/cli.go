package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"secretportal/cmd/internal/tunnel"
)

// Execute is the CLI entrypoint used by cmd/secretportal. It returns an
// error instead of calling os.Exit to keep defers effective.
func Execute() error {
	cfg := LoadConfig()

	var (
		timeoutSec int
		tunnelName string
	)

	root := &cobra.Command{
		Use:           "secretportal",
		Short:         "Spin up a temporary web portal for entering secrets",
		Long:          "Serves a single-use, token-gated web form. Submitted secrets are merged\ninto a KEY=VALUE env file and the portal shuts down after one submission.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("timeout") {
				cfg.Timeout = time.Duration(timeoutSec) * time.Second
			}

			provider, err := tunnel.ParseProvider(tunnelName)
			if err != nil {
				return err
			}
			cfg.Tunnel = provider

			cfg.EnvFile, err = expandPath(cfg.EnvFileDisplay)
			if err != nil {
				return err
			}

			log := NewLogger(cfg.LogLevel, cfg.LogFormat)

			a, err := New(cfg, log)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return a.Run(ctx)
		},
	}

	flags := root.Flags()
	flags.StringVarP(&cfg.EnvFileDisplay, "env-file", "f", cfg.EnvFileDisplay, "env file to save secrets to")
	flags.IntVarP(&cfg.Port, "port", "p", cfg.Port, "port to listen on (0 = random available port)")
	flags.StringVar(&cfg.Host, "host", cfg.Host, "host to bind to")
	flags.IntVar(&timeoutSec, "timeout", int(cfg.Timeout/time.Second), "auto-shutdown after N seconds with no submission")
	flags.StringVarP(&cfg.KeyName, "key", "k", "", "pre-populate a single key name (user only enters the value)")
	flags.StringVarP(&cfg.Instructions, "instructions", "i", "", "guide text shown above the input (supports basic HTML)")
	flags.StringVarP(&cfg.Link, "link", "l", "", "URL where the user can get/create the key (shown as a button)")
	flags.StringVar(&cfg.LinkText, "link-text", cfg.LinkText, "label for the link button")
	flags.StringVar(&tunnelName, "tunnel", string(tunnel.ProviderNone), "tunnel provider to expose the portal publicly (ngrok, cloudflared, none)")

	return root.Execute()
}

// expandPath resolves a leading ~ to the user's home directory.
func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("empty env file path")
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		if path == "~" {
			return home, nil
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}
