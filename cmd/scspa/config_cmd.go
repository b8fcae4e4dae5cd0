package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"scspa/sdk"
)

func commandConfig(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or check the config file",
	}
	cmd.AddCommand(commandConfigInit(opts), commandConfigValidate(opts))
	return cmd
}

func commandConfigInit(opts *rootOptions) *cobra.Command {
	var (
		domain   string
		clientID string
		force    bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file from the defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				if _, err := os.Stat(opts.configPath); err == nil {
					return fmt.Errorf("config file already exists at %s. Remove it first or pass --force", opts.configPath)
				}
			}
			cfg := sdk.DefaultConfig()
			cfg.Domain = strings.TrimRight(domain, "/")
			cfg.ClientID = clientID
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := sdk.WriteConfig(opts.configPath, cfg); err != nil {
				return err
			}
			opts.logger.Info("configuration initialized successfully", "path", opts.configPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&domain, "domain", "", "Authorization server domain, e.g. https://acme.saascannon.app")
	cmd.Flags().StringVar(&clientID, "client-id", "", "OAuth client id")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}

func commandConfigValidate(opts *rootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load the config and check the domain serves discovery",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			discovery := cfg.Domain + "/.well-known/openid-configuration"
			if err := validateURL(ctx, discovery, opts.logger); err != nil {
				opts.logger.Error("discovery URL validation failed", "domain", cfg.Domain, "error", err)
				return fmt.Errorf("discovery at %s: %w", discovery, err)
			}
			opts.logger.Info("configuration is valid", "path", opts.configPath, "domain", cfg.Domain)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Time allowed for the reachability check")
	return cmd
}

var errUnreachable = errors.New("unreachable")

func validateURL(ctx context.Context, urlStr string, logger *slog.Logger) error {
	client := &http.Client{Timeout: 5 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	logger.Debug("checking url", "url", urlStr)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errUnreachable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: received status %d", errUnreachable, resp.StatusCode)
	}
	return nil
}
