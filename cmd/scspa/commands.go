package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"scspa/auth"
	"scspa/sdk"
)

var errDenied = errors.New("permission denied")

func loadConfig(opts *rootOptions) (sdk.Config, error) {
	if _, err := os.Stat(opts.configPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return sdk.Config{}, fmt.Errorf("config file not found at %s. Run `scspa config init` to create it", opts.configPath)
		}
		return sdk.Config{}, fmt.Errorf("stat config: %w", err)
	}
	opts.logger.Debug("loading config", "path", opts.configPath)
	return sdk.LoadConfig(opts.configPath)
}

// withApp loads config, builds the SDK and runs fn with a signal-aware context.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *cliApp) error) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newCLIApp(ctx, cfg, opts.logger, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func commandLogin(opts *rootOptions, action string) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   action,
		Short: fmt.Sprintf("Start a %s through the browser and store the session", action),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *cliApp) error {
				redirect, err := url.Parse(a.cfg.RedirectURI)
				if err != nil {
					return fmt.Errorf("parse redirect uri: %w", err)
				}
				ln, err := net.Listen("tcp", redirect.Host)
				if err != nil {
					return fmt.Errorf("listen on %s: %w", redirect.Host, err)
				}
				ctx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()
				if err := a.authorize(ctx, action, ln); err != nil {
					return err
				}
				u := a.sdk.User()
				fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", u.Name, u.ID)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "How long to wait for the browser callback")
	return cmd
}

func commandToken(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print a valid access token, refreshing it when needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *cliApp) error {
				if err := a.restore(ctx); err != nil {
					return err
				}
				token, err := a.sdk.GetAccessToken(ctx)
				if err != nil {
					return err
				}
				if token == "" {
					return errNotLoggedIn
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}
}

func commandWhoami(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the signed-in user as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *cliApp) error {
				if err := a.restore(ctx); err != nil {
					return err
				}
				u := a.sdk.User()
				if u == nil {
					return errNotLoggedIn
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(u)
			})
		},
	}
}

// requirementFromArgs reads a single JSON requirement, or treats the
// arguments as permissions that are all required.
func requirementFromArgs(args []string) (auth.Requirement, error) {
	if len(args) == 1 && strings.HasPrefix(strings.TrimSpace(args[0]), "[") {
		return auth.ParseRequirement([]byte(args[0]))
	}
	return auth.AllOf(args...), nil
}

func commandCan(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "can <permission>... | can '<json requirement>'",
		Short: "Check the session's permissions",
		Long: "Check the access token's permissions. Plain arguments are all required; a single JSON\n" +
			"argument such as '[[\"a\",\"b\"],[\"c\"]]' is satisfied by any fully held group.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := requirementFromArgs(args)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *cliApp) error {
				if err := a.restore(ctx); err != nil {
					return err
				}
				ok, err := a.sdk.HasPermissions(req)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "denied")
					return errDenied
				}
				fmt.Fprintln(cmd.OutOrStdout(), "allowed")
				return nil
			})
		},
	}
}

func commandLogout(opts *rootOptions) *cobra.Command {
	var redirect string
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session and print the end-session URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *cliApp) error {
				if err := a.restore(ctx); err != nil {
					return err
				}
				return a.sdk.LogoutViaRedirect(ctx, redirect)
			})
		},
	}
	cmd.Flags().StringVar(&redirect, "redirect", "", "post_logout_redirect_uri to send")
	return cmd
}

func commandCapabilities(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities",
		Short: "List the API calls panels are allowed to make",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *cliApp) error {
				for _, name := range a.sdk.Capabilities.Names() {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			})
		},
	}
}
