// sessionctl signs in to a running session service from the terminal and, with watch, keeps the
// session alive the way a browser client does.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"coliving-platform/backend/internal/logging"
	"coliving-platform/backend/pkg/sessionclient"
)

type options struct {
	baseURL  string
	email    string
	password string
	interval time.Duration
	logLevel string
}

func main() {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:           "sessionctl",
		Short:         "Sign in to the co-living session service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.baseURL, "base-url", "http://localhost:3000", "Session service base URL")
	rootCmd.PersistentFlags().StringVar(&opts.email, "email", "", "Account email")
	rootCmd.PersistentFlags().StringVar(&opts.password, "password", "", "Account password (default $SESSIONCTL_PASSWORD)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level")

	rootCmd.AddCommand(loginCmd(opts), watchCmd(opts))
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "sessionctl:", err)
		os.Exit(1)
	}
}

func (o *options) client(nav sessionclient.Navigator) (*sessionclient.Client, error) {
	if o.email == "" {
		return nil, errors.New("--email is required")
	}
	if o.password == "" {
		o.password = os.Getenv("SESSIONCTL_PASSWORD")
	}
	if o.password == "" {
		return nil, errors.New("--password or SESSIONCTL_PASSWORD is required")
	}
	logger, err := logging.New(o.logLevel, "development")
	if err != nil {
		return nil, err
	}
	return sessionclient.NewClient(sessionclient.Config{
		BaseURL:         o.baseURL,
		RefreshInterval: o.interval,
		Navigator:       nav,
		Logger:          logger,
	})
}

func login(ctx context.Context, c *sessionclient.Client, o *options) (*sessionclient.User, error) {
	u, err := c.Login(ctx, o.email, o.password)
	switch {
	case errors.Is(err, sessionclient.ErrEmailNotVerified):
		return nil, fmt.Errorf("%s has not verified their email yet; check the inbox (or run seed verify-email)", o.email)
	case errors.Is(err, sessionclient.ErrInvalidCredentials):
		return nil, errors.New("wrong email or password")
	case err != nil:
		return nil, err
	}
	return u, nil
}

func loginCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in once and print the session user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.client(nil)
			if err != nil {
				return err
			}
			defer c.Close()
			u, err := login(cmd.Context(), c, o)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s (role %s, id %s)\n", u.Email, u.Role, u.ID)
			return nil
		},
	}
}

func watchCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sign in and keep the session refreshed until interrupted or it ends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ended := make(chan string, 1)
			nav := sessionclient.NavigatorFunc(func(path string) {
				select {
				case ended <- path:
				default:
				}
			})
			c, err := o.client(nav)
			if err != nil {
				return err
			}
			defer c.Close()
			c.Subscribe(func(authenticated bool) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s authenticated=%t\n", time.Now().Format(time.RFC3339), authenticated)
			})

			u, err := login(ctx, c, o)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s; refreshing every %s\n", u.Email, o.refreshInterval())

			select {
			case <-ctx.Done():
				logoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return c.Logout(logoutCtx)
			case path := <-ended:
				return fmt.Errorf("session ended; sign in again at %s", path)
			}
		},
	}
	cmd.Flags().DurationVar(&o.interval, "interval", sessionclient.DefaultRefreshInterval, "Background refresh interval (must be under 15m)")
	return cmd
}

func (o *options) refreshInterval() time.Duration {
	if o.interval == 0 {
		return sessionclient.DefaultRefreshInterval
	}
	return o.interval
}
