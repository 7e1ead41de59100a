// Package cli implements erpctl, the operator command line for the ERP server.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"erp-server/internal/client"
	"erp-server/internal/config"
	"erp-server/internal/core"
	"erp-server/internal/db"
	"erp-server/internal/logger"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// options holds the global flags shared by every subcommand.
type options struct {
	configPath string
	serverURL  string
	tokenFile  string
	debug      bool

	out io.Writer
	log zerolog.Logger
}

// NewRootCommand builds the erpctl command tree. Output goes to out; logs go
// to stderr.
func NewRootCommand(version string, out io.Writer) *cobra.Command {
	o := &options{out: out}

	root := &cobra.Command{
		Use:           "erpctl",
		Short:         "Operate an ERP server: migrations, reports, notifications",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := "info"
			if o.debug {
				level = "debug"
			}
			o.log = logger.NewWithWriter(logger.Config{
				Level:       level,
				Format:      "console",
				ServiceName: "erpctl",
				Version:     version,
			}, os.Stderr)
		},
	}

	serverDefault := os.Getenv("ERP_SERVER_URL")
	if serverDefault == "" {
		serverDefault = "http://localhost:8080"
	}
	root.PersistentFlags().StringVar(&o.configPath, "config", os.Getenv("ERP_CONFIG"), "path to a YAML config file")
	root.PersistentFlags().StringVar(&o.serverURL, "server", serverDefault, "ERP server base URL")
	root.PersistentFlags().StringVar(&o.tokenFile, "token-file", client.DefaultTokenPath(), "where the login token is kept")
	root.PersistentFlags().BoolVar(&o.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		migrateCmd(o),
		loginCmd(o),
		reportCmd(o),
		notificationsCmd(o),
		checkCmd(o),
		&cobra.Command{
			Use:   "version",
			Short: "Print the erpctl version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(o.out, version)
			},
		},
	)
	return root
}

func (o *options) client() *client.Client {
	return client.New(o.serverURL,
		client.WithTokenStore(&client.FileStore{Path: o.tokenFile}),
		client.OnUnauthorized(func() {
			o.log.Warn().Msg("session expired or invalid, run `erpctl login`")
		}),
	)
}

func migrateCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect database migrations",
	}
	step := func(use, short string, fn func(context.Context, string) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load(o.configPath)
				if err != nil {
					return err
				}
				if cfg.Database.URL == "" {
					return errors.New("database.url (ERP_DATABASE_URL) is required")
				}
				if err := fn(cmd.Context(), cfg.Database.URL); err != nil {
					return err
				}
				o.log.Info().Str("step", use).Msg("migrate done")
				return nil
			},
		}
	}
	cmd.AddCommand(
		step("up", "Apply all pending migrations", db.MigrateUp),
		step("down", "Roll back the most recent migration", db.MigrateDown),
		step("status", "Print applied and pending migrations", db.MigrateStatus),
	)
	return cmd
}

func loginCmd(o *options) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the token for later commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("ERP_PASSWORD")
			}
			if username == "" || password == "" {
				return errors.New("--username and --password (or ERP_PASSWORD) are required")
			}
			resp, err := o.client().Login(cmd.Context(), username, password)
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}
			fmt.Fprintf(o.out, "Logged in as %s (%s). Token valid until %s.\n",
				resp.User.Username, resp.User.Role, resp.ExpiresAt.Local().Format(time.RFC1123))
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password")
	return cmd
}

func reportCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Fetch financial reports",
	}

	var asOf, xlsxPath string
	tb := &cobra.Command{
		Use:   "trial-balance",
		Short: "Print the trial balance, or save it as xlsx",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if asOf != "" {
				q.Set("as_of", asOf)
			}
			c := o.client()
			const path = "/api/v1/finance/reports/trial-balance"
			if xlsxPath != "" {
				q.Set("format", "xlsx")
				return download(cmd.Context(), c, path, q, xlsxPath)
			}
			var result core.TrialBalance
			if err := c.Do(cmd.Context(), "GET", path, q, nil, &result); err != nil {
				return fmt.Errorf("trial balance: %w", err)
			}
			printTrialBalance(o.out, result)
			return nil
		},
	}
	tb.Flags().StringVar(&asOf, "as-of", "", "report date (YYYY-MM-DD), default today")
	tb.Flags().StringVar(&xlsxPath, "xlsx", "", "write an xlsx workbook to this path")
	cmd.AddCommand(tb)
	return cmd
}

func download(ctx context.Context, c *client.Client, path string, q url.Values, dest string) error {
	body, err := c.Download(ctx, path, q)
	if err != nil {
		return err
	}
	defer body.Close()
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", dest, err)
	}
	return f.Close()
}

func printTrialBalance(w io.Writer, tb core.TrialBalance) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintf(w, "  TRIAL BALANCE as of %s\n", tb.AsOfDate)
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintf(w, "  %-10s %-30s %13s %13s\n", "CODE", "NAME", "DEBIT", "CREDIT")
	fmt.Fprintln(w, strings.Repeat("-", 72))
	for _, a := range tb.Accounts {
		fmt.Fprintf(w, "  %-10s %-30s %13s %13s\n", a.AccountCode, truncate(a.AccountName, 30),
			a.Debit.StringFixed(2), a.Credit.StringFixed(2))
	}
	fmt.Fprintln(w, strings.Repeat("-", 72))
	fmt.Fprintf(w, "  %-41s %13s %13s\n", "TOTAL", tb.TotalDebits.StringFixed(2), tb.TotalCredits.StringFixed(2))
	fmt.Fprintln(w, strings.Repeat("=", 72))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func notificationsCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Read notifications",
	}
	var interval time.Duration
	watch := &cobra.Command{
		Use:   "watch",
		Short: "Poll notifications until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			seen := map[string]bool{}
			p := client.NewPoller(o.client(), interval, func(s client.NotificationSnapshot, err error) {
				if err != nil {
					o.log.Warn().Err(err).Msg("poll failed")
					return
				}
				for _, n := range s.Notifications.Items {
					if seen[n.ID.String()] {
						continue
					}
					seen[n.ID.String()] = true
					printNotification(o.out, n)
				}
				o.log.Debug().Int64("unread", s.Unread).Msg("polled")
			})
			err := p.Run(cmd.Context())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	watch.Flags().DurationVar(&interval, "interval", client.DefaultPollInterval, "poll interval")
	cmd.AddCommand(watch)
	return cmd
}

func printNotification(w io.Writer, n core.Notification) {
	mark := " "
	if !n.IsRead {
		mark = "*"
	}
	fmt.Fprintf(w, "%s %s  [%s] %s: %s\n", mark, n.CreatedAt.Local().Format("2006-01-02 15:04"), n.Type, n.Title, n.Message)
}

// checkCmd is a smoke test: health, then the authenticated identity.
func checkCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check server health and the stored login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := o.client()
			health, err := c.Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("health: %w", err)
			}
			fmt.Fprintf(o.out, "server   %s (database %s, version %s)\n", health["status"], health["database"], health["version"])

			if c.Tokens().Token() == "" {
				fmt.Fprintln(o.out, "login    not logged in")
				return nil
			}
			me, err := c.Me(cmd.Context())
			if err != nil {
				return fmt.Errorf("whoami: %w", err)
			}
			fmt.Fprintf(o.out, "login    %s (%s)\n", me.Username, me.Role)
			return nil
		},
	}
}
