package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/socialbot/follower-tracker/internal/config"
	"github.com/socialbot/follower-tracker/internal/database"
	"github.com/socialbot/follower-tracker/internal/di"
	"github.com/socialbot/follower-tracker/internal/observability"
	"github.com/socialbot/follower-tracker/internal/repository"
	"github.com/socialbot/follower-tracker/internal/service"
	"github.com/socialbot/follower-tracker/internal/tools/common"
	"github.com/socialbot/follower-tracker/internal/tools/ui"
)

type options struct {
	envFile string
	ci      bool
	verbose bool
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "follower-tracker",
		Short:         "Follower tracking backend with session-backed authentication",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before configuration")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "log at the configured level during one-shot commands")
	cmd.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newUserCommand(opts),
		newSessionsCommand(opts),
		newPollCommand(opts),
	)
	return cmd
}

func loadConfig(opts *options) (*config.Config, error) {
	if err := common.LoadEnvFile(opts.envFile); err != nil {
		return nil, err
	}
	return config.Load()
}

func newServeCommand(opts *options) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and scheduled tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger, lp, err := observability.NewLogger(ctx, cfg, os.Stdout)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			runtime, err := observability.InitRuntime(ctx, cfg, logger, lp)
			if err != nil {
				return err
			}
			a, err := di.InitializeApp(ctx, cfg, logger, runtime)
			if err != nil {
				_ = runtime.Shutdown(context.WithoutCancel(ctx))
				return err
			}
			if migrate {
				if err := database.Migrate(a.DB); err != nil {
					_ = a.Shutdown(context.WithoutCancel(ctx))
					return err
				}
			}
			return a.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply schema migrations before serving")
	return cmd
}

// withCore builds the service graph for a one-shot command and releases it afterwards.
func withCore(opts *options, title string, fn func(ctx context.Context, core *di.Core) ([]string, error)) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if !opts.verbose {
		cfg.LogLevel = "warn"
	}
	logCfg := *cfg
	logCfg.OTELLogsEnabled = false
	logger, _, err := observability.NewLogger(context.Background(), &logCfg, os.Stderr)
	if err != nil {
		return err
	}

	details, err := run(opts, title, func(ctx context.Context) ([]string, error) {
		core, err := di.InitializeCore(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		defer func() { _ = core.Close() }()
		return fn(ctx, core)
	})
	if opts.ci {
		common.PrintCIResult(err == nil, title, details, err)
	}
	return err
}

func run(opts *options, title string, fn func(context.Context) ([]string, error)) ([]string, error) {
	if opts.ci {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()
		return fn(ctx)
	}
	return ui.Run(title, fn)
}

func newMigrateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(opts, "migrate", func(ctx context.Context, core *di.Core) ([]string, error) {
				if err := database.Migrate(core.DB); err != nil {
					return nil, err
				}
				details := []string{"schema is up to date"}
				seeded, err := seedUser(ctx, core)
				if err != nil {
					return details, err
				}
				if seeded != "" {
					details = append(details, seeded)
				}
				return details, nil
			})
		},
	}
}

// seedUser creates the SEED_USER_* account when it is configured and missing.
func seedUser(ctx context.Context, core *di.Core) (string, error) {
	cfg := core.Config
	if cfg.SeedUserUsername == "" {
		return "", nil
	}
	user, created, err := core.Users.EnsureUser(ctx, service.RegisterInput{
		Username: cfg.SeedUserUsername,
		Email:    cfg.SeedUserEmail,
		Password: cfg.SeedUserPassword,
	})
	if err != nil {
		return "", fmt.Errorf("seed user %s: %w", cfg.SeedUserUsername, err)
	}
	if !created {
		return fmt.Sprintf("seed user %s already exists", user.Username), nil
	}
	return fmt.Sprintf("seed user %s created (%s)", user.Username, user.ID), nil
}

func newUserCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage user accounts"}
	var in service.RegisterInput
	var chatID string
	create := &cobra.Command{
		Use:   "create",
		Short: "Register a user account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if chatID != "" {
				in.ChatID = &chatID
			}
			return withCore(opts, "user create", func(ctx context.Context, core *di.Core) ([]string, error) {
				user, err := core.Users.Register(ctx, in)
				if err != nil {
					return nil, err
				}
				return []string{"user_id=" + user.ID, "username=" + user.Username}, nil
			})
		},
	}
	create.Flags().StringVar(&in.Username, "username", "", "username")
	create.Flags().StringVar(&in.Email, "email", "", "email address")
	create.Flags().StringVar(&in.Password, "password", "", "password (at least 8 characters)")
	create.Flags().StringVar(&chatID, "chat-id", "", "telegram chat id for follower alerts")
	_ = create.MarkFlagRequired("username")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("password")

	var page, pageSize int
	list := &cobra.Command{
		Use:   "list",
		Short: "List user accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(opts, "user list", func(ctx context.Context, core *di.Core) ([]string, error) {
				result, err := core.Users.List(ctx, repository.PageRequest{Page: page, PageSize: pageSize})
				if err != nil {
					return nil, err
				}
				lines := make([]string, 0, len(result.Items)+1)
				for _, u := range result.Items {
					lines = append(lines, fmt.Sprintf("%s username=%s email=%s active=%t", u.ID, u.Username, u.Email, u.IsActive))
				}
				lines = append(lines, fmt.Sprintf("page=%d/%d total=%d", result.Page, result.TotalPages, result.Total))
				return lines, nil
			})
		},
	}
	list.Flags().IntVar(&page, "page", repository.DefaultPage, "page number")
	list.Flags().IntVar(&pageSize, "page-size", repository.DefaultPageSize, "users per page")

	cmd.AddCommand(create, list,
		newUserStateCommand(opts, "activate", "Re-enable a user account", func(ctx context.Context, core *di.Core, id string) error {
			return core.Users.SetActive(ctx, id, true)
		}),
		newUserStateCommand(opts, "deactivate", "Disable a user account and revoke its sessions", func(ctx context.Context, core *di.Core, id string) error {
			return core.Users.SetActive(ctx, id, false)
		}),
		newUserStateCommand(opts, "delete", "Delete a user with its sessions and tracks", func(ctx context.Context, core *di.Core, id string) error {
			return core.Users.Delete(ctx, id)
		}),
	)
	return cmd
}

func newUserStateCommand(opts *options, use, short string, apply func(context.Context, *di.Core, string) error) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(opts, "user "+use, func(ctx context.Context, core *di.Core) ([]string, error) {
				if err := apply(ctx, core, userID); err != nil {
					return nil, err
				}
				return []string{"user_id=" + userID, "action=" + use}, nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "target user id")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}

func newSessionsCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "sessions", Short: "Administer login sessions"}

	var userID, sessionID string
	revoke := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke one session or every session of a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (userID == "") == (sessionID == "") {
				return errors.New("exactly one of --user-id or --session-id is required")
			}
			return withCore(opts, "sessions revoke", func(ctx context.Context, core *di.Core) ([]string, error) {
				if sessionID != "" {
					status, err := core.Sessions.AdminRevokeSession(ctx, sessionID)
					if err != nil {
						return nil, err
					}
					return []string{"session_id=" + sessionID, "status=" + status}, nil
				}
				n, err := core.Sessions.RevokeAllForUser(ctx, userID, "admin_revoked")
				if err != nil {
					return nil, err
				}
				return []string{"user_id=" + userID, fmt.Sprintf("revoked=%d", n)}, nil
			})
		},
	}
	revoke.Flags().StringVar(&userID, "user-id", "", "revoke every active session of this user")
	revoke.Flags().StringVar(&sessionID, "session-id", "", "revoke a single session")

	var window time.Duration
	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Drop cache entries of recently revoked sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(opts, "sessions sweep", func(ctx context.Context, core *di.Core) ([]string, error) {
				w := window
				if w <= 0 {
					w = di.SweepLookback(core.Config)
				}
				n, err := core.Sessions.SweepRevoked(ctx, w)
				if err != nil {
					return nil, err
				}
				return []string{"window=" + w.String(), fmt.Sprintf("invalidated=%d", n)}, nil
			})
		},
	}
	sweep.Flags().DurationVar(&window, "window", 0, "look-back window (default the longest a cached session can outlive its revocation)")

	cmd.AddCommand(revoke, sweep)
	return cmd
}

func newPollCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "poll", Short: "Follower polling"}
	cmd.AddCommand(&cobra.Command{
		Use:   "once",
		Short: "Poll every alert-enabled track once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(opts, "poll once", func(ctx context.Context, core *di.Core) ([]string, error) {
				res, err := core.Checker.CheckAll(ctx)
				details := []string{fmt.Sprintf("checked=%d changed=%d alerted=%d failed=%d", res.Checked, res.Changed, res.Alerted, res.Failed)}
				return details, err
			})
		},
	})
	return cmd
}
