// Command poolctl - администрирование groupbuy: миграции, истечение пулов, акторы.
//
// Подключение к БД и логирование берутся из тех же переменных окружения, что и у сервера.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"groupbuy/internal/config"
	"groupbuy/internal/events"
	"groupbuy/internal/identity"
	"groupbuy/internal/models"
	"groupbuy/internal/repository"
	"groupbuy/internal/service"
	"groupbuy/pkg/crypto"
	"groupbuy/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Getenv).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// env общие настройки подкоманд, работающих с БД
type env struct {
	timeout time.Duration
	load    func() (*config.Config, error)
}

func newRootCmd(getenv func(string) string) *cobra.Command {
	e := &env{load: config.Load}

	root := &cobra.Command{
		Use:           "poolctl",
		Short:         "Administer the group-buying engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().DurationVar(&e.timeout, "timeout", time.Minute, "Operation timeout")

	root.AddCommand(
		newMigrateCmd(e),
		newExpireCmd(e),
		newActorCmd(e),
		newHashTokenCmd(getenv),
	)
	return root
}

// connect открывает БД и логгер по конфигурации окружения
func (e *env) connect(ctx context.Context) (*config.Config, *sql.DB, *utils.Logger, error) {
	cfg, err := e.load()
	if err != nil {
		return nil, nil, nil, err
	}
	log := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: "stderr",
	})
	db, err := repository.Open(ctx, cfg.Database.DSN(), 2)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, db, log, nil
}

func (e *env) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), e.timeout)
}

// ============ migrate ============

func newMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := e.context(cmd)
			defer cancel()

			_, db, _, err := e.connect(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			version, err := repository.Migrate(ctx, db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %s\n", version)
			return nil
		},
	}
}

// ============ expire ============

func newExpireCmd(e *env) *cobra.Command {
	var poolID string

	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Expire open pools past their deadline",
		Long: `Expire open pools whose expires_at has passed: the pool becomes EXPIRED
and every POOLING order in it is CANCELLED with a history note.

Without --pool every due pool is processed, the same pass the server's sweeper runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := e.context(cmd)
			defer cancel()

			cfg, db, log, err := e.connect(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			deps := service.EngineDeps{
				Store:  service.NewSQLStore(repository.NewStore(db)),
				Retry:  cfg.Engine.RetryPolicy(),
				Logger: log,
			}
			// Отмены из CLI уходят в тот же топик, что и у сервера
			if cfg.Kafka.Enabled() {
				pub, err := events.NewKafkaPublisher(events.ParseBrokers(cfg.Kafka.Brokers), cfg.Kafka.Topic, cfg.Kafka.WriteTimeout)
				if err != nil {
					return err
				}
				defer pub.Close()
				deps.Publisher = pub
			}

			engine, err := service.NewEngine(deps)
			if err != nil {
				return err
			}

			return runExpire(ctx, cmd.OutOrStdout(), engine, poolID)
		},
	}
	cmd.Flags().StringVar(&poolID, "pool", "", "Expire a single pool by id")
	return cmd
}

// expirer подмножество движка для команды expire
type expirer interface {
	ExpirePool(ctx context.Context, poolID string) (*models.PoolGroup, error)
	ExpireDue(ctx context.Context) (int, error)
}

func runExpire(ctx context.Context, out io.Writer, engine expirer, poolID string) error {
	if poolID != "" {
		pool, err := engine.ExpirePool(ctx, poolID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "pool %s is %s\n", pool.ID, pool.Status)
		return nil
	}

	n, err := engine.ExpireDue(ctx)
	fmt.Fprintf(out, "expired %d pool(s)\n", n)
	return err
}

// ============ actor ============

func newActorCmd(e *env) *cobra.Command {
	actor := &cobra.Command{
		Use:   "actor",
		Short: "Manage API actors",
	}

	var id, role string
	create := &cobra.Command{
		Use:   "create",
		Short: "Register an actor and print its bearer token",
		Long: `Register an actor and print the Authorization header value.
The token is shown once: only its bcrypt hash is stored.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := e.context(cmd)
			defer cancel()

			cfg, db, log, err := e.connect(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			store := repository.NewStore(db)
			auth := identity.NewAuthenticator(store.Actors, cfg.Security.BcryptCost, log)
			token, a, err := auth.Issue(ctx, id, models.Role(strings.ToLower(role)))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "actor %s (%s) created\nAuthorization: Bearer %s:%s\n", a.ID, a.Role, a.ID, token)
			return nil
		},
	}
	create.Flags().StringVar(&id, "id", "", "Actor id (no colons)")
	create.Flags().StringVar(&role, "role", string(models.RoleBuyer), "buyer, supplier or admin")
	_ = create.MarkFlagRequired("id")

	actor.AddCommand(create)
	return actor
}

// ============ hash-token ============

func newHashTokenCmd(getenv func(string) string) *cobra.Command {
	var cost int

	cmd := &cobra.Command{
		Use:   "hash-token [token]",
		Short: "Print the bcrypt hash of a token (reads stdin when no argument)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), crypto.MaxTokenLength+2))
				if err != nil {
					return err
				}
				token = strings.TrimRight(string(data), "\r\n")
			}

			if !cmd.Flags().Changed("cost") {
				if v := getenv("BCRYPT_COST"); v != "" {
					if _, err := fmt.Sscan(v, &cost); err != nil {
						return fmt.Errorf("invalid BCRYPT_COST %q", v)
					}
				}
			}

			hash, err := crypto.HashToken(token, cost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", crypto.DefaultCost, "bcrypt cost")
	return cmd
}
