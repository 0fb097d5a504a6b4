package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/submitty/registrar-autofeed/modules/feed/domain"
	"github.com/submitty/registrar-autofeed/modules/feed/infrastructure/persistence"
	"github.com/submitty/registrar-autofeed/modules/feed/services"
	"github.com/submitty/registrar-autofeed/pkg/configuration"
	"github.com/submitty/registrar-autofeed/pkg/feedlog"
)

type runOptions struct {
	term    string
	dbAuth  string
	logTest bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reconcile the registrar export against the master database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeed(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.term, "term", "t", "", "term code, e.g. f24")
	_ = cmd.MarkFlagRequired("term")
	cmd.Flags().StringVar(&opts.dbAuth, "db-auth", "", "database credential override as user:password@host")
	cmd.Flags().BoolVar(&opts.logTest, "log-test", false, "emit one test message through the full log path and exit")
	return cmd
}

func runFeed(ctx context.Context, opts runOptions) error {
	cfg, err := configuration.Load()
	if err != nil {
		return withCode(exitUsage, err)
	}
	if opts.dbAuth != "" {
		if err := applyDBAuth(cfg, opts.dbAuth); err != nil {
			return withCode(exitUsage, err)
		}
	}

	logger := logrus.New()
	logger.SetLevel(cfg.LogrusLogLevel())
	queue := feedlog.NewQueue(logger)

	if opts.logTest {
		queue.Logf("Logging test requested; this is the only message this run will produce.")
		return flushQueue(queue, cfg, opts.term, logger)
	}

	pool, err := persistence.Connect(ctx, cfg.Database.ConnectionString())
	if err != nil {
		queue.Logf("Cannot connect to database: %v", err)
		_ = flushQueue(queue, cfg, opts.term, logger)
		return withCode(exitDB, err)
	}
	defer pool.Close()

	pipeline := services.NewPipeline(
		cfg,
		persistence.NewCatalogRepository(pool),
		persistence.NewReconcileRepository(pool),
		queue,
	)

	runErr := pipeline.Run(ctx, opts.term)
	if runErr != nil {
		queue.Logf("Run aborted: %v", runErr)
	}
	if err := flushQueue(queue, cfg, opts.term, logger); err != nil {
		logger.WithError(err).Error("could not flush run report")
	}

	var refErr *domain.ReferenceDataError
	switch {
	case runErr == nil:
		return nil
	case is(runErr, domain.ErrAnomalyVeto):
		return withCode(exitVeto, runErr)
	case as(runErr, &refErr):
		return withCode(exitDB, runErr)
	default:
		return withCode(exitValidation, runErr)
	}
}

func flushQueue(queue *feedlog.Queue, cfg *configuration.Configuration, term string, logger *logrus.Logger) error {
	return queue.Flush(feedlog.FlushOptions{
		Term:     term,
		LogFile:  cfg.ErrorLogFile,
		Email:    cfg.ErrorEmail,
		SMTPAddr: cfg.SMTPAddr,
		From:     cfg.MailFrom,
	})
}

// applyDBAuth overrides the configured database credentials from a
// user:password@host argument.
func applyDBAuth(cfg *configuration.Configuration, dbAuth string) error {
	at := strings.LastIndex(dbAuth, "@")
	if at < 0 {
		return fmt.Errorf("--db-auth must be user:password@host, got %q", dbAuth)
	}
	cred, host := dbAuth[:at], dbAuth[at+1:]
	user, password, ok := strings.Cut(cred, ":")
	if !ok || user == "" || host == "" {
		return fmt.Errorf("--db-auth must be user:password@host, got %q", dbAuth)
	}
	cfg.Database.User = user
	cfg.Database.Password = password
	cfg.Database.Host = host
	cfg.Database.Opts = cfg.Database.ConnectionString()
	return nil
}
