package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"catalog-enricher/internal/app"
	"catalog-enricher/internal/config"
	"catalog-enricher/internal/logger"
	"catalog-enricher/internal/models"
	"catalog-enricher/internal/pipeline"
	"catalog-enricher/internal/scheduler"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "enrich",
		Short:         "Catalog enrichment pipeline",
		SilenceUsage: true,
	}
	root.AddCommand(syncCmd(), reprocessCmd(), stopCmd(), statusCmd(), scheduleCmd())
	return root
}

const shutdownTimeout = 30 * time.Second

// withApp arma la aplicación, corre fn y libera recursos
func withApp(fn func(ctx context.Context, a *app.Application) error) error {
	cfg := config.LoadConfig()
	zl, err := logger.Init(logger.Options{Mode: cfg.LogMode, Filename: cfg.LogFile})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.Close(closeCtx)
	}()
	return fn(ctx, a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSummary(sum pipeline.Summary) error {
	return printJSON(struct {
		DBName   string `json:"dbName"`
		State    string `json:"state"`
		Total    int    `json:"total"`
		Failed   int    `json:"failed"`
		Stopped  bool   `json:"stopped"`
		Duration string `json:"duration"`
	}{sum.DBName, string(sum.State), sum.Total, sum.Failed, sum.Stopped, sum.Duration.Round(time.Millisecond).String()})
}

func syncCmd() *cobra.Command {
	var dbName string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch the full catalog and enrich it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.Application) error {
				job, err := a.Job(dbName)
				if err != nil {
					return err
				}
				sum, err := a.Service.Sync(ctx, job)
				if err != nil {
					return err
				}
				return printSummary(sum)
			})
		},
	}
	cmd.Flags().StringVar(&dbName, "job", "", "store dbName from the jobs file")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}

func reprocessCmd() *cobra.Command {
	var (
		dbName          string
		onlyMissingSoft bool
		category        string
		mode            string
	)
	cmd := &cobra.Command{
		Use:   "reprocess",
		Short: "Reclassify stored products that need it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.Application) error {
				job, err := a.Job(dbName)
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("only-missing-soft") {
					job.OnlyMissingSoftCategory = onlyMissingSoft
				}
				if category != "" {
					job.CategoryFilter = category
				}
				if mode != "" {
					job.Mode = models.SyncMode(mode)
				}
				sum, err := a.Service.Reprocess(ctx, job)
				if err != nil {
					return err
				}
				return printSummary(sum)
			})
		},
	}
	cmd.Flags().StringVar(&dbName, "job", "", "store dbName from the jobs file")
	cmd.Flags().BoolVar(&onlyMissingSoft, "only-missing-soft", false, "only products with categories and no soft categories")
	cmd.Flags().StringVar(&category, "category", "", "only products in this category")
	cmd.Flags().StringVar(&mode, "mode", "", "text or image")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <dbName>",
		Short: "Request a cooperative stop of the running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.Application) error {
				if err := a.Service.Stop(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("stop requested")
				return nil
			})
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <dbName>",
		Short: "Show the last run status and logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.Application) error {
				status, err := a.Service.Status(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(status)
			})
		},
	}
}

func scheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run scheduled reprocessing in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.Application) error {
				sched := scheduler.New(a.Service, time.Local, a.Logger)
				n, err := sched.Register(a.Jobs)
				if err != nil {
					return err
				}
				if n == 0 {
					return fmt.Errorf("no job in %s has a schedule", a.Config.JobsFile)
				}
				sched.Start()
				a.Logger.Info("scheduler running", zap.Int("entries", n))

				<-ctx.Done()
				<-sched.Stop().Done()
				return nil
			})
		},
	}
}
