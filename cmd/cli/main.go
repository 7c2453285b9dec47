package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/budgetsync/internal/app"
	"github.com/dvloznov/budgetsync/internal/config"
	"github.com/dvloznov/budgetsync/internal/logger"
	"github.com/dvloznov/budgetsync/internal/remote"
	"github.com/dvloznov/budgetsync/internal/report"
	"github.com/rs/zerolog"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "status":
		runStatus()
	case "drain":
		runDrain()
	case "drop-head":
		runDropHead()
	case "dead-letters":
		runDeadLetters()
	case "requeue":
		runRequeue()
	case "insights":
		runInsights()
	case "migrate":
		runMigrate()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("budgetsync CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  status        Show connectivity, pending actions and dead letters")
	fmt.Println("  drain         Push pending actions to the remote store now")
	fmt.Println("  drop-head     Dead-letter the action blocking the queue")
	fmt.Println("  dead-letters  List dead-lettered actions")
	fmt.Println("  requeue       Put a dead-lettered action back at the end of the queue")
	fmt.Println("  insights      Print the current month's dashboard insights")
	fmt.Println("  migrate       Apply BigQuery migrations for report history")
	fmt.Println("  help          Show this help message")
	fmt.Println("\nEvery command accepts -config PATH. Run 'cli <command> -h' for more.")
}

// setup parses the subcommand flags, loads config and builds the app
// without starting the background sync loop.
func setup(fs *flag.FlagSet) (context.Context, context.CancelFunc, *app.App, zerolog.Logger) {
	configPath := fs.String("config", "", "Path to the YAML config file")
	fs.Parse(os.Args[2:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	ctx = logger.WithContext(ctx, log)

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		cancel()
		log.Fatal().Err(err).Msg("Failed to build application")
	}
	a.Monitor.Check(ctx)
	return ctx, cancel, a, log
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	ctx, cancel, a, log := setup(fs)
	defer cancel()
	defer a.Close()

	st, err := a.Session.Manager().Status(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read status")
	}

	fmt.Println("\n=== Sync Status ===")
	fmt.Printf("User:         %s\n", st.UserID)
	fmt.Printf("Mode:         %s\n", a.Session.Mode())
	fmt.Printf("Online:       %v\n", st.Online)
	fmt.Printf("Pending:      %d\n", st.Pending)
	fmt.Printf("Dead letters: %d\n", st.DeadLetters)
	if st.Head != nil {
		fmt.Printf("Head:         #%d %s (attempts %d)\n", st.Head.ID, st.Head.Kind, st.Head.Attempts)
		if st.Head.LastError != "" {
			fmt.Printf("Last error:   %s\n", st.Head.LastError)
		}
	}
	fmt.Println()
}

func runDrain() {
	fs := flag.NewFlagSet("drain", flag.ExitOnError)
	ctx, cancel, a, log := setup(fs)
	defer cancel()
	defer a.Close()

	if !a.Monitor.Online() {
		log.Fatal().Msg("Remote store is unreachable, nothing drained")
	}
	res, err := a.Session.Manager().Drain(ctx)
	fmt.Printf("Applied: %d, dead-lettered: %d, remaining: %d\n", res.Applied, len(res.DeadLettered), res.Remaining)
	if err != nil {
		if remote.IsTransient(err) {
			log.Warn().Err(err).Msg("Drain interrupted by a network failure")
		} else {
			log.Error().Err(err).Msg("Queue is blocked; inspect with 'status' and use 'drop-head' to skip")
		}
		os.Exit(1)
	}
}

func runDropHead() {
	fs := flag.NewFlagSet("drop-head", flag.ExitOnError)
	reason := fs.String("reason", "dropped by operator", "Reason recorded with the dead letter")
	ctx, cancel, a, log := setup(fs)
	defer cancel()
	defer a.Close()

	dl, err := a.Session.Manager().DropHead(ctx, *reason)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to drop head of queue")
	}
	fmt.Printf("Dropped action #%d (%s) as dead letter %s\n", dl.Action.ID, dl.Action.Kind, dl.DeadID)
}

func runDeadLetters() {
	fs := flag.NewFlagSet("dead-letters", flag.ExitOnError)
	ctx, cancel, a, log := setup(fs)
	defer cancel()
	defer a.Close()

	list, err := a.Session.Manager().DeadLetters(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list dead letters")
	}

	fmt.Printf("\n=== Dead Letters (%d) ===\n", len(list))
	for i, dl := range list {
		fmt.Printf("\n%d. %s\n", i+1, dl.DeadID)
		fmt.Printf("   Action:  #%d %s\n", dl.Action.ID, dl.Action.Kind)
		fmt.Printf("   Dead at: %s\n", dl.DeadAt.Format(time.RFC3339))
		fmt.Printf("   Reason:  %s\n", dl.Reason)
		fmt.Printf("   Payload: %s\n", dl.Action.Payload)
	}
	fmt.Println()
}

func runRequeue() {
	fs := flag.NewFlagSet("requeue", flag.ExitOnError)
	deadID := fs.String("id", "", "Dead letter ID to requeue")
	ctx, cancel, a, log := setup(fs)
	defer cancel()
	defer a.Close()

	if *deadID == "" {
		log.Fatal().Msg("Error: -id is required")
	}
	act, err := a.Session.Manager().Requeue(ctx, *deadID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to requeue")
	}
	fmt.Printf("Requeued as action #%d (%s)\n", act.ID, act.Kind)
}

func runInsights() {
	fs := flag.NewFlagSet("insights", flag.ExitOnError)
	ctx, cancel, a, log := setup(fs)
	defer cancel()
	defer a.Close()

	if a.Monitor.Online() {
		if err := a.Session.Manager().Refresh(ctx); err != nil {
			log.Warn().Err(err).Msg("Could not refresh from remote store, using local data")
		}
	}

	d, err := a.Session.Dashboard(ctx, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to compute dashboard")
	}

	fmt.Println("\n=== This Month ===")
	fmt.Printf("Income:  %s\n", d.Stats.Income.StringFixed(2))
	fmt.Printf("Expense: %s\n", d.Stats.Expense.StringFixed(2))
	fmt.Printf("Balance: %s\n", d.Stats.Balance.StringFixed(2))

	fmt.Printf("\n=== Budgets (%d) ===\n", len(d.Budgets))
	for _, b := range d.Budgets {
		fmt.Printf("%-14s %8s / %-8s %4.0f%%  %s\n", b.Category, b.Spent.StringFixed(2), b.Limit.StringFixed(2), b.Pct*100, b.Status)
	}

	fmt.Printf("\n=== Insights (%d) ===\n", len(d.Insights))
	for _, in := range d.Insights {
		fmt.Printf("[%s] %s: %s", in.Severity, in.Title, in.Message)
		if in.Metric != "" {
			fmt.Printf(" (%s)", in.Metric)
		}
		fmt.Println()
	}
	fmt.Println()
}

func runMigrate() {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to the YAML config file")
	project := fs.String("project", "", "GCP project ID (defaults to reports.project)")
	dataset := fs.String("dataset", "", "BigQuery dataset ID (defaults to reports.dataset)")
	appliedBy := fs.String("applied-by", "budgetsync-cli", "Name recorded in schema_migrations")
	fs.Parse(os.Args[2:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level)
	if *project == "" {
		*project = cfg.Reports.Project
	}
	if *dataset == "" {
		*dataset = cfg.Reports.Dataset
	}
	if *project == "" {
		log.Fatal().Msg("Error: -project or reports.project is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	client, err := bigquery.NewClient(ctx, *project)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer client.Close()

	log.Info().Str("project", *project).Str("dataset", *dataset).Msg("Applying migrations")
	n, err := report.Migrate(ctx, client, report.MigrateOptions{Project: *project, Dataset: *dataset, AppliedBy: *appliedBy})
	if err != nil {
		log.Fatal().Err(err).Int("applied", n).Msg("Migration failed")
	}
	fmt.Printf("Applied %d migration(s).\n", n)
}
