package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"reefer-telemetry-sim/internal/api"
	"reefer-telemetry-sim/internal/config"
	"reefer-telemetry-sim/internal/db"
	"reefer-telemetry-sim/internal/logging"
	"reefer-telemetry-sim/internal/models"
	"reefer-telemetry-sim/internal/parser"
	"reefer-telemetry-sim/internal/profile"
	"reefer-telemetry-sim/internal/simulation"
	"reefer-telemetry-sim/internal/sink"

	"github.com/spf13/cobra"
)

var (
	dbPath    string
	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
	database  *db.Database
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "reefer-sim",
		Short: "Reefer Telemetry Simulator - labeled cargo-hold sensor data for real trips",
		Long: `A CLI tool that turns real GPS/weather trip records into synthetic reefer
sensor readings (temperature, humidity, CO2, light) with injected failures and
expert-rule Good/Bad labels. Results go to CSV, SQLite, InfluxDB or Kafka and
can be browsed through a REST API.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg = config.Load()
			if !cmd.Flags().Changed("db") {
				dbPath = cfg.DBPath
			}

			var err error
			logger, logCloser, err = logging.New(os.Stderr, cfg.Log.Level, cfg.Log.File)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if logCloser != nil {
				return logCloser.Close()
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "reefer_sim.db", "Path to SQLite database (default from DB_PATH)")

	// Add commands
	rootCmd.AddCommand(simulateCmd())
	rootCmd.AddCommand(profilesCmd())
	rootCmd.AddCommand(serverCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(queryCmd())
	rootCmd.AddCommand(statsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initDB initializes database connection
func initDB() error {
	var err error
	database, err = db.New(dbPath)
	return err
}

// newSimulator builds the profile registry, overlaying profilesFile when set
func newSimulator(profilesFile string) (*simulation.Simulator, error) {
	reg := profile.NewRegistry()
	if profilesFile != "" {
		ignored, err := reg.LoadFile(profilesFile)
		if err != nil {
			return nil, err
		}
		for _, key := range ignored {
			logger.Warn("ignoring unknown injection key", "file", profilesFile, "key", key)
		}
	}
	if cfg.Sim.DefaultProfile != "" {
		if err := reg.SetDefault(cfg.Sim.DefaultProfile); err != nil {
			return nil, err
		}
	}
	return simulation.NewSimulator(reg, logger), nil
}

// openSinks opens every named sink. On error the already opened ones are closed.
func openSinks(ctx context.Context, names []string, output string) ([]sink.Sink, error) {
	var sinks []sink.Sink
	fail := func(err error) ([]sink.Sink, error) {
		for _, s := range sinks {
			s.Close()
		}
		return nil, err
	}

	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "csv":
			if output == "" {
				return fail(errors.New("--output is required for the csv sink"))
			}
			s, err := sink.NewCSVFile(output)
			if err != nil {
				return fail(err)
			}
			sinks = append(sinks, s)
		case "sqlite":
			if err := initDB(); err != nil {
				return fail(fmt.Errorf("database error: %w", err))
			}
			sinks = append(sinks, sink.NewSQLite(database))
		case "influx":
			s, err := sink.NewInflux(ctx, sink.InfluxConfig{
				URL:    cfg.InfluxDB.URL,
				Org:    cfg.InfluxDB.Org,
				Token:  cfg.InfluxDB.Token,
				Bucket: cfg.InfluxDB.Bucket,
			})
			if err != nil {
				return fail(err)
			}
			sinks = append(sinks, s)
		case "kafka":
			sinks = append(sinks, sink.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		default:
			return fail(fmt.Errorf("unknown sink %q (use csv, sqlite, influx, kafka)", name))
		}
	}
	return sinks, nil
}

// simulateCmd runs a batch simulation over a trip file
func simulateCmd() *cobra.Command {
	var input, format, output, seedMode, profilesFile string
	var sinkNames []string
	var seed uint64
	var workers int
	var validate bool

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Simulate labeled reefer readings for every trip in a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("seed") {
				seed = cfg.Sim.Seed
			}
			if !cmd.Flags().Changed("seed-mode") {
				seedMode = cfg.Sim.SeedMode
			}
			if !cmd.Flags().Changed("workers") {
				workers = cfg.Sim.Workers
			}
			if !cmd.Flags().Changed("profiles") {
				profilesFile = cfg.Sim.ProfilesFile
			}

			mode, err := simulation.ParseSeedMode(seedMode)
			if err != nil {
				return err
			}
			sim, err := newSimulator(profilesFile)
			if err != nil {
				return fmt.Errorf("profile error: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			sinks, err := openSinks(ctx, sinkNames, output)
			if err != nil {
				return err
			}
			defer func() {
				for _, s := range sinks {
					if err := s.Close(); err != nil {
						logger.Error("failed to close sink", "sink", s.Name(), "error", err)
					}
				}
				if database != nil {
					database.Close()
				}
			}()

			fmt.Printf("Processing %s...\n", input)
			records, err := parser.NewParser(format, logger).ParseFile(input)
			if err != nil {
				return fmt.Errorf("parse error: %w", err)
			}

			// Validate if requested
			if validate {
				var invalid int
				records, invalid = parser.FilterValid(records, logger)
				if invalid > 0 {
					fmt.Printf("  Dropped %d invalid records\n", invalid)
				}
			}

			start := time.Now()
			report, err := sim.RunBatch(ctx, records, simulation.BatchOptions{Seed: seed, Mode: mode, Workers: workers})
			if err != nil {
				return err
			}
			elapsed := time.Since(start)

			fmt.Printf("  Run %s (seed %d, %s)\n", report.RunID, report.Seed, report.Mode)
			fmt.Printf("  Trips: %d total, %d succeeded, %d skipped, %d failed\n",
				report.Total, report.Succeeded, report.Skipped, report.Failed)
			if report.Dropped > 0 {
				fmt.Printf("  Dropped %d rows without trip id or commodity\n", report.Dropped)
			}
			ids := make([]string, 0, len(report.Failures))
			for id := range report.Failures {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				fmt.Printf("     ⚠️  %s: %v\n", id, report.Failures[id])
			}
			fmt.Printf("  ✓ Simulated %d readings in %v\n", len(report.Rows), elapsed)

			if len(report.Rows) == 0 {
				return errors.New("no trips simulated, nothing written")
			}

			for _, s := range sinks {
				if err := s.Write(ctx, report); err != nil {
					return fmt.Errorf("%s sink: %w", s.Name(), err)
				}
				fmt.Printf("  ✓ Wrote %s\n", s.Name())
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Trip records file")
	cmd.Flags().StringVarP(&format, "format", "f", "csv", "Input format (csv, json)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output CSV file (csv sink)")
	cmd.Flags().StringSliceVar(&sinkNames, "sink", []string{"csv"}, "Sinks to write (csv, sqlite, influx, kafka)")
	cmd.Flags().Uint64Var(&seed, "seed", 42, "Base random seed (default from SIM_SEED)")
	cmd.Flags().StringVar(&seedMode, "seed-mode", "sequential", "Seed mode (sequential, per-trip)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 1, "Concurrent trips in per-trip mode")
	cmd.Flags().StringVar(&profilesFile, "profiles", "", "YAML file with extra commodity profiles")
	cmd.Flags().BoolVarP(&validate, "validate", "v", false, "Drop records with out-of-range readings before simulating")
	cmd.MarkFlagRequired("input")
	return cmd
}

// profilesCmd lists commodity profiles or prints one as YAML
func profilesCmd() *cobra.Command {
	var profilesFile string

	cmd := &cobra.Command{
		Use:   "profiles [name]",
		Short: "List commodity profiles or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("profiles") {
				profilesFile = cfg.Sim.ProfilesFile
			}
			sim, err := newSimulator(profilesFile)
			if err != nil {
				return fmt.Errorf("profile error: %w", err)
			}
			reg := sim.Registry()

			if len(args) == 1 {
				p, ok := reg.Lookup(args[0])
				if !ok {
					return fmt.Errorf("profile %q not found", args[0])
				}
				return profile.Encode(os.Stdout, p)
			}

			for _, name := range reg.Names() {
				if name == reg.DefaultProfile() {
					fmt.Printf("%s (default)\n", name)
					continue
				}
				fmt.Println(name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&profilesFile, "profiles", "", "YAML file with extra commodity profiles")
	return cmd
}

// serverCmd starts the REST API server
func serverCmd() *cobra.Command {
	var port int
	var profilesFile string

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the REST API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("port") {
				port = cfg.HTTPPort
			}
			if !cmd.Flags().Changed("profiles") {
				profilesFile = cfg.Sim.ProfilesFile
			}
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			sim, err := newSimulator(profilesFile)
			if err != nil {
				return fmt.Errorf("profile error: %w", err)
			}

			server := api.NewServer(database, sim)
			addr := fmt.Sprintf(":%d", port)

			fmt.Printf("🚀 Reefer Telemetry Simulator API Server\n")
			fmt.Printf("   Listening on http://localhost%s\n", addr)
			fmt.Printf("   Database: %s\n\n", dbPath)
			fmt.Println("Available endpoints:")
			fmt.Println("  GET  /health")
			fmt.Println("  GET  /api/v1/profiles")
			fmt.Println("  GET  /api/v1/profiles/{name}")
			fmt.Println("  GET  /api/v1/runs")
			fmt.Println("  GET  /api/v1/runs/{run_id}")
			fmt.Println("  GET  /api/v1/runs/{run_id}/trips")
			fmt.Println("  GET  /api/v1/readings")
			fmt.Println("  POST /api/v1/simulate")
			fmt.Println("  GET  /api/v1/stats")
			fmt.Println("  GET  /metrics")
			fmt.Println()

			srv := &http.Server{
				Addr:              addr,
				Handler:           server.Handler(os.Stdout),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()

			logger.Info("api server starting", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			logger.Info("api server stopped")
			return nil
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Server port (default from HTTP_PORT)")
	cmd.Flags().StringVar(&profilesFile, "profiles", "", "YAML file with extra commodity profiles")
	return cmd
}

// runsCmd lists stored batch runs
func runsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored simulation runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			runs, err := database.ListRuns(limit)
			if err != nil {
				return fmt.Errorf("error listing runs: %w", err)
			}

			if len(runs) == 0 {
				fmt.Println("No runs found. Use 'reefer-sim simulate --sink sqlite' to store one.")
				return nil
			}

			fmt.Printf("%-36s %-20s %-10s %-6s %-6s %-6s %-6s\n", "ID", "Started", "Mode", "Trips", "OK", "Skip", "Fail")
			fmt.Println(strings.Repeat("-", 96))
			for _, r := range runs {
				fmt.Printf("%-36s %-20s %-10s %-6d %-6d %-6d %-6d\n",
					r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.SeedMode,
					r.Total, r.Succeeded, r.Skipped, r.Failed)
			}

			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Maximum runs to show (0 for all)")
	return cmd
}

// queryCmd queries stored readings
func queryCmd() *cobra.Command {
	var runID, tripID, class, startTime, endTime, outputFormat string
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query stored labeled readings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			q := models.ReadingQuery{
				RunID:  runID,
				TripID: tripID,
				Class:  models.Class(class),
				Limit:  limit,
				Offset: offset,
			}
			if q.Class != "" && q.Class != models.ClassGood && q.Class != models.ClassBad {
				return fmt.Errorf("invalid class %q (use Good or Bad)", class)
			}

			if startTime != "" {
				t, err := parser.ParseTimestamp(startTime)
				if err != nil {
					return fmt.Errorf("invalid start time: %w", err)
				}
				q.StartTime = t
			}

			if endTime != "" {
				t, err := parser.ParseTimestamp(endTime)
				if err != nil {
					return fmt.Errorf("invalid end time: %w", err)
				}
				q.EndTime = t
			}

			start := time.Now()
			results, err := database.QueryReadings(q)
			if err != nil {
				return fmt.Errorf("query error: %w", err)
			}
			elapsed := time.Since(start)

			switch outputFormat {
			case "json":
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			case "csv":
				return sink.WriteCSV(os.Stdout, results)
			default:
				fmt.Printf("Found %d readings (query time: %v)\n\n", len(results), elapsed)
				for _, r := range results {
					fmt.Printf("[%s] Trip: %s #%d | T: %.2f°C | RH: %.1f%% | CO2: %.0f ppm | Light: %.1f lx | %s\n",
						r.Timestamp.Format("2006-01-02 15:04:05"), r.TripID, r.Step,
						r.Temp, r.Humid, r.CO2, r.Light, r.Class)
					if r.Class == models.ClassBad {
						fmt.Printf("     ⚠️  Scenario: %s\n", r.FailureScenario)
					}
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&runID, "run", "r", "", "Filter by run ID")
	cmd.Flags().StringVarP(&tripID, "trip", "t", "", "Filter by trip ID")
	cmd.Flags().StringVarP(&class, "class", "c", "", "Filter by class (Good, Bad)")
	cmd.Flags().StringVarP(&startTime, "start", "s", "", "Start time (RFC3339)")
	cmd.Flags().StringVarP(&endTime, "end", "e", "", "End time (RFC3339)")
	cmd.Flags().IntVarP(&limit, "limit", "l", 100, "Maximum readings to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "Readings to skip")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json, csv)")
	return cmd
}

// statsCmd shows database statistics
func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			stats, err := database.GetStats()
			if err != nil {
				return fmt.Errorf("error getting stats: %w", err)
			}

			fmt.Println("📊 Reefer Telemetry Simulator Statistics")
			fmt.Println("========================================")
			fmt.Printf("  Runs:               %v\n", stats["total_runs"])
			fmt.Printf("  Trips:              %v\n", stats["total_trips"])
			fmt.Printf("  Triggered Trips:    %v\n", stats["triggered_trips"])
			fmt.Printf("  Readings:           %v\n", stats["total_readings"])
			fmt.Printf("  Bad Readings:       %v\n", stats["bad_readings"])
			if byScenario, ok := stats["trips_by_scenario"].(map[string]int64); ok && len(byScenario) > 0 {
				names := make([]string, 0, len(byScenario))
				for name := range byScenario {
					names = append(names, name)
				}
				sort.Strings(names)
				fmt.Println("  Trips by scenario:")
				for _, name := range names {
					fmt.Printf("    %-20s %d\n", name, byScenario[name])
				}
			}
			fmt.Printf("  Database:           %s\n", dbPath)

			return nil
		},
	}
}
