// Command ingest is the outage schedule CLI. It runs single operations
// against the same stores the API uses.
//
// Usage:
//
//	prosvitlo-ingest migrate
//	prosvitlo-ingest poll
//	prosvitlo-ingest image table.png --date 2026-10-15
//	prosvitlo-ingest parse table.png
//	prosvitlo-ingest schedule-text schedule.txt --date 2026-10-15
//	prosvitlo-ingest announcement post.txt --date 2026-10-15
//	prosvitlo-ingest status 3.1 --date 2026-10-15 --hour 14:30
//	prosvitlo-ingest plan --date 2026-10-15
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/prosvitlo/prosvitlo-data/internal/app"
	"github.com/prosvitlo/prosvitlo-data/internal/changes"
	"github.com/prosvitlo/prosvitlo-data/internal/colortable"
	"github.com/prosvitlo/prosvitlo-data/internal/config"
	"github.com/prosvitlo/prosvitlo-data/internal/db"
	"github.com/prosvitlo/prosvitlo-data/internal/engine"
	"github.com/prosvitlo/prosvitlo-data/internal/interval"
	"github.com/prosvitlo/prosvitlo-data/internal/schedule"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:          "prosvitlo-ingest",
		Short:        "Outage schedule ingestion CLI",
		SilenceUsage: true,
	}

	root.AddCommand(migrateCmd())
	root.AddCommand(pollCmd())
	root.AddCommand(imageCmd())
	root.AddCommand(parseCmd())
	root.AddCommand(scheduleTextCmd())
	root.AddCommand(announcementCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(planCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// migrate / poll
// --------------------------------------------------------------------------

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if !cfg.HasDatabase() {
				return errors.New("DATABASE_URL is required")
			}
			pool, err := db.New(ctx, cfg)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer pool.Close()
			if err := db.Migrate(ctx, pool.Pool); err != nil {
				return err
			}
			logger.Info("Migrations applied")
			return nil
		},
	}
}

func pollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Poll every configured source page once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(func(ctx context.Context, a *app.App) error {
				p, err := a.Poller()
				if err != nil {
					return err
				}
				start := time.Now()
				err = p.RunOnce(ctx)
				logger.Info("Poll finished", "duration", time.Since(start).Round(time.Millisecond))
				return err
			})
		},
	}
}

// --------------------------------------------------------------------------
// Schedule ingestion
// --------------------------------------------------------------------------

func imageCmd() *cobra.Command {
	var date, sourceID string
	cmd := &cobra.Command{
		Use:   "image FILE",
		Short: "Ingest a schedule table image for a date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(args[0])
			if err != nil {
				return err
			}
			return runApp(func(ctx context.Context, a *app.App) error {
				d, err := dateFlag(date, a)
				if err != nil {
					return err
				}
				id := sourceOr(sourceID, "image", a, d)
				out, err := a.Engine.IngestImage(ctx, id, data, d)
				if err != nil {
					return err
				}
				return printOutcome(out)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Schedule date (YYYY-MM-DD); default today")
	cmd.Flags().StringVar(&sourceID, "source", "", "Source id for change detection")
	return cmd
}

func parseCmd() *cobra.Command {
	var classifierName string
	cmd := &cobra.Command{
		Use:   "parse FILE",
		Short: "Parse a table image and print its intervals without storing them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(args[0])
			if err != nil {
				return err
			}
			classifier, err := colortable.NewClassifier(classifierName)
			if err != nil {
				return err
			}
			parser := colortable.NewParser(colortable.DefaultGeometry(), classifier, logger)
			qi, err := parser.ParseBytes(data)
			if err != nil {
				return err
			}
			return printJSON(qi)
		},
	}
	cmd.Flags().StringVar(&classifierName, "classifier", "fixed", "Color classifier (fixed, adaptive)")
	return cmd
}

func scheduleTextCmd() *cobra.Command {
	var date, sourceID string
	cmd := &cobra.Command{
		Use:   "schedule-text FILE",
		Short: "Ingest a per-queue text schedule (use - for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(args[0])
			if err != nil {
				return err
			}
			return runApp(func(ctx context.Context, a *app.App) error {
				d, err := dateFlag(date, a)
				if err != nil {
					return err
				}
				out, err := a.Engine.IngestScheduleText(ctx, sourceOr(sourceID, "text", a, d), string(text), d)
				if err != nil {
					return err
				}
				return printOutcome(out)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Schedule date (YYYY-MM-DD); default today")
	cmd.Flags().StringVar(&sourceID, "source", "", "Source id for change detection")
	return cmd
}

func announcementCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "announcement FILE",
		Short: "Extract ad-hoc outages from announcement text (use - for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(args[0])
			if err != nil {
				return err
			}
			return runApp(func(ctx context.Context, a *app.App) error {
				d, err := dateFlag(date, a)
				if err != nil {
					return err
				}
				outages, err := a.Engine.IngestAnnouncementText(ctx, d, string(text))
				if err != nil {
					return err
				}
				logger.Info("Announcement processed", "outages", len(outages))
				return printJSON(outages)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Announcement date (YYYY-MM-DD); default today")
	return cmd
}

// --------------------------------------------------------------------------
// Queries
// --------------------------------------------------------------------------

func statusCmd() *cobra.Command {
	var date, hour string
	cmd := &cobra.Command{
		Use:   "status QUEUE",
		Short: "Print the status of a queue at an hour",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(func(ctx context.Context, a *app.App) error {
				d, err := dateFlag(date, a)
				if err != nil {
					return err
				}
				h, err := hourFlag(hour, a.Config.Location)
				if err != nil {
					return err
				}
				status, err := a.Engine.QueryStatus(ctx, args[0], d, h)
				if err != nil {
					return err
				}
				fmt.Printf("%s %s %s: %s\n", args[0], d.Format(interval.DateLayout), interval.FormatHour(h), status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Date (YYYY-MM-DD); default today")
	cmd.Flags().StringVar(&hour, "hour", "", "Hour as decimal or HH:MM; default now")
	return cmd
}

func planCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the notification events planned for a day without arming them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(func(ctx context.Context, a *app.App) error {
				d, err := dateFlag(date, a)
				if err != nil {
					return err
				}
				day, err := a.Store.Active(ctx, d, a.Config.Region)
				if err != nil && !errors.Is(err, schedule.ErrNotFound) {
					return err
				}
				planner := a.Scheduler.Planner()
				events := planner.PlanDay(day)
				outages, err := a.Store.Announcements(ctx, d)
				if err != nil {
					return err
				}
				events = append(events, planner.PlanAnnouncements(a.Config.Region, day.Intervals, outages)...)
				for _, ev := range events {
					fmt.Printf("%s  %-40s %s\n", ev.FireAt.In(a.Config.Location).Format("2006-01-02 15:04"), ev.Key, ev.Title)
				}
				logger.Info("Plan complete", "events", len(events))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Date (YYYY-MM-DD); default today")
	return cmd
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// runApp handles config loading, wiring and context cancellation.
func runApp(fn func(ctx context.Context, a *app.App) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	defer a.Scheduler.Stop()

	return fn(ctx, a)
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func dateFlag(s string, a *app.App) (time.Time, error) {
	if s == "" {
		return a.Engine.Today(), nil
	}
	return interval.ParseDate(s)
}

func hourFlag(s string, loc *time.Location) (float64, error) {
	if s == "" {
		now := time.Now().In(loc)
		return float64(now.Hour()) + float64(now.Minute())/60, nil
	}
	if hh, mm, ok := strings.Cut(s, ":"); ok {
		h, err := strconv.Atoi(hh)
		if err != nil {
			return 0, fmt.Errorf("bad hour %q", s)
		}
		m, err := strconv.Atoi(mm)
		if err != nil {
			return 0, fmt.Errorf("bad hour %q", s)
		}
		return float64(h) + float64(m)/60, nil
	}
	return strconv.ParseFloat(s, 64)
}

func sourceOr(given, kind string, a *app.App, date time.Time) string {
	if given != "" {
		return given
	}
	return changes.Key("cli", kind, a.Config.Region, date.Format(interval.DateLayout))
}

func printOutcome(out engine.Outcome) error {
	switch out.Status {
	case engine.OutcomeUpdated:
		logger.Info("Schedule updated", "date", out.Day.DateKey(), "hash", out.Day.ContentHash)
		return printJSON(out.Day.Intervals)
	case engine.OutcomeFailed:
		return fmt.Errorf("schedule unusable: %w", out.Err)
	default:
		logger.Info("Schedule unchanged")
		return nil
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
