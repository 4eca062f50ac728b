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

	"github.com/xhs-agent/internal/app"
	"github.com/xhs-agent/internal/config"
	"github.com/xhs-agent/internal/models"
	"github.com/xhs-agent/internal/scoring"
	"github.com/xhs-agent/internal/source"
	"github.com/xhs-agent/internal/storage"
	"github.com/xhs-agent/pkg/logger"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "xhs-agent",
		Short: "Xiaohongshu growth agent",
		Long: `Collects trending notes, ranks them by commercial value and user demand,
drafts replies with an LLM and sends them behind a rate and safety gate.`,
		PersistentPreRunE: initializeApp,
		SilenceUsage:      true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/config.yaml)")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(collectCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(replyOneCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(repliesCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func initializeApp(cmd *cobra.Command, args []string) error {
	var err error

	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log = logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	return nil
}

// newApp wires the agent. Commands that talk to the model validate the full config first.
func newApp(ctx context.Context, withLLM bool) (*app.App, error) {
	if withLLM {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}
	return app.New(ctx, cfg, log, app.Options{SkipLLM: !withLLM})
}

// ============ PIPELINE COMMANDS ============

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the full workflow: collect, analyze, rank and reply",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.Runner.Run(cmd.Context())
			if summary != nil {
				fmt.Printf("\n=== Run Summary ===\n")
				fmt.Printf("Run:             %s\n", summary.RunID)
				fmt.Printf("Collected:       %d\n", summary.Collected)
				fmt.Printf("Analyzed:        %d\n", summary.Analyzed)
				fmt.Printf("Generated:       %d\n", summary.Generated)
				fmt.Printf("Sent:            %d\n", summary.Sent)
				fmt.Printf("Staged:          %d\n", summary.Staged)
				fmt.Printf("Skipped by gate: %d\n", summary.SkippedByGate)
				fmt.Printf("Failed:          %d\n", summary.Failed)
				fmt.Printf("Duration:        %s\n", summary.Duration.Round(time.Second))
				if summary.ReportPath != "" {
					fmt.Printf("Report:          %s\n", summary.ReportPath)
				}
			}
			return err
		},
	}
}

func collectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Collect hot topics without analyzing them",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			topics, err := a.Sources.FetchAll(cmd.Context(), cfg.Sources.MaxTopics)
			if errors.Is(err, source.ErrNoTopics) {
				fmt.Println("No topics found")
				return nil
			}
			if err != nil {
				return err
			}
			if err := a.Sink.SaveTopics(cmd.Context(), topics); err != nil {
				log.Warn().Err(err).Msg("Failed to save topics")
			}

			fmt.Printf("\n=== Topics (%d) ===\n\n", len(topics))
			for i, t := range topics {
				fmt.Printf("[%d] %s\n", i+1, t.Title)
				fmt.Printf("    Likes: %d | Comments: %d | Collects: %d | Engagement score: %.2f\n",
					t.Engagement.Likes, t.Engagement.Comments, t.Engagement.Collects, scoring.EngagementScore(t.Engagement))
				fmt.Printf("    Source: %s | %s\n\n", t.SourceName, t.URL)
			}
			return nil
		},
	}
}

func analyzeCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Collect and analyze topics, print the priority ranking",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Discovery.Run(cmd.Context())
			if err != nil {
				return err
			}

			ranked := scoring.TopN(result.Ranked, limit)
			fmt.Printf("\n=== Ranking (%d of %d analyzed, %d failed) ===\n\n", len(ranked), result.Analyzed, result.Failed)
			for i, r := range ranked {
				fmt.Printf("[%d] %.2f | %s\n", i+1, r.Priority, r.Topic.Title)
				fmt.Printf("    Commercial: %.1f | Engagement: %.2f | Urgency: %.1f | Feasibility: %.1f\n",
					r.CommercialValue, scoring.EngagementScore(r.Topic.Engagement), r.DemandUrgency, r.DemandFeasibility)
				if p := r.PrimaryPainPoint(); p != "" {
					fmt.Printf("    Pain point: %s\n", p)
				}
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum topics to show")
	return cmd
}

func replyOneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reply-one <url>",
		Short: "Analyze a single note and reply to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.Runner.ReplyOne(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("\n%s\n", summary)
			return nil
		},
	}
}

// ============ STATUS COMMANDS ============

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the rate gate state for today",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			st := a.Gate.Status(time.Now())
			fmt.Printf("\n=== Status ===\n")
			fmt.Printf("Replies today: %d/%d (target %d)\n", st.RepliesToday, st.DailyLimit, st.DailyTarget)
			fmt.Printf("Recent errors: %d\n", st.RecentErrors)
			if st.LastAction != nil {
				fmt.Printf("Last action:   %s\n", st.LastAction.Format(time.DateTime))
			}
			if st.Decision.Allowed {
				fmt.Printf("Next reply:    allowed\n")
			} else {
				fmt.Printf("Next reply:    denied (%s)\n", st.Decision.Reason)
			}
			return nil
		},
	}
}

func reportCmd() *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print today's report",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Report(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			fmt.Println(report.Render())

			if save {
				path, err := report.WriteTo(cfg.WorkspaceDir(cfg.Workspace.ReportsDir))
				if err != nil {
					return err
				}
				fmt.Printf("Report saved to %s\n", path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "Also write the report to the workspace")
	return cmd
}

// ============ REPLIES COMMANDS ============

func repliesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replies",
		Short: "List and manage reply records",
	}

	cmd.AddCommand(repliesListCmd())
	cmd.AddCommand(repliesApproveCmd())
	cmd.AddCommand(repliesExpireCmd())
	return cmd
}

func repliesListCmd() *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reply records",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			filter := storage.DefaultReplyFilter()
			filter.Limit = limit
			if status != "" {
				s := models.ReplyStatus(status)
				filter.Status = &s
			}

			records, err := a.History.ListReplyRecords(cmd.Context(), filter)
			if err != nil {
				return err
			}

			fmt.Printf("\n=== Replies (%d) ===\n\n", len(records))
			for _, r := range records {
				fmt.Printf("[%s] %s | v%d %.1f | %s\n", r.ID, r.Status, r.Version, r.Score, r.TopicTitle)
				fmt.Printf("    %s\n", r.Content)
				if r.ErrorMessage != "" {
					fmt.Printf("    Error: %s\n", r.ErrorMessage)
				}
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (staged, sent, failed, expired)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum replies to show")
	return cmd
}

func repliesApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <id>",
		Short: "Mark a staged reply as posted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			r, err := a.Replier.Approve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Reply %s marked as sent for %q\n", r.ID, r.TopicTitle)
			return nil
		},
	}
}

func repliesExpireCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Expire staged replies nobody approved",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Replier.ExpireStaged(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Printf("Expired %d staged replies\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 48*time.Hour, "Expire replies staged longer than this")
	return cmd
}
