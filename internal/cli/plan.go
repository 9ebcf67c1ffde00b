package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppetrenko/civicplan/internal/config"
	"github.com/ppetrenko/civicplan/internal/model"
	"github.com/ppetrenko/civicplan/internal/pipeline"
	"github.com/ppetrenko/civicplan/internal/score"
)

var (
	planConcurrency int
	planTimeout     time.Duration
	planExplain     bool
)

// planCmd represents the plan command
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Run a full planning cycle",
	Long: `Plan scores every open issue, allocates the quarterly budget in phases,
and schedules funded projects against crew capacity.

The cycle replaces any previous planning outputs for the same issue feed.
Conditional approvals must be confirmed with 'civicplan confirm' before
their crew reservations harden.

Example:
  civicplan seed --scenario sample
  civicplan plan`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, err := newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		st, closeStore, err := openStore(cfg, log)
		if err != nil {
			return err
		}
		defer closeStore()

		ctx, cancel := context.WithTimeout(context.Background(), planTimeout)
		defer cancel()

		res, err := pipeline.NewPlanner(cfg, st, log).WithConcurrency(planConcurrency).Run(ctx)
		if err != nil {
			return fmt.Errorf("planning cycle: %w", err)
		}

		printPortfolio(res)
		if planExplain {
			printBreakdowns(cfg.Weights, res.Candidates)
		}
		printSchedule(res.Schedule)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.Flags().IntVar(&planConcurrency, "concurrency", 4, "scoring worker count")
	planCmd.Flags().DurationVar(&planTimeout, "timeout", 5*time.Minute, "overall cycle timeout")
	planCmd.Flags().BoolVar(&planExplain, "explain", false, "print the score breakdown for every candidate")
}

func printPortfolio(res *pipeline.Result) {
	s := res.Summary
	fmt.Printf("Portfolio %s %d\n", res.Quarter, res.Year)
	fmt.Printf("  Budget     $%s allocated of $%s ($%s remaining)\n",
		money(s.AllocatedBudget), money(s.TotalBudget), money(s.RemainingBudget))
	fmt.Printf("  Phases     mandate $%s | urgent $%s | value $%s\n",
		money(s.MandateSpend), money(s.UrgentSpend), money(s.ValueSpend))
	fmt.Printf("  Decisions  %d approved, %d conditional, %d deferred, %d rejected\n\n",
		s.ApprovedCount, s.ConditionalCount, s.DeferredCount, s.RejectedCount)

	titles := make(map[int]string, len(res.Candidates))
	for _, c := range res.Candidates {
		titles[c.ID] = c.Title
	}

	fmt.Printf("  %-4s %-40s %-24s %12s  %s\n", "RANK", "PROJECT", "DECISION", "BUDGET", "RATIONALE")
	for _, d := range s.Decisions {
		rank := "-"
		if d.PriorityRank > 0 {
			rank = fmt.Sprintf("%d", d.PriorityRank)
		}
		budget := "-"
		if d.AllocatedBudget > 0 {
			budget = "$" + money(d.AllocatedBudget)
		}
		status := string(d.Status)
		if d.Pending() {
			status += " (pending)"
		}
		fmt.Printf("  %-4s %-40s %-24s %12s  %s\n",
			rank, truncate(titles[d.ProjectID], 40), status, budget, d.Rationale)
	}

	for _, sk := range res.Skipped {
		fmt.Printf("  skipped issue %d: %s\n", sk.IssueID, sk.Reason)
	}
	fmt.Println()
}

func printBreakdowns(w config.ScoringWeights, candidates []model.ProjectCandidate) {
	for _, c := range candidates {
		fmt.Printf("Project %d: %s\n", c.ID, c.Title)
		fmt.Println(score.Explain(w, c.Scores))
		fmt.Println()
	}
}

func printSchedule(out *model.ScheduleOutput) {
	if out == nil || (len(out.Tasks) == 0 && len(out.Infeasible) == 0) {
		return
	}
	fmt.Printf("Schedule (%s, %d-week horizon)\n", out.Scheduler, out.HorizonWeeks)
	for _, task := range out.Tasks {
		fmt.Printf("  project %-4d %-18s crew %d  %s  %s",
			task.ProjectID, task.ResourceType, task.CrewAssigned,
			weekBar(task.StartWeek, task.EndWeek, out.HorizonWeeks),
			task.DeadlineStatus)
		if task.DeadlineWeek > 0 {
			fmt.Printf(" (slack %dd)", task.SlackDays)
		}
		if task.Reservation == model.ReservationSoft {
			fmt.Printf(" [soft]")
		}
		fmt.Println()
	}
	for _, id := range out.Infeasible {
		fmt.Printf("  project %-4d could not be scheduled within the horizon\n", id)
	}
	fmt.Println()
}

// weekBar renders a project's window on the horizon, one cell per week
func weekBar(start, end, horizon int) string {
	var b strings.Builder
	b.WriteByte('[')
	for week := 1; week <= horizon; week++ {
		if week >= start && week <= end {
			b.WriteByte('#')
		} else {
			b.WriteByte('.')
		}
	}
	b.WriteByte(']')
	return b.String()
}

func money(v float64) string {
	s := fmt.Sprintf("%.0f", v)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
