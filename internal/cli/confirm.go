package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppetrenko/civicplan/internal/audit"
	"github.com/ppetrenko/civicplan/internal/config"
	"github.com/ppetrenko/civicplan/internal/confirm"
	"github.com/ppetrenko/civicplan/internal/ledger"
	"github.com/ppetrenko/civicplan/internal/model"
	"github.com/ppetrenko/civicplan/internal/pipeline"
	"github.com/ppetrenko/civicplan/internal/score"
	"github.com/ppetrenko/civicplan/internal/store"
)

var (
	confirmProject     int
	confirmApprove     bool
	confirmReject      bool
	confirmActor       string
	confirmFeasibility float64
	confirmReason      string
)

// confirmCmd represents the confirm command
var confirmCmd = &cobra.Command{
	Use:   "confirm",
	Short: "Confirm or reject a conditionally approved project",
	Long: `Confirm resolves a project that the allocator approved with conditions.

Approving hardens the project's crew reservations. Rejecting cancels its
tasks and releases the crews for other work. An optional feasibility
override re-scores the project first and is recorded with full provenance.

Run without --project to list the decisions still waiting on confirmation.

Examples:
  civicplan confirm
  civicplan confirm --project 2 --approve --actor director_office
  civicplan confirm --project 2 --reject --actor director_office --reason "defer to next quarter"
  civicplan confirm --project 2 --approve --actor director_office --feasibility 0.5`,
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

		if !cmd.Flags().Changed("project") {
			return printPending(st)
		}
		if confirmApprove == confirmReject {
			return fmt.Errorf("exactly one of --approve or --reject is required")
		}
		if confirmActor == "" {
			return fmt.Errorf("--actor is required")
		}

		led, err := restoreLedger(st, cfg, time.Now().Year())
		if err != nil {
			return err
		}
		scorer, err := buildScorer(st, cfg, time.Now())
		if err != nil {
			return err
		}
		rec := audit.NewRecorder(st, log)
		svc := confirm.NewService(st, scorer, led, rec, log)

		req := confirm.Request{
			ProjectID: confirmProject,
			Approved:  confirmApprove,
			ActorID:   confirmActor,
			Reason:    confirmReason,
		}
		if cmd.Flags().Changed("feasibility") {
			req.FeasibilityOverride = &confirmFeasibility
		}

		decision, err := svc.Confirm(req)
		if err != nil {
			return fmt.Errorf("confirm project %d: %w", confirmProject, err)
		}
		if err := st.SaveResourceSlots(led.Snapshot()); err != nil {
			return fmt.Errorf("save resource calendar: %w", err)
		}

		fmt.Printf("Project %d: %s", decision.ProjectID, decision.Status)
		if decision.ConfirmedAt != nil {
			fmt.Printf(" (confirmed by %s at %s)", decision.ConfirmedBy, decision.ConfirmedAt.Format(time.RFC3339))
		}
		fmt.Println()
		return nil
	},
}

// sweepCmd represents the sweep command
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire overdue conditional approvals",
	Long: `Sweep finds conditional approvals whose confirmation deadline has passed,
marks them expired, cancels their tasks, and releases their soft crew
reservations. Intended to run on a timer (cron or similar).`,
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

		led, err := restoreLedger(st, cfg, time.Now().Year())
		if err != nil {
			return err
		}
		rec := audit.NewRecorder(st, log)

		expired, err := confirm.NewSweeper(st, led, rec, log).Sweep()
		if err != nil {
			return fmt.Errorf("sweep: %w", err)
		}
		if expired > 0 {
			if err := st.SaveResourceSlots(led.Snapshot()); err != nil {
				return fmt.Errorf("save resource calendar: %w", err)
			}
		}

		fmt.Printf("Expired %d overdue approval(s)\n", expired)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(confirmCmd)
	rootCmd.AddCommand(sweepCmd)

	confirmCmd.Flags().IntVar(&confirmProject, "project", 0, "project ID to confirm")
	confirmCmd.Flags().BoolVar(&confirmApprove, "approve", false, "approve the project")
	confirmCmd.Flags().BoolVar(&confirmReject, "reject", false, "reject the project")
	confirmCmd.Flags().StringVar(&confirmActor, "actor", "", "who is confirming")
	confirmCmd.Flags().Float64Var(&confirmFeasibility, "feasibility", 0, "human feasibility override in [0,1]")
	confirmCmd.Flags().StringVar(&confirmReason, "reason", "", "reason for the decision or override")
}

// printPending lists the conditional approvals still waiting on a reviewer.
func printPending(st *store.Store) error {
	decisions, err := st.Decisions()
	if err != nil {
		return fmt.Errorf("load decisions: %w", err)
	}

	var pending []model.PortfolioDecision
	for _, d := range decisions {
		if d.Pending() {
			pending = append(pending, d)
		}
	}
	if len(pending) == 0 {
		fmt.Println("No projects are waiting for confirmation.")
		return nil
	}

	fmt.Printf("Pending confirmation (%d):\n", len(pending))
	for _, d := range pending {
		title := ""
		if p, err := st.ProjectByID(d.ProjectID); err == nil {
			title = truncate(p.Title, 40)
		}
		deadline := "no deadline"
		if d.ConfirmationDeadline != nil {
			deadline = "due " + d.ConfirmationDeadline.Format("2006-01-02")
		}
		fmt.Printf("  #%-3d %-40s $%s  %s\n", d.ProjectID, title, money(d.AllocatedBudget), deadline)
	}
	fmt.Println("\nResolve with: civicplan confirm --project <id> --approve|--reject --actor <name>")
	return nil
}

// restoreLedger rebuilds the in-memory capacity ledger from persisted slots
func restoreLedger(st *store.Store, cfg *config.Config, year int) (*ledger.Ledger, error) {
	slots, err := st.ResourceSlots(year)
	if err != nil {
		return nil, fmt.Errorf("load resource calendar: %w", err)
	}
	if len(slots) == 0 {
		return ledger.New(cfg.Crews.Capacities, cfg.City.HorizonWeeks, year), nil
	}
	return ledger.Restore(slots, year), nil
}

// buildScorer mirrors the planner's scorer so override re-scoring stays
// comparable with the rest of the cycle.
func buildScorer(st *store.Store, cfg *config.Config, now time.Time) (*score.CompositeScorer, error) {
	issues, err := st.OpenIssues()
	if err != nil {
		return nil, fmt.Errorf("load issues: %w", err)
	}
	districts, err := st.Districts()
	if err != nil {
		return nil, fmt.Errorf("load districts: %w", err)
	}
	allocations, err := st.DistrictAllocations(pipeline.Quarter(now), now.Year())
	if err != nil {
		return nil, fmt.Errorf("load district allocations: %w", err)
	}
	return pipeline.BuildScorer(cfg, issues, districts, allocations), nil
}
