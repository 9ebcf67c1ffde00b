package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppetrenko/civicplan/internal/model"
)

// scheduleCmd represents the schedule command
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Show the persisted schedule and crew utilization",
	Long: `Schedule prints the active tasks from the last planning cycle and the
weekly utilization of every crew type. Soft reservations belong to
conditional approvals still awaiting confirmation.`,
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

		tasks, err := st.Tasks()
		if err != nil {
			return fmt.Errorf("load tasks: %w", err)
		}
		slots, err := st.ResourceSlots(time.Now().Year())
		if err != nil {
			return fmt.Errorf("load resource calendar: %w", err)
		}

		printTasks(tasks, cfg.City.HorizonWeeks)
		printUtilization(slots, cfg.City.HorizonWeeks)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

func printTasks(tasks []model.ScheduleTask, horizon int) {
	active := tasks[:0:0]
	for _, task := range tasks {
		if task.Status == model.TaskScheduled {
			active = append(active, task)
		}
	}
	if len(active) == 0 {
		fmt.Println("No scheduled tasks. Run 'civicplan plan' first.")
		return
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].StartWeek != active[j].StartWeek {
			return active[i].StartWeek < active[j].StartWeek
		}
		return active[i].ProjectID < active[j].ProjectID
	})

	counts := map[model.DeadlineStatus]int{}
	for _, task := range active {
		counts[task.DeadlineStatus]++
	}
	fmt.Printf("Scheduled tasks (%d-week horizon): %d on track, %d at risk, %d missed\n",
		horizon, counts[model.DeadlineOnTrack], counts[model.DeadlineAtRisk], counts[model.DeadlineMissed])
	for _, task := range active {
		fmt.Printf("  project %-4d %-18s crew %d  %s  %-8s",
			task.ProjectID, task.ResourceType, task.CrewAssigned,
			weekBar(task.StartWeek, task.EndWeek, horizon), task.DeadlineStatus)
		if task.Reservation == model.ReservationSoft {
			fmt.Printf(" [soft]")
		}
		fmt.Println()
	}
	fmt.Println()
}

func printUtilization(slots []model.ResourceSlot, horizon int) {
	if len(slots) == 0 {
		return
	}
	byType := map[string][]model.ResourceSlot{}
	var types []string
	for _, slot := range slots {
		if _, seen := byType[slot.ResourceType]; !seen {
			types = append(types, slot.ResourceType)
		}
		byType[slot.ResourceType] = append(byType[slot.ResourceType], slot)
	}
	sort.Strings(types)

	fmt.Println("Crew utilization (allocated/capacity per week)")
	for _, resourceType := range types {
		weekly := make(map[int]model.ResourceSlot, horizon)
		for _, slot := range byType[resourceType] {
			weekly[slot.WeekNumber] = slot
		}
		fmt.Printf("  %-18s", resourceType)
		for week := 1; week <= horizon; week++ {
			slot := weekly[week]
			fmt.Printf(" %d/%d", slot.SoftAllocated+slot.HardAllocated, slot.Capacity)
		}
		fmt.Println()
	}
	fmt.Println()
}
