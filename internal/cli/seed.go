package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppetrenko/civicplan/internal/store"
)

var seedScenario string

// seedCmd represents the seed command
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load a demo scenario into the database",
	Long: `Seed resets the database and loads districts, a resource calendar, and a
demo issue set.

Scenarios:
  sample    ten hand-picked issues spanning every safety and mandate tier
  large     thirty generated issues stressing the budget and the solver
  balanced  twenty-five small issues that mostly fit the horizon

Example:
  civicplan seed --scenario sample`,
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

		year := time.Now().Year()
		if err := st.Seed(seedScenario, cfg.Crews.Capacities, cfg.City.HorizonWeeks, year); err != nil {
			return fmt.Errorf("seed scenario %q: %w", seedScenario, err)
		}

		fmt.Printf("Seeded scenario %q into %s\n", seedScenario, cfg.Store.Path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().StringVar(&seedScenario, "scenario", store.ScenarioSample, "scenario to load (sample, large, balanced)")
}
