package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ppetrenko/civicplan/internal/config"
	"github.com/ppetrenko/civicplan/internal/store"
)

var (
	cfgFile string
	verbose bool
	dbPath  string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "civicplan",
	Short: "CivicPlan - municipal capital project prioritization and scheduling",
	Long: `CivicPlan turns a city's open issue feed into a prioritized, scheduled
capital project portfolio.

Each planning cycle scores issues with a transparent composite formula,
allocates the quarterly budget in phases (legal mandates, urgent-critical
safety work, then value-ranked spending), and schedules funded projects
against weekly crew capacity. High-stakes approvals are conditional until
a human confirms them.

Every decision carries a rationale and lands in the audit trail.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("civicplan v0.1.0")
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.civicplan/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default: civicplan.db)")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("store.path", rootCmd.PersistentFlags().Lookup("db"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		viper.AddConfigPath(home + "/.civicplan")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("CIVICPLAN")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig merges file, env, and flag values over the defaults
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dbPath != "" {
		cfg.Store.Path = dbPath
	}
	return cfg, nil
}

// newLogger builds the process logger; verbose switches to development output
func newLogger() (*zap.SugaredLogger, error) {
	var logger *zap.Logger
	var err error
	if verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logCfg := zap.NewProductionConfig()
		logCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		logger, err = logCfg.Build()
	}
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger.Sugar(), nil
}

// openStore opens the database for a command and returns a closer
func openStore(cfg *config.Config, log *zap.SugaredLogger) (*store.Store, func(), error) {
	st, err := store.Open(cfg.Store, log)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return st, func() { _ = st.Close() }, nil
}
