package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"rnadiff/internal"
	"rnadiff/internal/config"
	"rnadiff/internal/errors"
)

// cli carries the viper instance shared by every command
type cli struct {
	v          *viper.Viper
	configFile string
}

func newRootCmd() *cobra.Command {
	c := &cli{v: config.New()}

	rootCmd := &cobra.Command{
		Use:   "rnadiff",
		Short: "Differential expression on RNA-seq counts with a similarity search for the top down-regulated gene",
		Long: `rnadiff fits negative binomial models to an RNA-seq count matrix, tests
one contrast, adjusts p-values and searches the most significant
down-regulated gene against a remote sequence database.

Settings come from defaults, an optional --config YAML file, RNADIFF_*
environment variables (a .env file is loaded first) and flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&c.configFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().String("log-level", "INFO", "ERROR|WARN|INFO|DEBUG|TRACE")
	c.v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(
		newAnalyzeCmd(c),
		newDesignCmd(c),
		newSearchCmd(c),
		newMigrateCmd(c),
		newServeCmd(c),
	)
	return rootCmd
}

// binding maps a command flag to a config key
type binding struct {
	flag, key string
}

// load binds the running command's flags, so a flag only wins when set
// and commands sharing a key do not shadow each other, then reads and
// validates the configuration and builds the logger
func (c *cli) load(flags *pflag.FlagSet, bindings ...binding) (*config.Config, *internal.Logger, error) {
	for _, b := range bindings {
		if err := c.v.BindPFlag(b.key, flags.Lookup(b.flag)); err != nil {
			return nil, nil, errors.WithCode(errors.CodeConfigInvalid, err)
		}
	}
	cfg, err := config.Load(c.v, c.configFile)
	if err != nil {
		return nil, nil, err
	}
	return cfg, internal.NewLogger(internal.ParseLogLevel(cfg.Log.Level)), nil
}
