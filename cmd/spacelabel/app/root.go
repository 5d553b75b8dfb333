package app

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewCommand returns the spacelabel root command. level is adjusted to the
// configured log level before any command runs.
func NewCommand(level *slog.LevelVar, logger *slog.Logger) *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "spacelabel FILE START END",
		Short: "Label features in spacecraft radio spectrograms",
		Long: `Reads a spacecraft radio spectrogram (HDF5, CDF, IDL SAVE or a preprocessed
cache), resamples it if requested and shows the window between START and END.
Subsequent windows of the same width follow with --windows.

Dates are ISO, e.g. 2004-12-01, or YYYYDDD year-days.`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return initSettings(v, level)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(v, args)
			if err != nil {
				return err
			}
			return Run(cmd.Context(), cfg, cmd.OutOrStdout(), logger)
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "settings file (default .spacelabel.yaml)")
	pf.String("config-dir", "config", "directory of instrument configurations")
	pf.StringP("spacecraft", "s", "", "instrument configuration to use; required when several describe the file")
	pf.Int("year", 0, "origin year of relative time encodings, overriding configuration and file name")
	pf.Bool("no-cache", false, "read the raw files even if a preprocessed cache exists")
	pf.String("log-level", "info", "log level: debug, info, warn or error")

	f := root.Flags()
	f.IntP("frequency-resolution", "f", 0, "number of log-spaced frequency bins; 0 disables the instrument default")
	f.Float64P("time-minimum", "t", 0, "time bin width in seconds; 0 disables the instrument default")
	f.StringSlice("measurement", nil, "measurements to show (default all)")
	f.Int("windows", 1, "number of consecutive windows to show")
	f.Bool("save", false, "write the feature catalogue after showing the data")

	for key, flag := range map[string]string{
		"config":               "config",
		"config_dir":           "config-dir",
		"spacecraft":           "spacecraft",
		"year":                 "year",
		"no_cache":             "no-cache",
		"log_level":            "log-level",
		"frequency_resolution": "frequency-resolution",
		"time_minimum":         "time-minimum",
		"measurement":          "measurement",
		"windows":              "windows",
		"save":                 "save",
	} {
		fl := pf.Lookup(flag)
		if fl == nil {
			fl = f.Lookup(flag)
		}
		_ = v.BindPFlag(key, fl)
	}

	root.AddCommand(newFeaturesCommand(v, logger))
	return root
}
