package app

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roman-kulish/spacelabel/internal/catalogue"
)

func newFeaturesCommand(v *viper.Viper, logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "features",
		Short: "Inspect and edit the feature catalogue of a dataset",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list FILE",
		Short: "List the features of a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(v)
			if err != nil {
				return err
			}
			ds, err := openDataset(cmd.Context(), s, args[0], logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(ds.Features()) == 0 {
				fmt.Fprintf(out, "no features in %s\n", ds.CataloguePath())
				return nil
			}
			for _, f := range ds.Features() {
				fmt.Fprintf(out, "%d\t%s\n", f.ID(), f.Summary())
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "summary FILE",
		Short: "Print the text summary of the feature catalogue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(v)
			if err != nil {
				return err
			}
			ds, err := openDataset(cmd.Context(), s, args[0], logger)
			if err != nil {
				return err
			}
			return catalogue.WriteSummary(cmd.OutOrStdout(), ds.Features())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add FILE NAME TIME FREQUENCY TIME FREQUENCY TIME FREQUENCY...",
		Short: "Add a polygon feature to the catalogue of a dataset",
		Long: `Adds a named polygon given as TIME FREQUENCY vertex pairs, at least three,
and saves the catalogue. Times are ISO dates or YYYYDDD year-days.`,
		Args: cobra.MinimumNArgs(2 + 2*catalogue.MinVertexes),
		RunE: func(cmd *cobra.Command, args []string) error {
			vertexes, err := parseVertexes(args[2:])
			if err != nil {
				return err
			}

			s, err := loadSettings(v)
			if err != nil {
				return err
			}
			ds, err := openDataset(cmd.Context(), s, args[0], logger)
			if err != nil {
				return err
			}

			f, err := ds.AddFeature(args[1], vertexes)
			if err != nil {
				return err
			}
			if err = ds.SaveCatalogue(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added feature %d to %s\n", f.ID(), ds.CataloguePath())
			return nil
		},
	})

	return cmd
}

func parseVertexes(args []string) ([]catalogue.Vertex, error) {
	if len(args)%2 != 0 {
		return nil, fmt.Errorf("vertexes come in TIME FREQUENCY pairs, got %d values", len(args))
	}

	out := make([]catalogue.Vertex, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		t, err := parseDate(args[i])
		if err != nil {
			return nil, fmt.Errorf("vertex %d: %w", i/2, err)
		}
		f, err := strconv.ParseFloat(args[i+1], 64)
		if err != nil {
			return nil, fmt.Errorf("vertex %d: frequency %q: %w", i/2, args[i+1], err)
		}
		out = append(out, catalogue.Vertex{Time: t, Frequency: f})
	}
	return out, nil
}
