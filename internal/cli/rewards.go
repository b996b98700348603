package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/app"
	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/backend"
	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/rewards"
)

// Catalog is the reward catalog file format.
type Catalog struct {
	Rewards []rewards.AvailableReward `yaml:"rewards"`
}

// SeedResult reports what a seed run changed.
type SeedResult struct {
	Added   []rewards.AvailableReward `json:"added"`
	Skipped []string                  `json:"skipped"`
}

// LoadCatalog parses a catalog file. Entries need a description and a positive cost.
func LoadCatalog(r io.Reader) (Catalog, error) {
	var catalog Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&catalog); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}
	for i, reward := range catalog.Rewards {
		if reward.Description == "" {
			return Catalog{}, fmt.Errorf("catalog entry %d: description is required", i+1)
		}
		if reward.PointCost <= 0 {
			return Catalog{}, fmt.Errorf("catalog entry %d (%s): point_cost must be positive", i+1, reward.Description)
		}
	}
	return catalog, nil
}

func newRewardsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rewards",
		Short: "Manage the reward catalog",
	}
	cmd.AddCommand(newRewardsSeedCommand(opts))
	cmd.AddCommand(newRewardsListCommand(opts))
	return cmd
}

func newRewardsSeedCommand(opts *RootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Add catalog entries from a YAML file",
		Long: `Add every reward in the file to the catalog. Rewards whose description is
already present are skipped, so seeding is safe to repeat.

Example file:
  rewards:
    - description: Free coffee
      point_cost: 500`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()
			catalog, err := LoadCatalog(f)
			if err != nil {
				return err
			}

			return opts.withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				result, err := seed(ctx, rt.Rewards(), catalog)
				if err != nil {
					return err
				}
				return opts.emit(cmd.OutOrStdout(), result, func(w io.Writer) {
					fmt.Fprintf(w, "added %d, skipped %d\n", len(result.Added), len(result.Skipped))
				})
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "catalog YAML file (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func seed(ctx context.Context, acc *rewards.Accessor, catalog Catalog) (SeedResult, error) {
	result := SeedResult{Added: []rewards.AvailableReward{}, Skipped: []string{}}
	for _, reward := range catalog.Rewards {
		stored, err := acc.AddReward(ctx, reward)
		switch {
		case errors.Is(err, backend.ErrDuplicate):
			result.Skipped = append(result.Skipped, reward.Description)
		case err != nil:
			return result, fmt.Errorf("seed %q: %w", reward.Description, err)
		default:
			result.Added = append(result.Added, *stored)
		}
	}
	return result, nil
}

func newRewardsListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the reward catalog, cheapest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				list, err := rt.Rewards().AvailableRewards(ctx)
				if err != nil {
					return err
				}
				return opts.emit(cmd.OutOrStdout(), list, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tPOINTS\tDESCRIPTION")
					for _, reward := range list {
						fmt.Fprintf(tw, "%d\t%d\t%s\n", reward.ID, reward.PointCost, reward.Description)
					}
					_ = tw.Flush()
				})
			})
		},
	}
}
