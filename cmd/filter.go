package main

import (
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/burghandi/commute-cli/internal/commute"
	"github.com/burghandi/commute-cli/internal/spatial"
)

var (
	filterLat    float64
	filterLon    float64
	filterArea   string
	filterBudget int
	filterMode   string
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "List areas reachable from a workplace point within a budget",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine()
		if err != nil {
			return err
		}
		defer env.Close()

		area := filterArea
		if area == "" {
			area, err = env.Postcodes.ResolveArea(ctx, filterLat, filterLon)
			if err != nil {
				return eris.Wrap(err, "resolve workplace area")
			}
		}

		result, err := env.Filter.Filter(ctx, commute.Request{
			Lat:    filterLat,
			Lon:    filterLon,
			Area:   area,
			Budget: filterBudget,
			Mode:   filterMode,
		})
		if err != nil {
			return err
		}

		if len(result) == 0 {
			fmt.Println("no areas reachable within budget")
			return nil
		}

		ids := make([]string, 0, len(result))
		for id := range result {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			if result[ids[i]] != result[ids[j]] {
				return result[ids[i]] < result[ids[j]]
			}
			return ids[i] < ids[j]
		})

		for _, id := range ids {
			line := fmt.Sprintf("%-6s %3d min", id, result[id])
			if a, ok := env.Registry.Get(id); ok {
				line += fmt.Sprintf("  (%.1f km direct)", spatial.DistanceKm(filterLat, filterLon, a.Latitude, a.Longitude))
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	filterCmd.Flags().Float64Var(&filterLat, "lat", 0, "workplace latitude")
	filterCmd.Flags().Float64Var(&filterLon, "lon", 0, "workplace longitude")
	filterCmd.Flags().StringVar(&filterArea, "area", "", "workplace area id (resolved from coordinates when empty)")
	filterCmd.Flags().IntVar(&filterBudget, "budget", 30, "max travel time in minutes")
	filterCmd.Flags().StringVar(&filterMode, "mode", commute.ModePublicTransport, "transport mode")
	_ = filterCmd.MarkFlagRequired("lat")
	_ = filterCmd.MarkFlagRequired("lon")
	rootCmd.AddCommand(filterCmd)
}
