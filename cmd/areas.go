package main

import (
	"fmt"
	"math"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/burghandi/commute-cli/internal/cache"
	"github.com/burghandi/commute-cli/internal/registry"
	"github.com/burghandi/commute-cli/internal/spatial"
)

var areasCmd = &cobra.Command{
	Use:   "areas",
	Short: "Manage the area registry",
}

var (
	sweepMinLat float64
	sweepMaxLat float64
	sweepMinLon float64
	sweepMaxLon float64
	sweepStepKm float64
)

var areasLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Fetch the area registry from the outcode service and persist it",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
			return eris.Wrapf(err, "create data dir %s", cfg.Data.Dir)
		}

		client := newPostcodesClient()

		// Sweep the bounding box on a grid, collecting every outcode whose
		// centroid the service reports. The probe radius is derived from
		// the grid step so adjacent probes overlap and no cell slips
		// between them.
		seen := make(map[string]registry.Area)
		step := sweepStepKm / 111.0 // degrees latitude per km, approx
		radius := sweepRadiusMeters(sweepStepKm, cfg.Postcodes.RadiusMeters)
		probes := 0
		for lat := sweepMinLat; lat <= sweepMaxLat; lat += step {
			for lon := sweepMinLon; lon <= sweepMaxLon; lon += step {
				outcodes, err := client.OutcodesNear(ctx, lat, lon, radius)
				if err != nil {
					zap.L().Warn("outcode probe failed",
						zap.Float64("lat", lat),
						zap.Float64("lon", lon),
						zap.Error(err),
					)
					continue
				}
				probes++
				for _, oc := range outcodes {
					if _, ok := seen[oc.Code]; ok {
						continue
					}
					seen[oc.Code] = registry.Area{
						ID:        oc.Code,
						Latitude:  oc.Latitude,
						Longitude: oc.Longitude,
					}
				}
			}
		}

		if len(seen) == 0 {
			return eris.New("areas load: sweep found no outcodes")
		}

		areas := make([]registry.Area, 0, len(seen))
		for _, a := range seen {
			areas = append(areas, a)
		}
		reg := registry.New(areas)

		if err := reg.Save(dataPath(cfg.Data.AreasFile)); err != nil {
			return err
		}

		// Rebuild the spatial index eagerly so the first filter call does
		// not pay for it.
		idx, err := spatial.Build(reg)
		if err != nil {
			return err
		}
		if err := idx.Save(dataPath(cfg.Data.IndexFile), reg); err != nil {
			return err
		}

		zap.L().Info("area registry loaded",
			zap.Int("areas", reg.Len()),
			zap.Int("probes", probes),
		)
		fmt.Printf("loaded %d areas\n", reg.Len())
		return nil
	},
}

// sweepRadiusMeters returns a probe radius covering a full grid cell:
// the farthest point of a square cell from its center sits step/sqrt(2)
// away. The configured radius acts as a floor for coarse steps.
func sweepRadiusMeters(stepKm float64, floorMeters int) int {
	r := int(math.Ceil(stepKm * 1000 / math.Sqrt2))
	if r < floorMeters {
		return floorMeters
	}
	return r
}

var areasStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report registry size, cache entries, and index freshness",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := registry.Load(dataPath(cfg.Data.AreasFile))
		if err != nil {
			return eris.Wrap(err, "load area registry")
		}

		indexState := "fresh"
		if _, err := spatial.LoadSnapshot(dataPath(cfg.Data.IndexFile), reg); err != nil {
			if eris.Is(err, spatial.ErrStaleIndex) {
				indexState = "stale (will rebuild on next use)"
			} else {
				indexState = "missing (will build on next use)"
			}
		}

		store, err := cache.Open(dataPath(cfg.Data.DistancesDB))
		if err != nil {
			return eris.Wrap(err, "open distance cache")
		}
		defer store.Close() //nolint:errcheck

		totalPairs := reg.Len() * (reg.Len() - 1) / 2

		fmt.Printf("areas:          %d\n", reg.Len())
		fmt.Printf("spatial index:  %s\n", indexState)
		fmt.Printf("cache entries:  %d directed (%d of %d unordered pairs)\n",
			store.Len(), store.Len()/2, totalPairs)

		run, err := store.LastRun(cmd.Context())
		if err != nil {
			return err
		}
		if run != nil {
			state := "running"
			if run.FinishedAt != nil {
				state = run.FinishedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("last warm run:  %s (attempted %d, failed %d, finished %s)\n",
				run.ID, run.Attempted, run.Failed, state)
		}
		return nil
	},
}

func init() {
	// Defaults cover Greater London.
	areasLoadCmd.Flags().Float64Var(&sweepMinLat, "min-lat", 51.28, "sweep bounding box: south edge")
	areasLoadCmd.Flags().Float64Var(&sweepMaxLat, "max-lat", 51.70, "sweep bounding box: north edge")
	areasLoadCmd.Flags().Float64Var(&sweepMinLon, "min-lon", -0.52, "sweep bounding box: west edge")
	areasLoadCmd.Flags().Float64Var(&sweepMaxLon, "max-lon", 0.33, "sweep bounding box: east edge")
	areasLoadCmd.Flags().Float64Var(&sweepStepKm, "step-km", 2.0, "sweep grid step in kilometers")

	areasCmd.AddCommand(areasLoadCmd)
	areasCmd.AddCommand(areasStatusCmd)
	rootCmd.AddCommand(areasCmd)
}
