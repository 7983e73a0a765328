package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"go.ngs.io/elevation-api/internal/config"
	"go.ngs.io/elevation-api/internal/domain"
	httpHandler "go.ngs.io/elevation-api/internal/http"
	"go.ngs.io/elevation-api/internal/logger"
)

var (
	lookupLat       float64
	lookupLon       float64
	lookupReference string
	lookupDemDirs   []string
	lookupGeoid     string
)

var lookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Look up one height and print it as JSON",
	Long: `Registers the configured sources (plus any given with --dem-dir and
--geoid), samples one point, and prints the result.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := domain.ParseReference(lookupReference)
		if err != nil {
			return err
		}
		cfg, err := config.LoadConfig(".")
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		if len(lookupDemDirs) > 0 {
			cfg.Elevation.DemDirs = strings.Join(lookupDemDirs, ",")
		}
		if lookupGeoid != "" {
			cfg.Elevation.GeoidPath = lookupGeoid
		}

		// Keep stdout for the result.
		cfg.Log.Format = "console"
		if cfg.Log.Level == "info" {
			cfg.Log.Level = "warn"
		}
		logg, err := logger.New(&cfg.Log)
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		defer func() { _ = logg.Sync() }()

		svc, err := newService(cfg, logg)
		if err != nil {
			return err
		}
		defer func() { _ = svc.Close() }()
		registerSources(svc, cfg.Elevation, logg)

		height, found := svc.Height(ref, lookupLon, lookupLat)
		logg.Debug("lookup", zap.Float64("lat", lookupLat), zap.Float64("lon", lookupLon), zap.Bool("found", found))

		out, err := json.MarshalIndent(httpHandler.ElevationResponse{
			Lat:       lookupLat,
			Lon:       lookupLon,
			Reference: ref,
			HeightM:   height,
			Found:     found,
		}, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return err
	},
}

func init() {
	lookupCmd.Flags().Float64Var(&lookupLat, "lat", 0, "latitude in degrees")
	lookupCmd.Flags().Float64Var(&lookupLon, "lon", 0, "longitude in degrees")
	lookupCmd.Flags().StringVar(&lookupReference, "reference", "ellipsoid", "ellipsoid, msl, geoid or composite")
	lookupCmd.Flags().StringSliceVar(&lookupDemDirs, "dem-dir", nil, "DEM tile directory (repeatable)")
	lookupCmd.Flags().StringVar(&lookupGeoid, "geoid", "", "geoid model file")
	_ = lookupCmd.MarkFlagRequired("lat")
	_ = lookupCmd.MarkFlagRequired("lon")
}
