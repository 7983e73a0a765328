// Package main provides the elevation API server and lookup CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"go.ngs.io/elevation-api/internal/logger"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "elevation-api",
	Short: "Elevation lookup service",
	Long: `Elevation API answers terrain height queries above the WGS84 ellipsoid,
mean sea level, or the geoid from NetCDF DEM tiles and a geoid model.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		l, logErr := logger.New(&logger.Config{Level: "debug", Format: "console"})
		if logErr == nil {
			l.Error("command failed", zap.Error(err))
			_ = l.Sync()
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd, lookupCmd)
}
