package commands

import (
	"github.com/spf13/cobra"

	"github.com/pwdedup/pwdedup/internal/config"
)

// registerFlags declares every flag config.Load knows how to read back
// out of a *pflag.FlagSet. Flag names match the config package's
// mapstructure tags exactly so Load's flags.Visit pass applies them
// under the right key.
func registerFlags(cmd *cobra.Command) {
	def := config.Default()

	cmd.Flags().Int("workers", def.Workers, "number of worker goroutines (default: one per logical CPU)")
	cmd.Flags().String("size-hint", def.SizeHint.String(), "block iterator size hint, e.g. 2Mi (must be a multiple of the page size)")
	cmd.Flags().String("slab-bytes", def.SlabBytes.String(), "record store slab size, e.g. 64Mi")
	cmd.Flags().String("temp-dir", def.TempDir, "directory for the record store's working files (default: system temp dir)")
	cmd.Flags().String("log-level", def.LogLevel, "log level: DEBUG, INFO, WARN, ERROR")
	cmd.Flags().String("log-format", def.LogFormat, "log format: text, json")
	cmd.Flags().String("metrics-file", def.MetricsFile, "path to write a Prometheus text-format metrics dump after the run")
}
