package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/zonematch/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "zonematch",
	Short: "Match CSV point records to geographic zones",
	Long:  "Streams CSV rows of longitude/latitude records through a zero-allocation tokenizer, resolves each point against layered zone polygons (shapefile, GeoJSON, PostGIS), and writes or persists the enriched rows.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(); err != nil {
			return fmt.Errorf("load env: %w", err)
		}

		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
