package cli

import (
	"github.com/spf13/cobra"

	"block-timestamp-logger/internal/app"
)

var (
	reportChain     string
	reportPNGPath   string
	reportMaxPoints int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render a chain's logged deltas as a PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Report(app.ReportOptions{
			Chain:     reportChain,
			PNGPath:   reportPNGPath,
			MaxPoints: reportMaxPoints,
		})
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportChain, "chain", "", "Chain name whose delta log to plot")
	reportCmd.Flags().StringVar(&reportPNGPath, "png", "", "Path to write PNG chart")
	reportCmd.Flags().IntVar(&reportMaxPoints, "max-points", 0, "Maximum data points to plot (defaults to config)")
}
