// Command greenpulse runs the GreenPulse telemetry backend and its maintenance tools.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "greenpulse",
	Short: "GreenPulse - Hydroponic Farm Telemetry Backend",
	Long: `GreenPulse collects water-quality readings from tank sensors over HTTP and MQTT,
raises threshold alerts, and serves the farm dashboard API.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
