package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the demo data set",
	Long: `Create demo users, farms, devices, a history of readings and sample alerts.
Refuses to run over existing demo data unless --reset is given.`,
	RunE: runSeed,
}

var (
	seedReset bool
	seedDays  int
	seedStep  time.Duration
)

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().BoolVar(&seedReset, "reset", false, "delete all existing data first")
	seedCmd.Flags().IntVar(&seedDays, "days", 7, "days of reading history per device")
	seedCmd.Flags().DurationVar(&seedStep, "step", 15*time.Minute, "interval between generated readings")
}

func runSeed(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	opts := seed.DefaultOptions()
	opts.Reset = seedReset
	opts.Days = seedDays
	opts.Step = seedStep

	sum, err := seed.Run(cmd.Context(), a.db.DB, opts, a.log)
	if err != nil {
		return fmt.Errorf("failed to seed: %w", err)
	}

	fmt.Printf("Seeded %d users, %d farms, %d devices, %d readings, %d alerts\n",
		sum.Users, sum.Farms, sum.Devices, sum.Readings, sum.Alerts)
	fmt.Println()
	fmt.Println("Login credentials:")
	fmt.Printf("  Admin:  %s / %s\n", seed.AdminEmail, seed.AdminPassword)
	fmt.Printf("  Farmer: john@farm.com / %s\n", seed.FarmerPassword)
	fmt.Printf("  Farmer: mary@greenfarm.com / %s\n", seed.FarmerPassword)
	fmt.Printf("  Viewer: viewer@greenpulse.com / %s\n", seed.ViewerPassword)
	return nil
}
