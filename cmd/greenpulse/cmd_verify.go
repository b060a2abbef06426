package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/repository"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check data integrity",
	Long:  `Report row counts and devices whose farm or ownership is inconsistent. Exits non-zero when problems are found.`,
	RunE:  runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := repository.NewStore(a.db.DB).Integrity(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("users=%d farms=%d devices=%d readings=%d alerts=%d\n",
		report.Users, report.Farms, report.Devices, report.Readings, report.Alerts)
	printIssues("devices without a farm", report.OrphanDevices)
	printIssues("devices owned by someone other than the farm owner", report.OwnerMismatches)
	printIssues("devices without configuration", report.UnconfiguredDevices)
	if report.DetachedReadings > 0 {
		fmt.Printf("%d readings belong to deleted devices\n", report.DetachedReadings)
	}

	if !report.Healthy() {
		return errors.New("integrity check failed")
	}
	fmt.Println("OK")
	return nil
}

func printIssues(label string, ids []string) {
	if len(ids) == 0 {
		return
	}
	fmt.Printf("%s (%d): %s\n", label, len(ids), strings.Join(ids, ", "))
}
