package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandsRegistered(t *testing.T) {
	for _, path := range [][]string{{"serve"}, {"seed"}, {"verify"}, {"simulate"}, {"user", "create"}} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestSeedFlagDefaults(t *testing.T) {
	days, err := seedCmd.Flags().GetInt("days")
	require.NoError(t, err)
	assert.Equal(t, 7, days)

	reset, err := seedCmd.Flags().GetBool("reset")
	require.NoError(t, err)
	assert.False(t, reset)
}

func TestSimulateRejectsBadOptions(t *testing.T) {
	saved := simulateOpts
	t.Cleanup(func() { simulateOpts = saved })

	simulateOpts.devices = nil
	assert.EqualError(t, runSimulate(simulateCmd, nil), "at least one device id is required")

	simulateOpts = saved
	simulateOpts.anomalyRate = 1.5
	assert.EqualError(t, runSimulate(simulateCmd, nil), "anomaly-rate must be between 0 and 1")

	simulateOpts = saved
	simulateOpts.mode = "carrier-pigeon"
	simulateOpts.logLevel = "error"
	assert.EqualError(t, runSimulate(simulateCmd, nil), `unknown mode "carrier-pigeon"`)
}
