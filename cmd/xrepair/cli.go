package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xrepair/xrepair/internal/elog"
	"github.com/xrepair/xrepair/internal/repairflags"
)

// log is the engine-wide logger, set up in rootCmd's PersistentPreRunE once flags are parsed,
// grounded on cmd/vorteil/cli.go's package-level log var of the same shape.
var log elog.View

var flags repairflags.RepairFlags

var rootCmd = &cobra.Command{
	Use:   "xrepair",
	Short: "Offline consistency checker and repair tool for XFS-family filesystems",
	Long: `xrepair inspects an unmounted XFS-family filesystem image or block device, verifies its
on-disk metadata, and repairs or upgrades it without a live kernel mount.`,
}

var checkCmd = &cobra.Command{
	Use:   "check DEVICE",
	Short: "Verify a filesystem without writing to it",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

var repairCmd = &cobra.Command{
	Use:   "repair DEVICE",
	Short: "Verify and repair a filesystem's metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runRepair,
}

var upgradeCmd = &cobra.Command{
	Use:   "upgrade DEVICE",
	Short: "Enable one or more optional features on an existing filesystem",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpgrade,
}

// commandInit wires the flag set and logger setup, grounded on cmd/vorteil/cli.go's commandInit:
// flags are bound once via repairflags.BindPFlags, and PersistentPreRunE builds the logger from
// whatever the user passed before any subcommand body runs.
func commandInit() {
	flags.BindPFlags(rootCmd.PersistentFlags())
	rootCmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error { return usageResult(err) })

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		flags.LoadEnv(viper.GetViper())

		logger := &elog.CLI{DisableTTY: !flags.Verbose}
		logrus.SetFormatter(logger)
		logrus.SetLevel(logrus.TraceLevel)
		if flags.Verbose {
			logger.IsVerbose = true
		}
		log = logger
		return nil
	}

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(repairCmd)
	rootCmd.AddCommand(upgradeCmd)
}
