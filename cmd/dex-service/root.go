package main

import (
	"github.com/spf13/cobra"
)

const serviceName = "dex-service"

var configFile string

var rootCmd = &cobra.Command{
	Use:          serviceName,
	Short:        "Order book exchange: matching engine, funds ledger and crank",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default ./config/dex-service.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(walDumpCmd)
	rootCmd.AddCommand(tailCmd)
}
