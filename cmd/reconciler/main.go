package main

import (
	"os"

	"settlement-reconciliation-service/cmd/reconciler/cmd"

	"github.com/spf13/viper"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, date)

	if err := cmd.Execute(); err != nil {
		handler := cmd.NewCLIErrorHandler(os.Stderr, viper.GetBool("verbose"))
		os.Exit(handler.HandleError(err))
	}
}
