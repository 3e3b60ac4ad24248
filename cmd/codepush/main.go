package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var rootCmd = &cobra.Command{Use: "codepush"}

	// Add commands
	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewBundleCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
