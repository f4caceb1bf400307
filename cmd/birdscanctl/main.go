package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "birdscanctl",
	Short: "Operator CLI for the birdscan results pipeline",
}

func init() {
	rootCmd.PersistentFlags().String("addr", "http://localhost:8080", "processor API address")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
