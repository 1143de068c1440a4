package main

import (
	"os"

	"github.com/spf13/cobra"
)

var mainCMD = &cobra.Command{
	Use:   "kiru",
	Short: "Split text into overlapping chunks",
	Long:  "Splits strings, files, and remote documents into overlapping chunks sized in bytes or characters, in bounded memory.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	mainCMD.AddCommand(benchCMD)
	mainCMD.AddCommand(chunkCMD)
}

func main() {
	if err := mainCMD.Execute(); err != nil {
		os.Exit(1)
	}
}
