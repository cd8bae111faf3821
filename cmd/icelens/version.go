package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// version is set with -ldflags "-X main.version=..." on release builds.
var version = ""

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the icelens version",
	Run: func(cmd *cobra.Command, args []string) {
		v := version
		if v == "" {
			if info, ok := debug.ReadBuildInfo(); ok {
				v = info.Main.Version
			}
		}
		if v == "" {
			v = "(devel)"
		}
		fmt.Println("icelens", v)
	},
}
