// Package cmd provides list of commands including benchmark and tools
package cmd

import (
	"github.com/relex/gotils/config"
)

func init() {
	config.AddParentCmdWithArgs("", "framesink persists high-rate frame streams without blocking producers", &rootCmd, rootCmd.preRun, rootCmd.postRun)
	config.AddCmdWithArgs("benchmark ...", "Benchmark pipelines with producers at full speed", &benchCmd, benchCmd.run)
	config.AddCmdWithArgs("inspect <dir> ...", "Verify saved take directories", &inspectCmd, inspectCmd.run)
	config.AddCmdWithArgs("run ...", "Run capture", &runCmd, runCmd.run)
}

// Execute parses the command line and runs the specified command
func Execute() {
	// trigger init

	config.Execute()
}
