package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stevelan1995/forgebuild/pkg/core/engine"
)

// versionCmd 查看版本
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "查看版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("forgebuild %s\n", engine.Version)
	},
}
