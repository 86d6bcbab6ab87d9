package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/yeisme/hsrelay/pkg/configs"
)

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "print the hsrelay version",
	Annotations: map[string]string{annotationNoInit: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "hsrelay %s (%s %s/%s)\n",
			configs.AppVersion, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

// registerVersionCommands 注册 version 子命令.
func registerVersionCommands() {
	rootCmd.AddCommand(versionCmd)
}
