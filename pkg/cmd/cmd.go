// Package cmd contains the command line applications for the project.
package cmd

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/yeisme/hsrelay/pkg/configs"
	"github.com/yeisme/hsrelay/pkg/log"
)

// annotationNoInit 标记不需要加载全局配置的子命令.
const annotationNoInit = "hsrelay/no-init"

var (
	configPath string
	debug      bool

	rootCmd = &cobra.Command{
		Use:           "hsrelay",
		Short:         "HTTP relay that forwards uploaded documents and text to a classification service",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[annotationNoInit] != "" {
				return nil
			}

			if err := configs.InitConfig(configPath); err != nil {
				return err
			}

			log.Init()

			if debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".",
		"config file or directory containing config.{yaml,yml,json,toml,env}")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging and verbose config output")

	registerServeCommands()
	registerConfigsCommands()
	registerSpoolCommands()
	registerCacheCommands()
	registerEventsCommands()
	registerVersionCommands()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
