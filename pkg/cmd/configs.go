package cmd

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/yeisme/hsrelay/pkg/configs"
)

var (
	// config 子命令.
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "config subcommands",
	}

	// 打印当前使用的配置文件路径.
	pathCmd = &cobra.Command{
		Use:   "path",
		Short: "print the path of the current config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := configs.GetViper()
			if v == nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "config not initialized")
				return nil
			}

			cfg := v.ConfigFileUsed()
			if cfg == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "no config file used (defaults and HSRELAY_* env)")
				return nil
			}

			fmt.Fprintln(cmd.OutOrStdout(), cfg)

			return nil
		},
	}

	// 校验配置文件，不启动服务.
	validateCmd = &cobra.Command{
		Use:         "validate",
		Short:       "load and validate the config without starting the server",
		Annotations: map[string]string{annotationNoInit: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := configs.Load(configPath); err != nil {
				var verr *configs.ValidationError
				if errors.As(err, &verr) {
					for field, reason := range verr.Fields {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", field, reason)
					}
				}

				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "config ok")

			return nil
		},
	}

	// 打印生效的配置.
	debugCmd = &cobra.Command{
		Use:   "debug",
		Short: "print the effective config values as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := configs.GetViper()
			if v == nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "config not initialized.")
				return nil
			}

			if debug {
				v.Debug()
			}

			b, err := sonic.ConfigStd.MarshalIndent(configs.GetConfig(), "", "  ")
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), string(b))

			return nil
		},
	}
)

// registerConfigsCommands 注册 CLI 子命令.
func registerConfigsCommands() {
	configCmd.AddCommand(pathCmd)
	configCmd.AddCommand(debugCmd)
	configCmd.AddCommand(validateCmd)

	rootCmd.AddCommand(configCmd)
}
