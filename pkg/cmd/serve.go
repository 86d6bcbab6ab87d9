package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yeisme/hsrelay/pkg/app"
	"github.com/yeisme/hsrelay/pkg/log"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "start the HTTP relay and background jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// runServe 运行服务直到收到 SIGINT 或 SIGTERM.
func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.NewApp(ctx)
	if err != nil {
		return err
	}

	if err := a.Run(ctx); err != nil {
		log.Logger().Error().Err(err).Msg("server stopped with error")
		return err
	}

	log.Logger().Info().Msg("server stopped")

	return nil
}

// registerServeCommands 注册 serve 子命令.
func registerServeCommands() {
	rootCmd.AddCommand(serveCmd)
}
