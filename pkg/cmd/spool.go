package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yeisme/hsrelay/pkg/configs"
	"github.com/yeisme/hsrelay/pkg/internal/jobs"
	"github.com/yeisme/hsrelay/pkg/internal/storage/spool"
)

var (
	sweepMaxAge time.Duration

	spoolCmd = &cobra.Command{
		Use:   "spool",
		Short: "transient upload directory commands",
	}

	spoolSweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "remove stale transient files once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configs.GetConfig().Upload
			if sweepMaxAge > 0 {
				cfg.SweepMaxAge = sweepMaxAge
			}

			store, err := spool.NewFromConfig(cfg)
			if err != nil {
				return err
			}

			n, err := jobs.SweepSpool(store, cfg, time.Now())
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d file(s) from %s\n", n, store.Dir())

			return err
		},
	}
)

// registerSpoolCommands 注册 spool 子命令.
func registerSpoolCommands() {
	spoolSweepCmd.Flags().DurationVar(&sweepMaxAge, "max-age", 0, "override upload.sweep_max_age")

	spoolCmd.AddCommand(spoolSweepCmd)
	rootCmd.AddCommand(spoolCmd)
}
