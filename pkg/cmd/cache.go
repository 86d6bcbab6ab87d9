package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yeisme/hsrelay/pkg/cache"
	"github.com/yeisme/hsrelay/pkg/configs"
	kv "github.com/yeisme/hsrelay/pkg/internal/storage/kv"
)

var (
	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "analysis result cache commands",
	}

	cacheTypesCmd = &cobra.Command{
		Use:     "types",
		Short:   "list all registered cache backends",
		Aliases: []string{"ls"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "Registered cache types:")

			for _, t := range kv.GetRegisteredKVTypes() {
				fmt.Fprintln(cmd.OutOrStdout(), "   - "+string(t))
			}
		},
	}

	cacheClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "delete every cached analysis result under cache.key_prefix",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configs.GetConfig().Cache
			if cfg.Type == configs.KVTypeMemory {
				fmt.Fprintln(cmd.OutOrStdout(), "memory cache lives in the server process; nothing to clear")
				return nil
			}

			client, err := kv.NewKVClient(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := cache.NewCache(client, cfg.KeyPrefix).Clear(cmd.Context()); err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "cleared keys with prefix %q\n", cfg.KeyPrefix)

			return nil
		},
	}
)

// registerCacheCommands 注册缓存相关命令.
func registerCacheCommands() {
	cacheCmd.AddCommand(cacheTypesCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
