package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/yeisme/hsrelay/pkg/configs"
	mq "github.com/yeisme/hsrelay/pkg/internal/storage/mq"
	"github.com/yeisme/hsrelay/pkg/queue"
)

var (
	eventsCmd = &cobra.Command{
		Use:   "events",
		Short: "classification event bus commands",
	}

	eventsTypesCmd = &cobra.Command{
		Use:     "types",
		Short:   "list all registered event bus types",
		Aliases: []string{"ls"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "Registered event bus types:")

			for _, t := range mq.GetRegisteredMQTypes() {
				fmt.Fprintln(cmd.OutOrStdout(), "   - "+string(t))
			}
		},
	}

	eventsTailCmd = &cobra.Command{
		Use:   "tail",
		Short: "print classification events from the configured bus until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configs.GetConfig().Events
			if cfg.Type == configs.MQTypeGoChannel {
				return fmt.Errorf("events.type %q is in-process only; use nats or redis to tail", cfg.Type)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client, err := mq.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			return tailEvents(ctx, cmd, client)
		},
	}
)

// tailEvents 订阅全部分类主题并逐行打印消息信封.
func tailEvents(ctx context.Context, cmd *cobra.Command, client *mq.Client) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, topic := range queue.AllTopics() {
		ch, err := client.Subscribe(gctx, topic)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}

		g.Go(func() error {
			for msg := range ch {
				env, err := queue.ParseClassification(msg)
				msg.Ack()

				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "skip malformed message %s: %v\n", msg.UUID, err)
					continue
				}

				line, err := sonic.MarshalString(env)
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), line)
			}

			return nil
		})
	}

	return g.Wait()
}

// registerEventsCommands 注册事件相关命令.
func registerEventsCommands() {
	eventsCmd.AddCommand(eventsTypesCmd, eventsTailCmd)
	rootCmd.AddCommand(eventsCmd)
}
