package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopherdex.com/internal/broadcast"
	"gopherdex.com/internal/gateway/app"
	dexConfig "gopherdex.com/internal/gateway/config"
	vipConfig "gopherdex.com/pkg/config"
)

var tailCmd = &cobra.Command{
	Use:   "tail [topic...]",
	Short: "Subscribe to broadcast events, e.g. dex.*.trade or dex.>",
	RunE: func(cmd *cobra.Command, args []string) error {
		var cfg dexConfig.DexConfig
		if _, err := vipConfig.Load(serviceName, configFile, &cfg); err != nil {
			return err
		}
		if len(args) == 0 {
			args = []string{"dex.>"}
		}
		b, err := app.NewBroker(cfg.Broadcast)
		if err != nil {
			return err
		}
		defer b.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		msgs, err := b.Subscribe(ctx, args)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for m := range msgs {
			ev, err := broadcast.Decode(m.Payload)
			if err != nil {
				fmt.Fprintf(out, "%s undecodable: %v\n", m.Topic, err)
				continue
			}
			fmt.Fprintf(out, "%s seq=%d idx=%d %s\n", m.Topic, ev.Seq, ev.Idx, m.Payload)
		}
		if err := ctx.Err(); err != nil && err != context.Canceled {
			return err
		}
		return nil
	},
}
