package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopherdex.com/internal/engine"
	"gopherdex.com/internal/gateway/app"
	dexConfig "gopherdex.com/internal/gateway/config"
	vipConfig "gopherdex.com/pkg/config"
)

var (
	walDir    string
	walCodec  string
	walEvents bool
)

var walDumpCmd = &cobra.Command{
	Use:   "wal-dump <market>",
	Short: "Print a market's command log (or its event outbox) in readable form",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, codec := walDir, walCodec
		if dir == "" || codec == "" {
			var cfg dexConfig.DexConfig
			if _, err := vipConfig.Load(serviceName, configFile, &cfg); err != nil {
				return fmt.Errorf("need --dir or a config file: %w", err)
			}
			if dir == "" {
				dir = cfg.Engine.WALDir
			}
			if codec == "" {
				codec = cfg.Engine.Codec
			}
		}
		cmdCodec, evCodec := app.Codecs(codec)
		cmdPath, evPath := engine.WALPaths(dir, args[0])

		out := cmd.OutOrStdout()
		var (
			st  engine.DumpStats
			err error
		)
		if walEvents {
			st, err = engine.DumpOutbox(out, evPath, evCodec)
		} else {
			st, err = engine.DumpCmdWAL(out, cmdPath, cmdCodec)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "records=%d truncated_tail=%v\n", st.Records, st.TruncatedTail)
		return nil
	},
}

func init() {
	walDumpCmd.Flags().StringVar(&walDir, "dir", "", "wal directory (default engine.wal_dir)")
	walDumpCmd.Flags().StringVar(&walCodec, "codec", "", "binary | json (default engine.codec)")
	walDumpCmd.Flags().BoolVar(&walEvents, "events", false, "dump the event outbox instead of the command log")
}
