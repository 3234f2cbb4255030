package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/miku/oaipoll"
	"github.com/spf13/cobra"
)

var infoTimeout time.Duration

var infoCmd = &cobra.Command{
	Use:   "info ENDPOINT",
	Short: "Show repository information as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger("warn", false)
		if err != nil {
			return err
		}
		defer log.Sync()
		ctx, cancel := context.WithTimeout(cmd.Context(), infoTimeout)
		defer cancel()
		client := oaipoll.NewClient(oaipoll.DefaultClientConfig(), log)
		info, err := oaipoll.RepositoryInfo(ctx, client, args[0])
		if err != nil {
			return err
		}
		return json.NewEncoder(cmd.OutOrStdout()).Encode(info)
	},
}

func init() {
	infoCmd.Flags().DurationVar(&infoTimeout, "timeout", 10*time.Minute, "give up after this long")
}
