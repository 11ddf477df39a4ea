package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/processone/fluux-messenger-sub003/node/store"
)

var oldestRoom bool

var oldestCmd = &cobra.Command{
	Use:   "oldest <conversation-or-room>",
	Short: "Print the timestamp of the oldest cached message",
	Long: `Print the timestamp of the oldest cached message. The client pages
further back in the archive from this point.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCache(func(cache *store.MessageCache) error {
			var oldest time.Time
			var ok bool
			if oldestRoom {
				oldest, ok = cache.OldestRoomMessageTimestamp(args[0])
			} else {
				oldest, ok = cache.OldestMessageTimestamp(args[0])
			}

			out := cmd.OutOrStdout()
			if !ok {
				fmt.Fprintln(out, "no cached messages")
				return nil
			}
			fmt.Fprintln(out, oldest.UTC().Format(time.RFC3339Nano))
			return nil
		})
	},
}

func init() {
	oldestCmd.Flags().BoolVar(&oldestRoom, "room", false, "target is a room")
	rootCmd.AddCommand(oldestCmd)
}
