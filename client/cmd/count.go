package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/processone/fluux-messenger-sub003/node/store"
)

var countRoom bool

var countCmd = &cobra.Command{
	Use:   "count <conversation-or-room>",
	Short: "Print the number of cached messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCache(func(cache *store.MessageCache) error {
			n := 0
			if countRoom {
				n = cache.CountRoomMessages(args[0])
			} else {
				n = cache.CountMessages(args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		})
	},
}

func init() {
	countCmd.Flags().BoolVar(&countRoom, "room", false, "target is a room")
	rootCmd.AddCommand(countCmd)
}
