package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/processone/fluux-messenger-sub003/client/utils"
	"github.com/processone/fluux-messenger-sub003/node/store"
)

var clearRoom bool
var clearYes bool

var clearCmd = &cobra.Command{
	Use:   "clear [conversation-or-room]",
	Short: "Delete cached messages",
	Long: `Delete the cached messages of one conversation or room, or of the whole
account store when no target is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		what := "every cached message"
		if len(args) == 1 {
			what = "cached messages of " + args[0]
		}

		out := cmd.OutOrStdout()
		if !clearYes && !utils.Confirm(cmd.InOrStdin(), out, "Delete "+what+"?") {
			fmt.Fprintln(out, "Operation cancelled.")
			return nil
		}

		return withCache(func(cache *store.MessageCache) error {
			switch {
			case len(args) == 0:
				cache.ClearAll()
			case clearRoom:
				cache.DeleteRoom(args[0])
			default:
				cache.DeleteConversation(args[0])
			}
			fmt.Fprintf(out, "Deleted %s\n", what)
			return nil
		})
	},
}

func init() {
	clearCmd.Flags().BoolVar(&clearRoom, "room", false, "target is a room")
	clearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "do not ask for confirmation")
	rootCmd.AddCommand(clearCmd)
}
