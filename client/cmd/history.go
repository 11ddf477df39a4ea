package cmd

import (
	"github.com/spf13/cobra"

	"github.com/processone/fluux-messenger-sub003/node/store"
	typesStore "github.com/processone/fluux-messenger-sub003/types/store"
)

var historyRoom bool
var historyLimit int
var historyBefore string
var historyAfter string
var historyLatest bool

var historyCmd = &cobra.Command{
	Use:   "history <conversation-or-room>",
	Short: "Print cached messages of a conversation or room",
	Long: `Print cached messages of a conversation or room in ascending time order.
Bounds accept RFC 3339 timestamps or unix milliseconds.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		before, err := parseTime(historyBefore)
		if err != nil {
			return err
		}
		after, err := parseTime(historyAfter)
		if err != nil {
			return err
		}

		opts := typesStore.QueryOptions{
			Limit:  historyLimit,
			Before: before,
			After:  after,
			Latest: historyLatest,
		}

		return withCache(func(cache *store.MessageCache) error {
			out := cmd.OutOrStdout()
			if historyRoom {
				for _, m := range cache.QueryRoomMessages(args[0], opts) {
					printContent(out, m.Nick, &m.Content)
				}
				return nil
			}

			for _, m := range cache.QueryMessages(args[0], opts) {
				printContent(out, m.From, &m.Content)
			}
			return nil
		})
	},
}

func init() {
	historyCmd.Flags().BoolVar(&historyRoom, "room", false, "target is a room")
	historyCmd.Flags().IntVarP(
		&historyLimit,
		"limit",
		"n",
		0,
		"maximum number of messages, 0 for all",
	)
	historyCmd.Flags().StringVar(
		&historyBefore,
		"before",
		"",
		"only messages strictly older than this time",
	)
	historyCmd.Flags().StringVar(
		&historyAfter,
		"after",
		"",
		"only messages strictly newer than this time",
	)
	historyCmd.Flags().BoolVar(
		&historyLatest,
		"latest",
		false,
		"with a limit, keep the newest messages instead of the oldest",
	)
	rootCmd.AddCommand(historyCmd)
}
