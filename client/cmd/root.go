package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	clientConfig "github.com/processone/fluux-messenger-sub003/client/cmd/config"
	"github.com/processone/fluux-messenger-sub003/client/utils"
	"github.com/processone/fluux-messenger-sub003/config"
	"github.com/processone/fluux-messenger-sub003/node/store"
)

var configPath string
var account string
var debug bool
var CacheConfig *config.Config

var logger *zap.Logger
var logCloser io.Closer

var rootCmd = &cobra.Command{
	Use:   "fluux-cache",
	Short: "Fluux message cache tool",
	Long: `fluux-cache inspects and maintains the local message cache of a Fluux
account. It reads the same stores the client writes, one per account.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}

		cfg, err := utils.LoadClientConfig(configPath)
		if err != nil {
			return err
		}
		CacheConfig = cfg

		logger, logCloser, err = cfg.CreateLogger(account, debug)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Sync()
		}
		if logCloser != nil {
			logCloser.Close()
		}
		logger, logCloser = nil, nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// withCache opens the store of the selected account for the duration of fn.
func withCache(fn func(cache *store.MessageCache) error) error {
	cache := store.OpenMessageCache(
		logger,
		CacheConfig.DB,
		CacheConfig.Buffer,
		account,
	)
	defer cache.Close()

	if !cache.Available() {
		return errors.New("message cache unavailable")
	}
	return fn(cache)
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&configPath,
		"config",
		utils.GetConfigPath(),
		"path to the configuration file",
	)
	rootCmd.PersistentFlags().StringVarP(
		&account,
		"account",
		"a",
		"",
		"account whose store is used, empty selects the pre-login store",
	)
	rootCmd.PersistentFlags().BoolVar(
		&debug,
		"debug",
		false,
		"enable debug logging",
	)

	rootCmd.AddCommand(clientConfig.ConfigCmd)
}
