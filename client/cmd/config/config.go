package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/processone/fluux-messenger-sub003/client/utils"
)

var overwrite bool

var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Performs a configuration operation",
}

var printConfigCmd = &cobra.Command{
	Use:   "print",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := utils.LoadClientConfig(cmd.Flag("config").Value.String())
		if err != nil {
			return err
		}

		data, err := yaml.Marshal(config)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var createDefaultConfigCmd = &cobra.Command{
	Use:   "create-default",
	Short: "Create a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cmd.Flag("config").Value.String()
		if _, err := utils.CreateDefaultConfig(path, overwrite); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created default config: %s\n", path)
		return nil
	},
}

func init() {
	createDefaultConfigCmd.Flags().BoolVar(
		&overwrite,
		"overwrite",
		false,
		"replace an existing configuration file",
	)

	ConfigCmd.AddCommand(printConfigCmd)
	ConfigCmd.AddCommand(createDefaultConfigCmd)
}
