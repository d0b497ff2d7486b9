package cmd

import (
	"fmt"

	"github.com/MeKo-Tech/yoloaug/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCommand(a *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Create, inspect and check configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		Annotations: map[string]string{annotationConfig: configSkip},
	}

	initCmd := &cobra.Command{
		Use:         "init [file]",
		Short:       "Write the default configuration to a file",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{annotationConfig: configSkip},
		RunE: func(cmd *cobra.Command, args []string) error {
			file := config.ConfigFileName + ".yaml"
			if len(args) == 1 {
				file = args[0]
			}
			if err := config.GenerateDefaultConfigFile(file); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", file)
			return err
		},
	}

	showCmd := &cobra.Command{
		Use:         "show",
		Short:       "Print the resolved configuration as YAML",
		Long:        "Print the configuration after merging defaults, the config file and YOLOAUG_ environment variables.",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationConfig: configRaw},
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := yaml.Marshal(a.cfg)
			if err != nil {
				return fmt.Errorf("marshal configuration: %w", err)
			}
			if used := a.loader.ConfigFileUsed(); used != "" {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "# source: %s\n", used); err != nil {
					return err
				}
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the resolved configuration without touching the dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
			return err
		},
	}

	configCmd.AddCommand(initCmd, showCmd, validateCmd)
	return configCmd
}
