package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"tempnotes/pkg/config"
	"tempnotes/pkg/errors"
)

func (r *root) configFilePath() (string, error) {
	if r.configPath != "" {
		return r.configPath, nil
	}
	path, err := config.GetConfigFilePath()
	if err != nil {
		return "", errors.ErrConfigLoadFailed.WithCause(err)
	}
	return path, nil
}

func (r *root) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := r.configFilePath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return errors.New(errors.ErrTypeConfig, "CONFIG_EXISTS", "config file exists").
					WithUserMessage(fmt.Sprintf("%s already exists; use --force to overwrite", path))
			}
			if err := config.Default().Save(path); err != nil {
				return err
			}
			fmt.Fprintf(r.out, "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.AddCommand(initCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(r.configPath)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(r.out)
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return errors.ErrConfigLoadFailed.WithCause(err)
			}
			return enc.Close()
		},
	})

	return cmd
}
