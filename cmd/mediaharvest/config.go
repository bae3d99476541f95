package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mediaharvest/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and initialize configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with the default settings",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := filepath.Join(os.Getenv("HOME"), ".mediaharvest.yaml")
		if len(args) > 0 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s", path)
		}

		if err := config.DefaultConfig().Save(path); err != nil {
			return err
		}
		fmt.Printf("Config written to %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile, map[string]interface{}{
			"log-level": logLevel,
		})
		if err != nil {
			return err
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}
