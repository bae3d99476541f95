package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mediaharvest/pkg/auth"
	"mediaharvest/pkg/config"
	"mediaharvest/pkg/frontier"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage site login credentials",
	Long: `Manage login credentials for sites that need authentication.

Credentials are kept in the system keychain when available, falling
back to an encrypted file and finally to environment variables. Stored
logins let the browser establish a session once and reuse it across
runs.`,
}

var authAddCmd = &cobra.Command{
	Use:   "add <domain>",
	Short: "Store login credentials and form selectors for a domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		domain, err := frontier.Domain("https://" + args[0])
		if err != nil {
			domain = args[0]
		}

		creds, err := auth.PromptCredentials(domain)
		if err != nil {
			return err
		}

		manager, err := auth.NewManager()
		if err != nil {
			return err
		}
		if err := manager.Store(creds); err != nil {
			return err
		}
		fmt.Printf("Credentials stored for %s\n", domain)
		return nil
	},
}

var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List domains with stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Include what a run would see: config-file credentials too.
		var authConfigFile string
		if cfg, err := config.Load(configFile, nil); err == nil {
			authConfigFile = cfg.Auth.ConfigFile
		}
		manager, err := auth.NewManagerWithConfigFile(authConfigFile)
		if err != nil {
			return err
		}
		all, err := manager.List()
		if err != nil {
			return err
		}
		if len(all) == 0 {
			fmt.Println("No stored credentials.")
			return nil
		}
		for _, creds := range all {
			safe := auth.SanitizeCredentials(creds)
			fmt.Printf("%s\t%s\t%s\n", safe.Domain, safe.Username, safe.Password)
		}
		return nil
	},
}

var authRemoveCmd = &cobra.Command{
	Use:   "remove <domain>",
	Short: "Delete stored credentials for a domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, err := auth.NewManager()
		if err != nil {
			return err
		}
		if err := manager.Delete(args[0]); err != nil {
			return err
		}
		fmt.Printf("Credentials removed for %s\n", args[0])
		return nil
	},
}

var authGuideCmd = &cobra.Command{
	Use:   "guide",
	Short: "Show the login setup guide",
	Run: func(cmd *cobra.Command, args []string) {
		auth.ShowLoginSetupGuide()
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authAddCmd)
	authCmd.AddCommand(authListCmd)
	authCmd.AddCommand(authRemoveCmd)
	authCmd.AddCommand(authGuideCmd)
}
