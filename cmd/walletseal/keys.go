package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/walletseal/internal/config"
	"github.com/TheMichaelB/walletseal/internal/keystore"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the device key",
	Long: `Reset deletes the device key. Every blob sealed in device mode
becomes unrecoverable. A new key is created on the next device seal.`,
	RunE: runReset,
}

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Generate a TOTP secret that unlocks the device key",
	Long: `Enroll prints a new TOTP secret and its otpauth URL. Add the secret
to your authenticator app and set it as auth.totp_secret in the config.`,
	Annotations: map[string]string{"keystore": "false"},
	RunE:        runEnroll,
}

var configCmd = &cobra.Command{
	Use:   "config <path>",
	Short: "Write an example config file",
	Args:  cobra.ExactArgs(1),
	// Runs before any config exists
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SaveExample(args[0]); err != nil {
			return err
		}
		printSuccess("Example config written to %s", args[0])
		return nil
	},
}

var resetYes bool

func init() {
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(enrollCmd)
	rootCmd.AddCommand(configCmd)

	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false,
		"Do not ask for confirmation")
}

func runReset(cmd *cobra.Command, args []string) error {
	if !resetYes {
		return fmt.Errorf("reset destroys the device key; rerun with --yes to confirm")
	}

	app.Manager.ResetDeviceKey()

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "alias": app.Provider.Alias()})
	} else {
		printSuccess("Device key %s deleted", app.Provider.Alias())
	}
	return nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	key, err := keystore.EnrollTOTP(cfg.Auth.Issuer, cfg.Auth.Account, cfg.Auth.Period)
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"secret": key.Secret(),
			"url":    key.URL(),
		})
		return nil
	}

	printInfo("Secret: %s", key.Secret())
	printInfo("URL:    %s", key.URL())
	printWarning("Store the secret as auth.totp_secret (or WALLETSEAL_AUTH_TOTP_SECRET)")
	return nil
}
