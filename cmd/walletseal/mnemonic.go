package main

import (
	"fmt"
	"strings"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/TheMichaelB/walletseal/internal/secrets"
)

var mnemonicCmd = &cobra.Command{
	Use:   "mnemonic",
	Short: "Generate a mnemonic and seal it as wallet secrets",
	Example: `  walletseal mnemonic --words 24 --mode password --out wallet.blob
  walletseal mnemonic --open --mode device --otp 123456 --in wallet.blob`,
	RunE: runMnemonic,
}

var (
	mnemonicFlags  cryptoFlags
	mnemonicWords  int
	mnemonicImport string
	mnemonicOpen   bool
)

func init() {
	rootCmd.AddCommand(mnemonicCmd)

	bindCryptoFlags(mnemonicCmd, &mnemonicFlags, "Hex-encode the blob")
	mnemonicCmd.Flags().IntVarP(&mnemonicWords, "words", "w", 24,
		"Number of words: 12, 15, 18, 21 or 24")
	mnemonicCmd.Flags().StringVar(&mnemonicImport, "import", "",
		"Seal this mnemonic instead of generating one")
	mnemonicCmd.Flags().BoolVar(&mnemonicOpen, "open", false,
		"Open a sealed mnemonic instead")
}

func runMnemonic(cmd *cobra.Command, args []string) error {
	if mnemonicOpen {
		return runMnemonicOpen()
	}

	mnemonic := mnemonicImport
	if mnemonic == "" {
		// 3 words per 32 bits of entropy
		if mnemonicWords%3 != 0 {
			return fmt.Errorf("invalid word count %d", mnemonicWords)
		}
		var err error
		mnemonic, err = secrets.GenerateMnemonic(mnemonicWords / 3 * 32)
		if err != nil {
			return err
		}
	}

	mode, password, err := resolveCredentials(&mnemonicFlags, true)
	if err != nil {
		return err
	}
	defer memguard.WipeBytes(password)

	blob, err := app.Vault.SealMnemonic(mode, password, mnemonic)
	if err != nil {
		return err
	}

	if mnemonicFlags.hex {
		blob = []byte(fmt.Sprintf("%x\n", blob))
	}
	if err := writeOutput(mnemonicFlags.out, blob, mnemonicFlags.force); err != nil {
		return err
	}

	if mnemonicImport == "" && mnemonicFlags.out != "-" {
		printWarning("Write down your recovery phrase:")
		fmt.Println(mnemonic)
	}
	return nil
}

func runMnemonicOpen() error {
	mode, password, err := resolveCredentials(&mnemonicFlags, false)
	if err != nil {
		return err
	}
	defer memguard.WipeBytes(password)

	blob, err := readInput(mnemonicFlags.in, mnemonicFlags.hex)
	if err != nil {
		return err
	}

	mnemonic, err := app.Vault.OpenMnemonic(mode, password, blob)
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"mnemonic": mnemonic,
			"words":    len(strings.Fields(mnemonic)),
		})
		return nil
	}
	out := []byte(mnemonic + "\n")
	defer memguard.WipeBytes(out)
	return writeOutput(mnemonicFlags.out, out, mnemonicFlags.force)
}
