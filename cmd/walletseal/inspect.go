package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/walletseal/internal/crypto"
)

var inspectCmd = &cobra.Command{
	Use:         "inspect",
	Short:       "Show the framing of a sealed blob",
	Annotations: map[string]string{"keystore": "false"},
	RunE:        runInspect,
}

var (
	inspectIn  string
	inspectHex bool
)

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().StringVarP(&inspectIn, "in", "i", "-",
		"Blob file (- for stdin)")
	inspectCmd.Flags().BoolVar(&inspectHex, "hex", false,
		"Read a hex-encoded blob")
}

func runInspect(cmd *cobra.Command, args []string) error {
	data, err := readInput(inspectIn, inspectHex)
	if err != nil {
		return err
	}

	sb, err := crypto.Unpack(data)
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"length":           sb.Len(),
			"nonce":            hex.EncodeToString(sb.Nonce),
			"nonce_length":     len(sb.Nonce),
			"ciphertext_bytes": len(sb.Ciphertext),
			"plaintext_bytes":  sb.PlaintextLen(),
		})
		return nil
	}

	fmt.Printf("Blob:       %d bytes\n", sb.Len())
	fmt.Printf("Nonce:      %s (%d bytes)\n", hex.EncodeToString(sb.Nonce), len(sb.Nonce))
	fmt.Printf("Ciphertext: %d bytes (tag included)\n", len(sb.Ciphertext))
	fmt.Printf("Plaintext:  %d bytes\n", sb.PlaintextLen())
	return nil
}
