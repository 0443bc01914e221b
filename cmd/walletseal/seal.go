package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/TheMichaelB/walletseal/internal/events"
	"github.com/TheMichaelB/walletseal/internal/models"
	"github.com/TheMichaelB/walletseal/internal/storage"
)

var sealCmd = &cobra.Command{
	Use:   "seal",
	Short: "Encrypt a secret into a blob",
	Long: `Seal encrypts the input under a password or the device key and
writes the resulting blob.`,
	Example: `  walletseal seal --mode password --in secret.json --out secret.blob
  echo -n '{"mnemonic":"..."}' | walletseal seal --mode device --otp 123456 --hex`,
	RunE: runSeal,
}

var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Decrypt a blob",
	Example: `  walletseal open --mode password --in secret.blob
  walletseal open --mode device --otp 123456 --in secret.blob --hex`,
	RunE: runOpen,
}

// Flags shared by seal and open.
type cryptoFlags struct {
	mode     string
	in       string
	out      string
	password string
	otp      string
	hex      bool
	force    bool
}

var (
	sealFlags cryptoFlags
	openFlags cryptoFlags
)

func init() {
	rootCmd.AddCommand(sealCmd)
	rootCmd.AddCommand(openCmd)

	bindCryptoFlags(sealCmd, &sealFlags, "Write the blob hex-encoded")
	bindCryptoFlags(openCmd, &openFlags, "Read a hex-encoded blob")
}

func bindCryptoFlags(cmd *cobra.Command, f *cryptoFlags, hexUsage string) {
	cmd.Flags().StringVarP(&f.mode, "mode", "m", "password",
		"Encryption mode: password or device")
	cmd.Flags().StringVarP(&f.in, "in", "i", "-",
		"Input file (- for stdin)")
	cmd.Flags().StringVarP(&f.out, "out", "o", "-",
		"Output file (- for stdout)")
	cmd.Flags().StringVarP(&f.password, "password", "p", "",
		"Password (will prompt if not provided)")
	cmd.Flags().StringVar(&f.otp, "otp", "",
		"TOTP code unlocking the device key")
	cmd.Flags().BoolVar(&f.hex, "hex", false, hexUsage)
	cmd.Flags().BoolVarP(&f.force, "force", "f", false,
		"Overwrite an existing output file")
}

func runSeal(cmd *cobra.Command, args []string) error {
	ctx := events.WithOperation(contextOf(cmd), "seal")
	log := events.FromContext(ctx)

	mode, password, err := resolveCredentials(&sealFlags, true)
	if err != nil {
		return err
	}
	defer memguard.WipeBytes(password)

	plaintext, err := readInput(sealFlags.in, false)
	if err != nil {
		return err
	}
	defer memguard.WipeBytes(plaintext)

	blob, err := app.Manager.Encrypt(mode, password, plaintext)
	if err != nil {
		return err
	}

	out := blob
	if sealFlags.hex {
		out = []byte(hex.EncodeToString(blob) + "\n")
	}
	if err := writeOutput(sealFlags.out, out, sealFlags.force); err != nil {
		return err
	}

	log.WithField("bytes", len(blob)).Debug("Blob written")
	if jsonOutput {
		printJSON(map[string]interface{}{
			"success": true,
			"mode":    mode.String(),
			"bytes":   len(blob),
		})
	} else if sealFlags.out != "-" {
		printSuccess("Sealed %d bytes with %s mode into %s", len(plaintext), mode, sealFlags.out)
	}
	return nil
}

func runOpen(cmd *cobra.Command, args []string) error {
	ctx := events.WithOperation(contextOf(cmd), "open")
	log := events.FromContext(ctx)

	mode, password, err := resolveCredentials(&openFlags, false)
	if err != nil {
		return err
	}
	defer memguard.WipeBytes(password)

	blob, err := readInput(openFlags.in, openFlags.hex)
	if err != nil {
		return err
	}

	plaintext, err := app.Manager.Decrypt(mode, password, blob)
	defer memguard.WipeBytes(plaintext)
	if err != nil {
		if kind := models.KindOf(err); kind == models.KindNoDeviceKey {
			printWarning("No device key is enrolled; blobs sealed under a reset key cannot be recovered")
		}
		return err
	}

	log.WithField("bytes", len(plaintext)).Debug("Blob opened")
	return writeOutput(openFlags.out, plaintext, openFlags.force)
}

// resolveCredentials parses the mode and gathers the password or opens the
// device auth window. The returned password is a fresh buffer the caller
// must wipe.
func resolveCredentials(f *cryptoFlags, confirm bool) (models.EncryptionType, []byte, error) {
	mode, err := models.ParseEncryptionType(f.mode)
	if err != nil {
		return mode, nil, err
	}

	switch mode {
	case models.EncryptionTypeDevice:
		if err := app.Authenticate(f.otp); err != nil {
			return mode, nil, err
		}
		return mode, nil, nil
	default:
		if f.password != "" {
			return mode, []byte(f.password), nil
		}
		password, err := promptPassword("Password: ")
		if err != nil {
			return mode, nil, fmt.Errorf("read password: %w", err)
		}
		if confirm {
			again, err := promptPassword("Confirm password: ")
			defer memguard.WipeBytes(again)
			if err != nil {
				memguard.WipeBytes(password)
				return mode, nil, fmt.Errorf("read password: %w", err)
			}
			if !bytes.Equal(again, password) {
				memguard.WipeBytes(password)
				return mode, nil, fmt.Errorf("passwords do not match")
			}
		}
		return mode, password, nil
	}
}

func promptPassword(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("stdin is not a terminal; pass --password")
	}

	fmt.Fprint(os.Stderr, prompt)

	// Read password without echo
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr) // New line after password

	if err != nil {
		return nil, err
	}
	return password, nil
}

func readInput(path string, hexEncoded bool) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" || path == "" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	if !hexEncoded {
		return data, nil
	}
	decoded, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decode hex input: %w", err)
	}
	return decoded, nil
}

func writeOutput(path string, data []byte, overwrite bool) error {
	if path == "-" || path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}

	strategy := storage.ConflictError
	if overwrite {
		strategy = storage.ConflictOverwrite
	}
	if err := storage.WriteFile(path, data, 0600, strategy); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
