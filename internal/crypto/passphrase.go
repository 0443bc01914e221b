package crypto

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

// DefaultPassphraseLength matches the random passwords kept in the iOS keychain.
const DefaultPassphraseLength = 28

const passphraseAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GeneratePassphrase returns a random alphanumeric passphrase.
func GeneratePassphrase(length int) ([]byte, error) {
	return generatePassphrase(rand.Reader, length)
}

func generatePassphrase(r io.Reader, length int) ([]byte, error) {
	if length <= 0 {
		return nil, fmt.Errorf("passphrase length must be positive, got %d", length)
	}

	max := big.NewInt(int64(len(passphraseAlphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(r, max)
		if err != nil {
			return nil, fmt.Errorf("generate passphrase: %w", err)
		}
		out[i] = passphraseAlphabet[n.Int64()]
	}

	return out, nil
}
