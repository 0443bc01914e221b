package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EncryptionType records how a wallet's secrets were sealed.
// The numeric values are persisted in wallet configs and must not change.
type EncryptionType int

const (
	EncryptionTypeUnknown  EncryptionType = 0
	EncryptionTypePassword EncryptionType = 1
	EncryptionTypeDevice   EncryptionType = 2
)

func (t EncryptionType) String() string {
	switch t {
	case EncryptionTypePassword:
		return "password"
	case EncryptionTypeDevice:
		return "device"
	default:
		return "unknown"
	}
}

// Valid reports whether t is a known sealing mode.
func (t EncryptionType) Valid() bool {
	return t == EncryptionTypePassword || t == EncryptionTypeDevice
}

// ParseEncryptionType maps a CLI or config name to an EncryptionType.
func ParseEncryptionType(s string) (EncryptionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "password", "1":
		return EncryptionTypePassword, nil
	case "device", "devicekey", "2":
		return EncryptionTypeDevice, nil
	default:
		return EncryptionTypeUnknown, fmt.Errorf("unknown encryption type %q", s)
	}
}

// WalletSecrets is the plaintext payload sealed for a wallet.
type WalletSecrets struct {
	Mnemonic string `json:"mnemonic"`
}

// Marshal encodes the secrets in their stored JSON form.
func (w WalletSecrets) Marshal() ([]byte, error) {
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("marshal wallet secrets: %w", err)
	}
	return data, nil
}

// ParseWalletSecrets decodes a decrypted payload.
func ParseWalletSecrets(data []byte) (*WalletSecrets, error) {
	var w WalletSecrets
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parse wallet secrets: %w", err)
	}
	if w.Mnemonic == "" {
		return nil, fmt.Errorf("parse wallet secrets: missing mnemonic")
	}
	return &w, nil
}
