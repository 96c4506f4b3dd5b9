package wallet

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Wallet is a hex private key and its account address.
type Wallet struct {
	PrivateKey string
	Address    string
}

// GenerateWallet creates a fresh secp256k1 key.
func GenerateWallet() (*Wallet, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}

	return &Wallet{
		PrivateKey: hex.EncodeToString(crypto.FromECDSA(privateKey)),
		Address:    crypto.PubkeyToAddress(privateKey.PublicKey).Hex(),
	}, nil
}

// GetAddressFromPrivKey parses a hex key, with or without 0x, and derives its address.
func GetAddressFromPrivKey(privKeyHex string) (common.Address, *ecdsa.PrivateKey, error) {
	privBytes, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(privKeyHex), "0x"))
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("failed to decode private key hex: %v", err)
	}

	privKey, err := crypto.ToECDSA(privBytes)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("failed to convert to ECDSA: %v", err)
	}

	return crypto.PubkeyToAddress(privKey.PublicKey), privKey, nil
}
