package adb

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

const (
	publicKeySuffix  = ".pub"
	generatedKeyBits = 2048
)

// LoadCredentials reads the key pair rooted at path. The private key must
// be readable; the public key (path + ".pub") is optional and left nil when
// it cannot be read.
func LoadCredentials(path string) (*Credentials, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}

	creds := &Credentials{Key: key}
	if pub, err := os.ReadFile(path + publicKeySuffix); err == nil {
		creds.PublicKey = pub
	}
	return creds, nil
}

// EnsureCredentials loads the key pair at path, generating and persisting a
// fresh pair when the private key cannot be read.
func EnsureCredentials(path string) (*Credentials, error) {
	creds, err := LoadCredentials(path)
	if err == nil {
		return creds, nil
	}

	if err := GenerateKeyPair(path); err != nil {
		return nil, fmt.Errorf("generate key pair: %w", err)
	}
	return LoadCredentials(path)
}

// GenerateKeyPair writes a new PEM-encoded RSA key pair to path and
// path + ".pub". The private key file is created with owner-only
// permissions.
func GenerateKeyPair(path string) error {
	key, err := rsa.GenerateKey(rand.Reader, generatedKeyBits)
	if err != nil {
		return fmt.Errorf("generate RSA key: %w", err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	if err := os.WriteFile(path, privPEM, 0600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}

	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return fmt.Errorf("marshal public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubBytes,
	})
	if err := os.WriteFile(path+publicKeySuffix, pubPEM, 0644); err != nil {
		return fmt.Errorf("write public key: %w", err)
	}

	return nil
}
