// Package security holds the server's own keypair and credential-directory
// loading. It mirrors original_source/core/server/CoreServer.cpp's
// loadKeys()/m_sec_ctx: a single keypair is read once at startup and shared
// read-only with every socket constructor and the ZAP handler.
package security

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/curve25519"

	"github.com/computingfreak/DataFed/internal/z85"
)

const (
	pubKeyFile  = "sdms-core-key.pub"
	privKeyFile = "sdms-core-key.priv"
)

// Context is the server's security context: its own keypair, shared
// read-only with every socket constructor and the ZAP handler for bind.
// Equivalent to original_source's MsgComm::SecurityContext with
// is_server=true.
type Context struct {
	IsServer   bool
	PublicKey  string // Z85, 40 chars
	PrivateKey string // Z85, 40 chars
}

// LoadFromDir reads the two key files from credDir. Missing or unreadable
// files are fatal at startup.
func LoadFromDir(credDir string) (*Context, error) {
	pub, err := readKeyFile(filepath.Join(credDir, pubKeyFile))
	if err != nil {
		return nil, fmt.Errorf("reading public key file: %w", err)
	}
	priv, err := readKeyFile(filepath.Join(credDir, privKeyFile))
	if err != nil {
		return nil, fmt.Errorf("reading private key file: %w", err)
	}
	if len(pub) != z85.EncodedKeyLen {
		return nil, fmt.Errorf("public key file %s: expected %d chars, got %d", pubKeyFile, z85.EncodedKeyLen, len(pub))
	}
	if len(priv) != z85.EncodedKeyLen {
		return nil, fmt.Errorf("private key file %s: expected %d chars, got %d", privKeyFile, z85.EncodedKeyLen, len(priv))
	}
	return &Context{IsServer: true, PublicKey: pub, PrivateKey: priv}, nil
}

func readKeyFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// GenerateKeyPair generates a new Curve25519 keypair and returns it Z85
// encoded, for bootstrapping a credential directory (e.g. a `keygen`
// subcommand, or tests that need a self-consistent keypair without
// reading from disk).
func GenerateKeyPair() (pub, priv string, err error) {
	var sk [32]byte
	if _, err = rand.Read(sk[:]); err != nil {
		return "", "", fmt.Errorf("generating private key: %w", err)
	}
	pk, err := curve25519.X25519(sk[:], curve25519.Basepoint)
	if err != nil {
		return "", "", fmt.Errorf("deriving public key: %w", err)
	}
	pub, err = z85.EncodeKey(pk)
	if err != nil {
		return "", "", err
	}
	priv, err = z85.EncodeKey(sk[:])
	if err != nil {
		return "", "", err
	}
	return pub, priv, nil
}

// WriteKeyFiles writes the two key files into credDir, creating it if
// necessary. Used by bootstrap tooling and tests.
func WriteKeyFiles(credDir, pub, priv string) error {
	if err := os.MkdirAll(credDir, 0o700); err != nil {
		return fmt.Errorf("creating credential directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(credDir, pubKeyFile), []byte(pub+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing public key file: %w", err)
	}
	if err := os.WriteFile(filepath.Join(credDir, privKeyFile), []byte(priv+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing private key file: %w", err)
	}
	return nil
}
