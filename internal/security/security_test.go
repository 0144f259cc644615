package security

import (
	"path/filepath"
	"testing"

	"github.com/computingfreak/DataFed/internal/z85"
)

func TestGenerateKeyPairRoundTrip(t *testing.T) {
	pub, priv, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	if len(pub) != z85.EncodedKeyLen || len(priv) != z85.EncodedKeyLen {
		t.Fatalf("expected %d-char keys, got pub=%d priv=%d", z85.EncodedKeyLen, len(pub), len(priv))
	}
	if _, err := z85.DecodeKey(pub); err != nil {
		t.Fatalf("public key not valid z85: %v", err)
	}
	if _, err := z85.DecodeKey(priv); err != nil {
		t.Fatalf("private key not valid z85: %v", err)
	}
}

func TestWriteAndLoadKeyFiles(t *testing.T) {
	dir := t.TempDir()
	pub, priv, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	if err := WriteKeyFiles(dir, pub, priv); err != nil {
		t.Fatalf("WriteKeyFiles: %v", err)
	}

	ctx, err := LoadFromDir(dir)
	if err != nil {
		t.Fatalf("LoadFromDir: %v", err)
	}
	if ctx.PublicKey != pub || ctx.PrivateKey != priv {
		t.Fatalf("loaded keys do not match written keys")
	}
	if !ctx.IsServer {
		t.Fatal("expected IsServer true")
	}
}

func TestLoadFromDirMissing(t *testing.T) {
	if _, err := LoadFromDir(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing credential directory")
	}
}
