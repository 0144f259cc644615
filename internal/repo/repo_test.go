package repo

import (
	"strings"
	"testing"
)

func validDescriptor(id string) Descriptor {
	return Descriptor{
		ID:        id,
		Address:   "tcp://repo.example.org:9000",
		PublicKey: strings.Repeat("a", 40),
		Endpoint:  "12345678-1234-1234-1234-123456789012",
		Path:      "/mnt/" + id,
	}
}

func TestValidateAccepts(t *testing.T) {
	if err := Validate(validDescriptor("repo/foo")); err != nil {
		t.Fatalf("expected valid descriptor to pass, got %v", err)
	}
}

func TestValidatePublicKeyLength(t *testing.T) {
	for _, n := range []int{39, 41} {
		d := validDescriptor("repo/foo")
		d.PublicKey = strings.Repeat("a", n)
		if err := Validate(d); err == nil {
			t.Errorf("expected error for public_key length %d", n)
		}
	}
}

func TestValidateEndpointLength(t *testing.T) {
	d := validDescriptor("repo/foo")
	d.Endpoint = "too-short"
	if err := Validate(d); err == nil {
		t.Error("expected error for short endpoint")
	}
}

func TestValidateAddressPrefix(t *testing.T) {
	d := validDescriptor("repo/foo")
	d.Address = "http://repo.example.org"
	if err := Validate(d); err == nil {
		t.Error("expected error for non-tcp:// address")
	}
}

func TestValidatePathPrefix(t *testing.T) {
	d := validDescriptor("repo/foo")
	d.Path = "mnt/foo"
	if err := Validate(d); err == nil {
		t.Error("expected error for path not starting with /")
	}
}

// TestStartupWithOneInvalidRepo verifies that loading two candidates,
// one invalid by public_key length, results in exactly one indexed repo
// and one auth table entry.
func TestStartupWithOneInvalidRepo(t *testing.T) {
	a := validDescriptor("repo/a")
	b := validDescriptor("repo/b")
	b.PublicKey = strings.Repeat("b", 39)

	reg := NewRegistry()
	errs := reg.Load([]Descriptor{a, b})

	if len(errs) != 1 {
		t.Fatalf("expected 1 validation error, got %d", len(errs))
	}
	if reg.Len() != 1 {
		t.Fatalf("expected repo map size 1, got %d", reg.Len())
	}
	if reg.AuthTableLen() != 1 {
		t.Fatalf("expected auth table size 1, got %d", reg.AuthTableLen())
	}
	if _, ok := reg.Get("repo/a"); !ok {
		t.Error("expected repo/a present")
	}
	if _, ok := reg.Get("repo/b"); ok {
		t.Error("expected repo/b absent")
	}
	if identity, ok := reg.ResolveAuth(a.PublicKey); !ok || identity != "repo/a" {
		t.Errorf("expected auth lookup to resolve repo/a, got %q ok=%v", identity, ok)
	}
}

func TestResolveAuthUnknown(t *testing.T) {
	reg := NewRegistry()
	reg.Load([]Descriptor{validDescriptor("repo/a")})

	if _, ok := reg.ResolveAuth(strings.Repeat("z", 40)); ok {
		t.Error("expected unknown public key to miss")
	}
}

func TestLoadReplacesSnapshot(t *testing.T) {
	reg := NewRegistry()
	reg.Load([]Descriptor{validDescriptor("repo/a")})
	reg.Load([]Descriptor{validDescriptor("repo/b")})

	if reg.Len() != 1 {
		t.Fatalf("expected registry to contain only the latest load, got %d", reg.Len())
	}
	if _, ok := reg.Get("repo/a"); ok {
		t.Error("expected repo/a to be gone after reload")
	}
	if _, ok := reg.Get("repo/b"); !ok {
		t.Error("expected repo/b present after reload")
	}
}

func TestList(t *testing.T) {
	reg := NewRegistry()
	reg.Load([]Descriptor{validDescriptor("repo/a"), validDescriptor("repo/c")})

	if got := len(reg.List()); got != 2 {
		t.Fatalf("expected 2 descriptors, got %d", got)
	}
}
