package core

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerify(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("secret1")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	if hash == "secret1" || hash == "" {
		t.Fatalf("hash must not equal plaintext")
	}
	if !h.Verify("secret1", hash) {
		t.Fatalf("verify should accept the original password")
	}
	if h.Verify("secret2", hash) {
		t.Fatalf("verify should reject a different password")
	}
}

func TestHashIsSalted(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	first, err := h.Hash("secret1")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	second, err := h.Hash("secret1")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	if first == second {
		t.Fatalf("repeated hashing must produce distinct values")
	}
	if !h.Verify("secret1", first) || !h.Verify("secret1", second) {
		t.Fatalf("both hashes must verify the original password")
	}
}

func TestHasherCostFallback(t *testing.T) {
	h := NewBcryptHasher(999)
	hash, err := h.Hash("secret1")
	if err != nil {
		t.Fatalf("hash error with out-of-range cost: %v", err)
	}
	if !h.Verify("secret1", hash) {
		t.Fatalf("verify failed after cost fallback")
	}
}
