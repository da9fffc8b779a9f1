package crypto

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashToken(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"generated", strings.Repeat("ab", TokenBytes)},
		{"short", "t0k3n"},
		{"near limit", strings.Repeat("a", 70)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashToken(tt.token, bcrypt.MinCost)
			if err != nil {
				t.Fatalf("HashToken failed: %v", err)
			}
			if !strings.HasPrefix(hash, "$2a$") && !strings.HasPrefix(hash, "$2b$") {
				t.Errorf("Hash should start with bcrypt prefix, got: %s", hash)
			}
			if err := VerifyToken(tt.token, hash); err != nil {
				t.Errorf("VerifyToken failed: %v", err)
			}
		})
	}
}

func TestHashTokenErrors(t *testing.T) {
	if _, err := HashToken("", bcrypt.MinCost); err != ErrEmptyToken {
		t.Errorf("empty: got %v, want %v", err, ErrEmptyToken)
	}
	if _, err := HashToken(strings.Repeat("a", 73), bcrypt.MinCost); err != ErrTokenTooLong {
		t.Errorf("too long: got %v, want %v", err, ErrTokenTooLong)
	}
}

func TestHashTokenCostClamped(t *testing.T) {
	hash, err := HashToken("token", 1)
	if err != nil {
		t.Fatalf("HashToken failed: %v", err)
	}
	cost, _ := GetHashCost(hash)
	if cost != bcrypt.MinCost {
		t.Errorf("cost = %d, want %d", cost, bcrypt.MinCost)
	}
}

func TestHashTokenSalted(t *testing.T) {
	h1, _ := HashToken("same", bcrypt.MinCost)
	h2, _ := HashToken("same", bcrypt.MinCost)
	if h1 == h2 {
		t.Error("two hashes of the same token must differ")
	}
}

func TestVerifyToken(t *testing.T) {
	hash, _ := HashToken("right", bcrypt.MinCost)

	tests := []struct {
		name  string
		token string
		hash  string
		want  error
	}{
		{"match", "right", hash, nil},
		{"mismatch", "wrong", hash, ErrTokenMismatch},
		{"empty token", "", hash, ErrEmptyToken},
		{"empty hash", "right", "", ErrInvalidHash},
		{"garbage hash", "right", "not-a-hash", ErrInvalidHash},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := VerifyToken(tt.token, tt.hash); err != tt.want {
				t.Errorf("VerifyToken() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	b, _ := GenerateToken()

	if len(a) != TokenBytes*2 {
		t.Errorf("len = %d, want %d", len(a), TokenBytes*2)
	}
	if a == b {
		t.Error("tokens must be unique")
	}
	if len(a) > MaxTokenLength {
		t.Error("generated token exceeds bcrypt limit")
	}
}

func TestGetHashCostAndRehash(t *testing.T) {
	hash, _ := HashToken("x", bcrypt.MinCost)

	cost, err := GetHashCost(hash)
	if err != nil || cost != bcrypt.MinCost {
		t.Errorf("GetHashCost() = %d, %v", cost, err)
	}
	if _, err := GetHashCost(""); !errors.Is(err, ErrInvalidHash) {
		t.Errorf("empty hash: %v", err)
	}

	if !NeedsRehash(hash, DefaultCost) {
		t.Error("MinCost hash should need rehash at DefaultCost")
	}
	if NeedsRehash(hash, bcrypt.MinCost) {
		t.Error("hash at desired cost should not need rehash")
	}
	if !NeedsRehash("garbage", bcrypt.MinCost) {
		t.Error("unreadable hash should need rehash")
	}
}

func BenchmarkVerifyToken(b *testing.B) {
	hash, _ := HashToken("bench-token", bcrypt.MinCost)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		VerifyToken("bench-token", hash)
	}
}
