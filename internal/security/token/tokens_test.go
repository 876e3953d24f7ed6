package tokens

import "testing"

func TestGenerateOpaqueToken_Unique(t *testing.T) {
	// dos generaciones nunca colisionan (256 bits de entropía)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		v, err := GenerateOpaqueToken(DefaultSecretBytes)
		if err != nil {
			t.Fatalf("GenerateOpaqueToken failed: %v", err)
		}
		if v == "" {
			t.Fatal("expected non-empty token")
		}
		if seen[v] {
			t.Fatalf("duplicate token generated: %s", v)
		}
		seen[v] = true
	}
}

func TestGenerateOpaqueToken_DefaultSize(t *testing.T) {
	// nBytes <= 0 cae al default
	v, err := GenerateOpaqueToken(0)
	if err != nil {
		t.Fatalf("GenerateOpaqueToken failed: %v", err)
	}
	// 32 bytes en base64url sin padding = 43 chars
	if len(v) != 43 {
		t.Fatalf("expected 43 chars, got %d", len(v))
	}
}

func TestHash_Deterministic(t *testing.T) {
	a := Hash("secreto")
	b := Hash("secreto")
	if a != b {
		t.Fatalf("hash must be deterministic: %s != %s", a, b)
	}
	if a == Hash("otro") {
		t.Fatal("distinct inputs must not collide")
	}
	if a == "secreto" {
		t.Fatal("hash must not be the plaintext")
	}
}

func TestMatches(t *testing.T) {
	h := Hash("valor-presentado")
	if !Matches("valor-presentado", h) {
		t.Fatal("expected match for the original value")
	}
	if Matches("valor-distinto", h) {
		t.Fatal("expected mismatch for a different value")
	}
}
