package cryptoutil

import "testing"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	secret := "sk-ant-REDACTED"
	enc, err := EncryptSecret(secret)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if enc == secret {
		t.Fatalf("ciphertext equals plaintext")
	}
	dec, err := DecryptSecret(enc)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if dec != secret {
		t.Fatalf("got %q, want %q", dec, secret)
	}
}

func TestEncryptNonceVaries(t *testing.T) {
	a, err := EncryptSecret("same-plaintext")
	if err != nil {
		t.Fatalf("encrypt a: %v", err)
	}
	b, err := EncryptSecret("same-plaintext")
	if err != nil {
		t.Fatalf("encrypt b: %v", err)
	}
	if a == b {
		t.Fatalf("two encryptions of the same plaintext produced identical ciphertext; nonce reuse")
	}
}

func TestHashSchemaKeyStable(t *testing.T) {
	h1 := HashSchemaKey([]byte(`{"type":"string"}`))
	h2 := HashSchemaKey([]byte(`{"type":"string"}`))
	h3 := HashSchemaKey([]byte(`{"type":"number"}`))
	if h1 != h2 {
		t.Fatalf("identical input produced different hashes: %s vs %s", h1, h2)
	}
	if h1 == h3 {
		t.Fatalf("different input produced identical hashes")
	}
	if len(h1) != 16 {
		t.Fatalf("expected 16 hex chars, got %d", len(h1))
	}
}

func TestNewToolUseIDShape(t *testing.T) {
	id := NewToolUseID("shell")
	if len(id) < len("shell-")+8 {
		t.Fatalf("unexpected tool use id shape: %s", id)
	}
}
