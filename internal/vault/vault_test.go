package vault

import "testing"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	v, err := New(key)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	plaintext := []byte("sk-very-secret-value")
	ciphertext, nonce, err := v.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if string(ciphertext) == string(plaintext) {
		t.Fatal("ciphertext must not equal plaintext")
	}

	decrypted, err := v.Decrypt(ciphertext, nonce)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(decrypted) != string(plaintext) {
		t.Fatalf("decrypted = %q, want %q", decrypted, plaintext)
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	key, _ := GenerateKey()
	v, _ := New(key)

	ciphertext, nonce, err := v.Encrypt([]byte("payload"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	ciphertext[0] ^= 0xFF

	if _, err := v.Decrypt(ciphertext, nonce); err == nil {
		t.Fatal("expected tampered ciphertext to fail decryption")
	}
}

func TestNewRejectsWrongSizeKey(t *testing.T) {
	if _, err := New("dG9vc2hvcnQ="); err == nil {
		t.Fatal("expected error for undersized key")
	}
}

func TestNewRejectsInvalidBase64(t *testing.T) {
	if _, err := New("not-valid-base64!!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
}

func TestEncryptProducesFreshNonce(t *testing.T) {
	key, _ := GenerateKey()
	v, _ := New(key)

	_, nonce1, _ := v.Encrypt([]byte("same plaintext"))
	_, nonce2, _ := v.Encrypt([]byte("same plaintext"))
	if string(nonce1) == string(nonce2) {
		t.Fatal("expected distinct nonces across calls")
	}
}
