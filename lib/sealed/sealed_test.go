// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"strings"
	"testing"
)

func TestGenerateKeypair(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer keypair.Close()

	if !strings.HasPrefix(keypair.PublicKey, "age1") {
		t.Errorf("public key %q does not have age1 prefix", keypair.PublicKey)
	}
	if !strings.HasPrefix(keypair.PrivateKey.String(), "AGE-SECRET-KEY-1") {
		t.Error("private key does not have AGE-SECRET-KEY-1 prefix")
	}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer keypair.Close()

	containerKey := []byte("thirty-two-byte-container-key!!!")
	ciphertext, err := Encrypt(containerKey, []string{keypair.PublicKey})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Contains(ciphertext, containerKey) {
		t.Fatal("ciphertext contains plaintext")
	}

	plaintext, err := Decrypt(ciphertext, keypair.PrivateKey)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	defer plaintext.Close()

	if !plaintext.Equal(containerKey) {
		t.Errorf("round trip mismatch: got %q", plaintext.Bytes())
	}
}

func TestEncrypt_MultipleRecipients(t *testing.T) {
	appKeypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer appKeypair.Close()

	escrowKeypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer escrowKeypair.Close()

	ciphertext, err := Encrypt([]byte("shared-key"), []string{appKeypair.PublicKey, escrowKeypair.PublicKey})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	// Both the application and the escrow holder can unwrap.
	for name, keypair := range map[string]*Keypair{"app": appKeypair, "escrow": escrowKeypair} {
		plaintext, err := Decrypt(ciphertext, keypair.PrivateKey)
		if err != nil {
			t.Fatalf("Decrypt as %s: %v", name, err)
		}
		if !plaintext.Equal([]byte("shared-key")) {
			t.Errorf("%s decrypted wrong plaintext", name)
		}
		plaintext.Close()
	}
}

func TestDecrypt_WrongKeyFails(t *testing.T) {
	rightKeypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer rightKeypair.Close()

	wrongKeypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer wrongKeypair.Close()

	ciphertext, err := Encrypt([]byte("secret"), []string{rightKeypair.PublicKey})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if _, err := Decrypt(ciphertext, wrongKeypair.PrivateKey); err == nil {
		t.Fatal("Decrypt with non-recipient key succeeded")
	}
}

func TestEncrypt_NoRecipients(t *testing.T) {
	if _, err := Encrypt([]byte("x"), nil); err == nil {
		t.Fatal("expected error for zero recipients")
	}
}

func TestEncrypt_InvalidRecipient(t *testing.T) {
	if _, err := Encrypt([]byte("x"), []string{"not-an-age-key"}); err == nil {
		t.Fatal("expected error for malformed recipient key")
	}
}
