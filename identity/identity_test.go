// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"bytes"
	"errors"
	"runtime"
	"testing"

	"github.com/haven-foundation/haven/lib/secret"
)

// testKDF keeps argon2id cheap in tests. Production uses the zero
// value's 64 MiB / 3-pass parameters.
var testKDF = KDFParams{Time: 1, Memory: 64, Threads: 1}

func deriveTest(t *testing.T, locator, password string) *Identity {
	t.Helper()
	passwordBuffer, err := secret.NewFromBytes([]byte(password))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	defer passwordBuffer.Close()

	id, err := Derive([]byte(locator), passwordBuffer, testKDF)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	t.Cleanup(func() { id.Close() })
	return id
}

func TestDerive_Deterministic(t *testing.T) {
	first := deriveTest(t, "alice", "correct horse")
	second := deriveTest(t, "alice", "correct horse")

	if !bytes.Equal(first.SignPublicKey(), second.SignPublicKey()) {
		t.Error("same credentials derived different signing keys")
	}
	if !bytes.Equal(first.EncryptPublicKey(), second.EncryptPublicKey()) {
		t.Error("same credentials derived different encryption keys")
	}
	if first.AccountAddress() != second.AccountAddress() {
		t.Error("same locator derived different account addresses")
	}
	if !first.PacketKey().Equal(second.PacketKey().Bytes()) {
		t.Error("same credentials derived different packet keys")
	}
}

func TestDerive_PasswordChangesKeys(t *testing.T) {
	right := deriveTest(t, "alice", "correct horse")
	wrong := deriveTest(t, "alice", "battery staple")

	// Same locator: same address (the packet is found either way)...
	if right.AccountAddress() != wrong.AccountAddress() {
		t.Error("password affected the account address")
	}
	// ...but different keys, so the packet will not decrypt.
	if right.PacketKey().Equal(wrong.PacketKey().Bytes()) {
		t.Error("different passwords derived the same packet key")
	}
	if bytes.Equal(right.SignPublicKey(), wrong.SignPublicKey()) {
		t.Error("different passwords derived the same signing key")
	}
}

func TestDerive_LocatorChangesAddress(t *testing.T) {
	alice := deriveTest(t, "alice", "pw")
	bob := deriveTest(t, "bob", "pw")
	if alice.AccountAddress() == bob.AccountAddress() {
		t.Error("different locators derived the same account address")
	}
}

func TestDerive_EmptyLocator(t *testing.T) {
	password, err := secret.NewFromBytes([]byte("pw"))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	defer password.Close()

	if _, err := Derive(nil, password, testKDF); err == nil {
		t.Fatal("expected error for empty locator")
	}
}

func TestSign_Verifies(t *testing.T) {
	id := deriveTest(t, "alice", "pw")

	message := []byte("revocation checkpoint")
	signature := id.Sign(message)
	if !id.Verify(message, signature) {
		t.Error("signature did not verify")
	}
	if id.Verify([]byte("other message"), signature) {
		t.Error("signature verified against different message")
	}
}

func TestSign_RepeatedSignatures(t *testing.T) {
	// Sign hands the runtime a fresh heap copy of the key on every
	// call; the guarded buffer must survive many signatures and
	// intervening collections unchanged.
	id := deriveTest(t, "alice", "pw")

	reference := id.Sign([]byte("checkpoint"))
	for i := 0; i < 16; i++ {
		runtime.GC()
		signature := id.Sign([]byte("checkpoint"))
		if !bytes.Equal(signature, reference) {
			t.Fatalf("signature %d diverged from the first", i)
		}
		if !id.Verify([]byte("checkpoint"), signature) {
			t.Fatalf("signature %d did not verify", i)
		}
	}
}

func TestSealForOwner_RoundTrip(t *testing.T) {
	id := deriveTest(t, "alice", "pw")

	plaintext := []byte("container key registry")
	box, err := id.SealForOwner(plaintext)
	if err != nil {
		t.Fatalf("SealForOwner: %v", err)
	}
	if bytes.Contains(box, plaintext) {
		t.Fatal("box contains plaintext")
	}

	opened, err := id.DecryptAsOwner(box)
	if err != nil {
		t.Fatalf("DecryptAsOwner: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Errorf("round trip mismatch: got %q", opened)
	}
}

func TestSealForOwner_CrossDerivation(t *testing.T) {
	// A box sealed in one session must open in a later session derived
	// from the same credentials — that is what makes the registry
	// recoverable on a new device.
	first := deriveTest(t, "alice", "pw")
	second := deriveTest(t, "alice", "pw")

	box, err := first.SealForOwner([]byte("registry"))
	if err != nil {
		t.Fatalf("SealForOwner: %v", err)
	}
	opened, err := second.DecryptAsOwner(box)
	if err != nil {
		t.Fatalf("DecryptAsOwner in second session: %v", err)
	}
	if !bytes.Equal(opened, []byte("registry")) {
		t.Errorf("got %q, want %q", opened, "registry")
	}
}

func TestDecryptAsOwner_WrongIdentity(t *testing.T) {
	alice := deriveTest(t, "alice", "pw")
	mallory := deriveTest(t, "mallory", "pw")

	box, err := alice.SealForOwner([]byte("secret"))
	if err != nil {
		t.Fatalf("SealForOwner: %v", err)
	}

	if _, err := mallory.DecryptAsOwner(box); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("DecryptAsOwner by wrong identity = %v, want ErrDecryptionFailed", err)
	}
}

func TestDecryptAsOwner_Tampered(t *testing.T) {
	id := deriveTest(t, "alice", "pw")

	box, err := id.SealForOwner([]byte("secret"))
	if err != nil {
		t.Fatalf("SealForOwner: %v", err)
	}
	box[len(box)-1] ^= 0x01

	if _, err := id.DecryptAsOwner(box); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("DecryptAsOwner of tampered box = %v, want ErrDecryptionFailed", err)
	}
}
