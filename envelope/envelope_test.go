package envelope

import (
	"bytes"
	"errors"
	"testing"
)

func mustDEK(t *testing.T) (key, iv []byte) {
	t.Helper()
	key, iv, err := GenerateDEK()
	if err != nil {
		t.Fatalf("GenerateDEK failed: %v", err)
	}
	return key, iv
}

func TestGenerateDEKSizes(t *testing.T) {
	key, iv := mustDEK(t)
	if len(key) != KeySize {
		t.Fatalf("expected %d-byte key, got %d", KeySize, len(key))
	}
	if len(iv) != IVSize {
		t.Fatalf("expected %d-byte iv, got %d", IVSize, len(iv))
	}
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	kek, _ := mustDEK(t)
	dek, _ := mustDEK(t)

	wrapped, err := WrapKey(kek, dek)
	if err != nil {
		t.Fatalf("WrapKey failed: %v", err)
	}
	if bytes.Contains(wrapped, dek) {
		t.Fatal("wrapped blob contains plaintext dek")
	}

	got, err := UnwrapKey(kek, wrapped)
	if err != nil {
		t.Fatalf("UnwrapKey failed: %v", err)
	}
	if !bytes.Equal(got, dek) {
		t.Fatal("unwrapped dek does not match original")
	}
}

func TestWrapFreshIVPerCall(t *testing.T) {
	kek, _ := mustDEK(t)
	dek, _ := mustDEK(t)

	w1, err := WrapKey(kek, dek)
	if err != nil {
		t.Fatalf("WrapKey failed: %v", err)
	}
	w2, err := WrapKey(kek, dek)
	if err != nil {
		t.Fatalf("WrapKey failed: %v", err)
	}
	if bytes.Equal(w1, w2) {
		t.Fatal("two wraps of the same dek produced identical blobs")
	}
}

func TestUnwrapWrongKEK(t *testing.T) {
	kek, _ := mustDEK(t)
	other, _ := mustDEK(t)
	dek, _ := mustDEK(t)

	wrapped, err := WrapKey(kek, dek)
	if err != nil {
		t.Fatalf("WrapKey failed: %v", err)
	}

	if _, err := UnwrapKey(other, wrapped); !errors.Is(err, ErrKeyUnwrap) {
		t.Fatalf("expected ErrKeyUnwrap, got %v", err)
	}
}

func TestUnwrapTamperedBlob(t *testing.T) {
	kek, _ := mustDEK(t)
	dek, _ := mustDEK(t)

	wrapped, err := WrapKey(kek, dek)
	if err != nil {
		t.Fatalf("WrapKey failed: %v", err)
	}
	wrapped[len(wrapped)-1] ^= 0x01

	if _, err := UnwrapKey(kek, wrapped); !errors.Is(err, ErrKeyUnwrap) {
		t.Fatalf("expected ErrKeyUnwrap, got %v", err)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	dek, iv := mustDEK(t)
	plaintext := []byte("cvt_0123456789abcdefghijklmnopqrstuvwxyzABCDEF")

	ciphertext, err := Encrypt(dek, iv, plaintext)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if bytes.Equal(ciphertext, plaintext) {
		t.Fatal("ciphertext equals plaintext")
	}

	got, err := Decrypt(dek, iv, ciphertext)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatal("decrypted payload does not match original")
	}
}

func TestDecryptBitFlipIsIntegrityError(t *testing.T) {
	dek, iv := mustDEK(t)

	ciphertext, err := Encrypt(dek, iv, []byte("secret payload"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	ciphertext[0] ^= 0x01

	if _, err := Decrypt(dek, iv, ciphertext); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity, got %v", err)
	}
}

func TestEncryptRejectsBadArguments(t *testing.T) {
	dek, iv := mustDEK(t)

	if _, err := Encrypt(dek[:16], iv, []byte("x")); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("short key: expected ErrInvalidKey, got %v", err)
	}
	if _, err := Encrypt(dek, nil, []byte("x")); !errors.Is(err, ErrInvalidIV) {
		t.Fatalf("nil iv: expected ErrInvalidIV, got %v", err)
	}
	if _, err := Encrypt(dek, iv, nil); !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("empty payload: expected ErrEmptyPayload, got %v", err)
	}
	if _, err := Decrypt(dek, iv, nil); !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("empty ciphertext: expected ErrEmptyPayload, got %v", err)
	}
}

func TestVerificationHashSaltDependence(t *testing.T) {
	secret := []byte("the same literal secret")

	s1, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt failed: %v", err)
	}
	s2, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt failed: %v", err)
	}

	if bytes.Equal(VerificationHash(secret, s1), VerificationHash(secret, s2)) {
		t.Fatal("different salts produced identical verification hashes")
	}
	if !bytes.Equal(VerificationHash(secret, s1), VerificationHash(secret, s1)) {
		t.Fatal("same salt did not reproduce the verification hash")
	}
}

func TestLookupHashDeterminism(t *testing.T) {
	key, _ := mustDEK(t)
	secret := []byte("bearer secret")

	h1 := LookupHash(secret, key)
	h2 := LookupHash(secret, key)
	if !bytes.Equal(h1, h2) {
		t.Fatal("lookup hash is not deterministic for the same key")
	}

	other, _ := mustDEK(t)
	if bytes.Equal(h1, LookupHash(secret, other)) {
		t.Fatal("different lookup keys produced identical hashes")
	}
}

func TestDeriveFromPassword(t *testing.T) {
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt failed: %v", err)
	}

	k1 := DeriveFromPassword("hunter2", salt)
	k2 := DeriveFromPassword("hunter2", salt)
	if len(k1) != KeySize {
		t.Fatalf("expected %d-byte derived key, got %d", KeySize, len(k1))
	}
	if !bytes.Equal(k1, k2) {
		t.Fatal("derivation is not deterministic for the same salt")
	}

	other, _ := GenerateSalt()
	if bytes.Equal(k1, DeriveFromPassword("hunter2", other)) {
		t.Fatal("different salts produced identical derived keys")
	}
}

func TestConstantTimeEqual(t *testing.T) {
	if !ConstantTimeEqual([]byte{1, 2, 3}, []byte{1, 2, 3}) {
		t.Fatal("equal slices reported unequal")
	}
	if ConstantTimeEqual([]byte{1, 2, 3}, []byte{1, 2, 4}) {
		t.Fatal("unequal slices reported equal")
	}
	if ConstantTimeEqual([]byte{1, 2}, []byte{1, 2, 3}) {
		t.Fatal("different lengths reported equal")
	}
}
