// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"bytes"
	"crypto/rand"
	"math/big"
	"testing"
)

func TestRSAEncryptDecryptRoundTrip(t *testing.T) {
	key, err := GenerateRSAKeyPair(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateRSAKeyPair() failed: %v", err)
	}
	pub, err := NewRSAPublicKey(key.N.Bytes(), big2Bytes(key.E))
	if err != nil {
		t.Fatalf("NewRSAPublicKey() failed: %v", err)
	}
	priv, err := NewRSAPrivateKey(key.N.Bytes(), big2Bytes(key.E), key.D.Bytes(), key.Primes[0].Bytes(), key.Primes[1].Bytes())
	if err != nil {
		t.Fatalf("NewRSAPrivateKey() failed: %v", err)
	}

	cipher, err := pub.Encrypt(rand.Reader, []byte("hello"))
	if err != nil {
		t.Fatalf("Encrypt() failed: %v", err)
	}
	if len(cipher) != pub.ModulusLen() {
		t.Fatalf("cipher length = %d, want %d", len(cipher), pub.ModulusLen())
	}
	plain, err := priv.Decrypt(rand.Reader, cipher)
	if err != nil {
		t.Fatalf("Decrypt() failed: %v", err)
	}
	if !bytes.Equal(plain, []byte("hello")) {
		t.Fatalf("Decrypt() = %q, want %q", plain, "hello")
	}
}

func TestRSASignVerifyDigestFlipsToInvalid(t *testing.T) {
	key, err := GenerateRSAKeyPair(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateRSAKeyPair() failed: %v", err)
	}
	pub, _ := NewRSAPublicKey(key.N.Bytes(), big2Bytes(key.E))
	priv, _ := NewRSAPrivateKey(key.N.Bytes(), big2Bytes(key.E), key.D.Bytes(), key.Primes[0].Bytes(), key.Primes[1].Bytes())

	digest := make([]byte, 32)
	rand.Read(digest)
	sig, err := priv.SignDigest(rand.Reader, SHA256, digest)
	if err != nil {
		t.Fatalf("SignDigest() failed: %v", err)
	}
	if err := pub.VerifyDigest(SHA256, digest, sig); err != nil {
		t.Fatalf("VerifyDigest() failed: %v", err)
	}
	sig[len(sig)-1] ^= 0xff
	if err := pub.VerifyDigest(SHA256, digest, sig); err == nil {
		t.Fatal("expected VerifyDigest() to fail after flipping signature byte")
	}
}

func TestX25519KeyPairSizes(t *testing.T) {
	priv, pub, err := GenerateX25519KeyPair(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateX25519KeyPair() failed: %v", err)
	}
	if len(priv) != 32 || len(pub) != 32 {
		t.Fatalf("got priv=%d pub=%d, want 32/32", len(priv), len(pub))
	}
}

func TestX448KeyPairSizes(t *testing.T) {
	priv, pub, err := GenerateX448KeyPair(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateX448KeyPair() failed: %v", err)
	}
	if len(priv) != 56 || len(pub) != 56 {
		t.Fatalf("got priv=%d pub=%d, want 56/56", len(priv), len(pub))
	}
}

func big2Bytes(e int) []byte {
	return big.NewInt(int64(e)).Bytes()
}
