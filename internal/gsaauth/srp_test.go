package gsaauth

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"
)

// TestSRPSessionKeyAgreesWithIndependentServerComputation drives the client
// half of one SRP-6a exchange and independently recomputes the shared
// session key and M1 proof from the server's point of view (S = (A *
// v^u)^b mod N), verifying both sides land on the same K — the actual
// cryptographic invariant SRP-6a depends on.
func TestSRPSessionKeyAgreesWithIndependentServerComputation(t *testing.T) {
	session, err := newSRPSession()
	if err != nil {
		t.Fatalf("newSRPSession: %v", err)
	}

	username := "user@example.com"
	derivedPassword := make([]byte, 32)
	if _, err := rand.Read(derivedPassword); err != nil {
		t.Fatal(err)
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		t.Fatal(err)
	}

	x, err := calcXHex(hex.EncodeToString(derivedPassword), hex.EncodeToString(salt))
	if err != nil {
		t.Fatalf("calcXHex: %v", err)
	}

	v := new(big.Int).Exp(session.g, x, session.n)

	bBytes := make([]byte, 32)
	if _, err := rand.Read(bBytes); err != nil {
		t.Fatal(err)
	}
	b := new(big.Int).SetBytes(bBytes)

	k, err := calcK(session.n, session.g)
	if err != nil {
		t.Fatalf("calcK: %v", err)
	}

	gb := new(big.Int).Exp(session.g, b, session.n)
	kv := new(big.Int).Mul(k, v)
	kv.Mod(kv, session.n)
	B := new(big.Int).Add(kv, gb)
	B.Mod(B, session.n)

	proof, err := session.processServerReply(username, derivedPassword, salt, B.Bytes())
	if err != nil {
		t.Fatalf("processServerReply: %v", err)
	}

	u, err := calcU(session.n, numToHex(session.A), numToHex(B))
	if err != nil {
		t.Fatalf("calcU: %v", err)
	}

	// S = (A * v^u)^b mod N, the server-side SRP premaster secret.
	vu := new(big.Int).Exp(v, u, session.n)
	avu := new(big.Int).Mul(session.A, vu)
	avu.Mod(avu, session.n)
	S := new(big.Int).Exp(avu, b, session.n)

	serverKHex, err := shaHex(numToHex(S))
	if err != nil {
		t.Fatalf("shaHex: %v", err)
	}
	serverK, err := hex.DecodeString(serverKHex)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(proof.K, serverK) {
		t.Fatalf("client K = %x, server-computed K = %x", proof.K, serverK)
	}

	expectedM1Hex, err := calcM(session.n, session.g, username, hex.EncodeToString(salt), numToHex(session.A), numToHex(B), serverKHex)
	if err != nil {
		t.Fatalf("calcM: %v", err)
	}
	expectedM1, err := hex.DecodeString(expectedM1Hex)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(proof.M1, expectedM1) {
		t.Fatalf("client M1 = %x, server-expected M1 = %x", proof.M1, expectedM1)
	}
}

func TestProcessServerReplyRejectsZeroB(t *testing.T) {
	session, err := newSRPSession()
	if err != nil {
		t.Fatal(err)
	}
	// B == N mod N == 0 triggers the fatal §8 boundary check.
	zeroB := session.n.Bytes()

	_, err = session.processServerReply("user@example.com", make([]byte, 32), make([]byte, 16), zeroB)
	var negErr *NegotiationError
	if !errors.As(err, &negErr) {
		t.Fatalf("expected *NegotiationError, got %T (%v)", err, err)
	}
}

func TestHashWithPaddingRejectsOversizedValue(t *testing.T) {
	n := big.NewInt(0xFF)
	_, err := hashWithPadding(n, "ffffffffffffffffffffffffffffffffff")
	if err == nil {
		t.Fatal("expected error for value wider than N")
	}
}

func TestNumToHexPadsOddLength(t *testing.T) {
	if got := numToHex(big.NewInt(0xA)); got != "0a" {
		t.Fatalf("numToHex(0xA) = %q, want %q", got, "0a")
	}
}
