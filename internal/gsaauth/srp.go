package gsaauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/1Password/srp"
)

// srpEphemeralBytes is the width of the client's random ephemeral secret a,
// per §4.3's "generate 32 bytes of ephemeral a".
const srpEphemeralBytes = 32

// srpSession carries the client side of one SRP-6a exchange over the
// RFC5054 2048-bit group with SHA-256, matching Apple's GrandSlam variant.
type srpSession struct {
	n *big.Int
	g *big.Int
	a *big.Int
	A *big.Int
}

// newSRPSession generates a fresh ephemeral secret and computes the
// client's public value A = g^a mod n.
func newSRPSession() (*srpSession, error) {
	group := srp.KnownGroups[srp.RFC5054Group2048]
	n := group.N()
	g := group.Generator()

	aBytes := make([]byte, srpEphemeralBytes)
	if _, err := rand.Read(aBytes); err != nil {
		return nil, fmt.Errorf("gsaauth: generate srp ephemeral: %w", err)
	}
	a := new(big.Int).SetBytes(aBytes)
	A := new(big.Int).Exp(g, a, n)

	return &srpSession{n: n, g: g, a: a, A: A}, nil
}

// srpProof is the result of processing the server's step-1 response: the
// client proof M1 to send, the raw 32-byte session key K, and the M2 value
// the client expects back from the server.
type srpProof struct {
	M1         []byte
	K          []byte
	ExpectedM2 []byte
}

// processServerReply runs the SRP-6a math given the server's salt and
// public value B and the PBKDF2-derived password, producing M1, K, and the
// expected M2 for later verification (§4.3, §8 boundary: B mod N == 0 is
// fatal).
func (s *srpSession) processServerReply(username string, derivedPassword, salt, serverB []byte) (*srpProof, error) {
	B := new(big.Int).SetBytes(serverB)
	if new(big.Int).Mod(B, s.n).Sign() == 0 {
		return nil, &NegotiationError{Reason: "server public value B mod N == 0"}
	}

	bHex := hex.EncodeToString(serverB)
	saltHex := hex.EncodeToString(salt)
	aHex := numToHex(s.A)
	derivedPasswordHex := hex.EncodeToString(derivedPassword)

	x, err := calcXHex(derivedPasswordHex, saltHex)
	if err != nil {
		return nil, err
	}
	k, err := calcK(s.n, s.g)
	if err != nil {
		return nil, err
	}
	u, err := calcU(s.n, aHex, bHex)
	if err != nil {
		return nil, err
	}
	if u.Sign() == 0 {
		return nil, &NegotiationError{Reason: "invalid srp scrambling parameter u"}
	}

	gx := new(big.Int).Exp(s.g, x, s.n)
	kgx := new(big.Int).Mul(k, gx)
	kgx.Mod(kgx, s.n)
	base := new(big.Int).Sub(B, kgx)
	base.Mod(base, s.n)
	if base.Sign() < 0 {
		base.Add(base, s.n)
	}
	exp := new(big.Int).Add(s.a, new(big.Int).Mul(u, x))
	S := new(big.Int).Exp(base, exp, s.n)

	kHex, err := shaHex(numToHex(S))
	if err != nil {
		return nil, err
	}
	kBytes, err := hex.DecodeString(kHex)
	if err != nil {
		return nil, fmt.Errorf("gsaauth: decode session key: %w", err)
	}

	m1Hex, err := calcM(s.n, s.g, username, saltHex, aHex, bHex, kHex)
	if err != nil {
		return nil, err
	}
	m2Hex, err := calcHAMK(aHex, m1Hex, kHex)
	if err != nil {
		return nil, err
	}

	m1Bytes, err := hex.DecodeString(m1Hex)
	if err != nil {
		return nil, fmt.Errorf("gsaauth: decode m1 proof: %w", err)
	}
	m2Bytes, err := hex.DecodeString(m2Hex)
	if err != nil {
		return nil, fmt.Errorf("gsaauth: decode expected m2: %w", err)
	}

	return &srpProof{M1: m1Bytes, K: kBytes, ExpectedM2: m2Bytes}, nil
}

func calcXHex(derivedPasswordHex, saltHex string) (*big.Int, error) {
	if _, err := hex.DecodeString(derivedPasswordHex); err != nil {
		return nil, fmt.Errorf("gsaauth: invalid derived password hex: %w", err)
	}
	if _, err := hex.DecodeString(saltHex); err != nil {
		return nil, fmt.Errorf("gsaauth: invalid salt hex: %w", err)
	}

	inner, err := shaHex("3a" + derivedPasswordHex)
	if err != nil {
		return nil, err
	}
	outer, err := shaHex(saltHex + inner)
	if err != nil {
		return nil, err
	}
	x := new(big.Int)
	if _, ok := x.SetString(outer, 16); !ok {
		return nil, fmt.Errorf("gsaauth: parse srp x value")
	}
	return x, nil
}

func calcK(n, g *big.Int) (*big.Int, error) {
	return hashWithPadding(n, numToHex(n), numToHex(g))
}

func calcU(n *big.Int, aHex, bHex string) (*big.Int, error) {
	return hashWithPadding(n, aHex, bHex)
}

func calcM(n, g *big.Int, username, saltHex, aHex, bHex, kHex string) (string, error) {
	hn, err := hashWithPadding(n, numToHex(n))
	if err != nil {
		return "", err
	}
	hg, err := hashWithPadding(n, numToHex(g))
	if err != nil {
		return "", err
	}
	hxor := new(big.Int).Xor(hn, hg)

	input := numToHex(hxor) + shaStringHex(username) + saltHex + aHex + bHex + kHex
	raw, err := hex.DecodeString(input)
	if err != nil {
		return "", fmt.Errorf("gsaauth: decode M input: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func calcHAMK(aHex, mHex, kHex string) (string, error) {
	raw, err := hex.DecodeString(aHex + mHex + kHex)
	if err != nil {
		return "", fmt.Errorf("gsaauth: decode H_AMK input: %w", err)
	}
	sum := sha256.Sum256(raw)
	return numToHex(new(big.Int).SetBytes(sum[:])), nil
}

// hashWithPadding is Apple's zero-padded-to-N-width concatenation hash,
// used throughout the SRP derivation (§4.3).
func hashWithPadding(n *big.Int, values ...string) (*big.Int, error) {
	nHexLen := len(fmt.Sprintf("%x", n))
	nLen := 2 * (((nHexLen * 4) + 7) >> 3)

	var input strings.Builder
	for _, value := range values {
		if value == "" {
			continue
		}
		hexValue := strings.ToLower(value)
		if len(hexValue) > nLen {
			return nil, fmt.Errorf("gsaauth: bit width mismatch for hashWithPadding value")
		}
		input.WriteString(strings.Repeat("0", nLen-len(hexValue)))
		input.WriteString(hexValue)
	}

	digestHex, err := shaHex(input.String())
	if err != nil {
		return nil, err
	}

	result := new(big.Int)
	if _, ok := result.SetString(digestHex, 16); !ok {
		return nil, fmt.Errorf("gsaauth: parse hashWithPadding result")
	}
	result.Mod(result, n)
	return result, nil
}

func shaHex(hexValue string) (string, error) {
	raw, err := hex.DecodeString(hexValue)
	if err != nil {
		return "", fmt.Errorf("gsaauth: invalid hex input: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func shaStringHex(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

func numToHex(number *big.Int) string {
	hexValue := strings.ToLower(number.Text(16))
	if len(hexValue)%2 == 1 {
		hexValue = "0" + hexValue
	}
	return hexValue
}
