package gsaauth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// preparePasswordForProtocol derives PBKDF2's input bytes from the raw
// password given the server-selected protocol string (§4.3, §8 invariant).
func preparePasswordForProtocol(password, protocol string) ([]byte, error) {
	digest := sha256.Sum256([]byte(password))
	switch protocol {
	case "s2k":
		return digest[:], nil
	case "s2k_fo":
		return []byte(hex.EncodeToString(digest[:])), nil
	default:
		return nil, fmt.Errorf("gsaauth: unsupported srp protocol %q", protocol)
	}
}

// deriveSRPPassword runs PBKDF2-HMAC-SHA256 with a 32-byte output, per the
// fixed length used throughout the GrandSlam exchange.
func deriveSRPPassword(password, protocol string, salt []byte, iterations int) ([]byte, error) {
	prepared, err := preparePasswordForProtocol(password, protocol)
	if err != nil {
		return nil, err
	}
	return pbkdf2.Key(prepared, salt, iterations, 32, sha256.New), nil
}

// createSessionKey computes HMAC-SHA256(k, name), used throughout SPD and
// app-token derivation (§8 invariant: 32 bytes, exact HMAC construction).
func createSessionKey(k []byte, name string) []byte {
	mac := hmac.New(sha256.New, k)
	mac.Write([]byte(name))
	return mac.Sum(nil)
}

// pkcs7Unpad strips PKCS#7 padding, validating the padding bytes.
func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	n := len(data)
	if n == 0 || n%blockSize != 0 {
		return nil, fmt.Errorf("gsaauth: pkcs7 unpad: invalid length %d", n)
	}
	padLen := int(data[n-1])
	if padLen == 0 || padLen > blockSize || padLen > n {
		return nil, fmt.Errorf("gsaauth: pkcs7 unpad: invalid padding length %d", padLen)
	}
	for _, b := range data[n-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("gsaauth: pkcs7 unpad: malformed padding")
		}
	}
	return data[:n-padLen], nil
}

// decryptSPD decrypts the CBC-encrypted SPD blob using keys derived from
// the SRP session key K, per §4.3's "SPD decryption" section.
func decryptSPD(k, ciphertext []byte) ([]byte, error) {
	extraDataKey := createSessionKey(k, "extra data key:")
	extraDataIV := createSessionKey(k, "extra data iv:")[:16]

	block, err := aes.NewCipher(extraDataKey)
	if err != nil {
		return nil, fmt.Errorf("gsaauth: spd cipher: %w", err)
	}
	if len(ciphertext)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("gsaauth: spd ciphertext is not block-aligned")
	}

	plain := make([]byte, len(ciphertext))
	mode := cipher.NewCBCDecrypter(block, extraDataIV)
	mode.CryptBlocks(plain, ciphertext)

	return pkcs7Unpad(plain, block.BlockSize())
}

// decryptAppToken decrypts the AES-256-GCM app-token bag, using the 3-byte
// magic prefix as associated data (§4.5 step 6).
func decryptAppToken(sessionKey, iv, magic, ciphertextAndTag []byte) ([]byte, error) {
	block, err := aes.NewCipher(sessionKey)
	if err != nil {
		return nil, fmt.Errorf("gsaauth: app token cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gsaauth: app token gcm: %w", err)
	}
	if len(iv) != gcm.NonceSize() {
		return nil, fmt.Errorf("gsaauth: app token iv has length %d, want %d", len(iv), gcm.NonceSize())
	}
	plain, err := gcm.Open(nil, iv, ciphertextAndTag, magic)
	if err != nil {
		return nil, fmt.Errorf("gsaauth: app token decrypt: %w", err)
	}
	return plain, nil
}
