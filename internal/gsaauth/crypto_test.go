package gsaauth

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"testing"
)

func TestPreparePasswordForProtocol(t *testing.T) {
	s2k, err := preparePasswordForProtocol("hunter2", "s2k")
	if err != nil {
		t.Fatalf("s2k: %v", err)
	}
	if len(s2k) != 32 {
		t.Fatalf("s2k length = %d, want 32", len(s2k))
	}

	s2kFO, err := preparePasswordForProtocol("hunter2", "s2k_fo")
	if err != nil {
		t.Fatalf("s2k_fo: %v", err)
	}
	if len(s2kFO) != 64 {
		t.Fatalf("s2k_fo length = %d, want 64 (lowercase hex ascii)", len(s2kFO))
	}
	if hex.EncodeToString(s2k) != string(s2kFO) {
		t.Fatalf("s2k_fo is not hex(sha256(password)): got %s want %s", s2kFO, hex.EncodeToString(s2k))
	}

	if _, err := preparePasswordForProtocol("hunter2", "unknown"); err == nil {
		t.Fatal("expected error for unsupported protocol")
	}
}

func TestDeriveSRPPasswordLength(t *testing.T) {
	derived, err := deriveSRPPassword("hunter2", "s2k", []byte("salt1234"), 1000)
	if err != nil {
		t.Fatalf("deriveSRPPassword: %v", err)
	}
	if len(derived) != 32 {
		t.Fatalf("derived password length = %d, want 32", len(derived))
	}
}

func TestCreateSessionKeyDeterministic(t *testing.T) {
	k := []byte("some 32 byte session key--------")
	a := createSessionKey(k, "extra data key:")
	b := createSessionKey(k, "extra data key:")
	if !bytes.Equal(a, b) {
		t.Fatal("createSessionKey is not deterministic")
	}
	other := createSessionKey(k, "extra data iv:")
	if bytes.Equal(a, other) {
		t.Fatal("different names produced the same session key")
	}
	if len(a) != 32 {
		t.Fatalf("session key length = %d, want 32", len(a))
	}
}

func TestPkcs7UnpadRoundTrip(t *testing.T) {
	block, err := aes.NewCipher(bytes.Repeat([]byte{0x42}, 32))
	if err != nil {
		t.Fatal(err)
	}
	plain := []byte("hello, this is a message")
	padLen := block.BlockSize() - len(plain)%block.BlockSize()
	padded := append(append([]byte{}, plain...), bytes.Repeat([]byte{byte(padLen)}, padLen)...)

	iv := bytes.Repeat([]byte{0x01}, block.BlockSize())
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	decrypted := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(decrypted, ciphertext)

	unpadded, err := pkcs7Unpad(decrypted, block.BlockSize())
	if err != nil {
		t.Fatalf("pkcs7Unpad: %v", err)
	}
	if !bytes.Equal(unpadded, plain) {
		t.Fatalf("unpadded = %q, want %q", unpadded, plain)
	}
}

func TestPkcs7UnpadRejectsMalformedPadding(t *testing.T) {
	data := bytes.Repeat([]byte{0x00}, 16)
	data[15] = 17 // padLen larger than block size
	if _, err := pkcs7Unpad(data, 16); err == nil {
		t.Fatal("expected error for padLen > blockSize")
	}
}

func TestDecryptAppTokenRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x07}, 32)
	iv := bytes.Repeat([]byte{0x09}, appTokenIVLen)
	magic := []byte("XYZ")
	plain := []byte("<plist>fake app token body</plist>")

	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		t.Fatal(err)
	}
	sealed := gcm.Seal(nil, iv, plain, magic)

	decrypted, err := decryptAppToken(key, iv, magic, sealed)
	if err != nil {
		t.Fatalf("decryptAppToken: %v", err)
	}
	if !bytes.Equal(decrypted, plain) {
		t.Fatalf("decrypted = %q, want %q", decrypted, plain)
	}

	if _, err := decryptAppToken(key, iv, []byte("BAD"), sealed); err == nil {
		t.Fatal("expected auth failure with wrong associated data")
	}
}
