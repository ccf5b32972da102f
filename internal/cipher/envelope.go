package cipher

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
)

// NonceSize is the length of the per-file CSPRNG nonce stored in the
// envelope header.
const NonceSize = 16

// magic and version form the 5-byte header every envelope starts with: a
// 4-byte magic plus a 1-byte format version. Scenario 1 of spec.md §8 requires the
// on-disk file to begin with exactly these bytes: 53 45 43 01 01.
var magic = [4]byte{0x53, 0x45, 0x43, 0x01}

const version = byte(0x01)

const headerSize = 4 + 1 + NonceSize
const tagSize = sha256.Size

// ErrIntegrity is returned when an envelope's trailing HMAC does not verify,
// or the header is malformed. No plaintext byte is ever emitted in this
// case, per spec.md §4.2.
var ErrIntegrity = errors.New("cipher: integrity check failed")

// Encrypt produces a full on-disk envelope: magic ∥ version ∥ nonce ∥
// ciphertext ∥ HMAC-SHA256(key, magic∥version∥nonce∥ciphertext).
func Encrypt(key, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return EncryptWithNonce(key, nonce, plaintext)
}

// EncryptWithNonce is Encrypt with an explicit nonce, for any caller that
// must pin the nonce.
func EncryptWithNonce(key, nonce, plaintext []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", NonceSize, len(nonce))
	}
	buf := make([]byte, headerSize+len(plaintext)+tagSize)
	buf[0], buf[1], buf[2], buf[3] = magic[0], magic[1], magic[2], magic[3]
	buf[4] = version
	copy(buf[5:5+NonceSize], nonce)

	ciphertext := buf[headerSize : headerSize+len(plaintext)]
	copy(ciphertext, plaintext)
	Transform(key, nonce, ciphertext)

	mac := hmac.New(sha256.New, key)
	mac.Write(buf[:headerSize+len(plaintext)])
	copy(buf[headerSize+len(plaintext):], mac.Sum(nil))
	return buf, nil
}

// Decrypt verifies the envelope's HMAC before transforming a single byte of
// ciphertext, and returns ErrIntegrity (wrapped) if the header is malformed
// or the tag does not match.
func Decrypt(key, envelope []byte) ([]byte, error) {
	if len(envelope) < headerSize+tagSize {
		return nil, fmt.Errorf("%w: envelope too short", ErrIntegrity)
	}
	if envelope[0] != magic[0] || envelope[1] != magic[1] || envelope[2] != magic[2] || envelope[3] != magic[3] {
		return nil, fmt.Errorf("%w: bad magic", ErrIntegrity)
	}
	if envelope[4] != version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrIntegrity, envelope[4])
	}

	body := envelope[:len(envelope)-tagSize]
	tag := envelope[len(envelope)-tagSize:]

	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	expected := mac.Sum(nil)
	if !hmac.Equal(expected, tag) {
		return nil, ErrIntegrity
	}

	nonce := envelope[5 : 5+NonceSize]
	ciphertext := envelope[headerSize : len(envelope)-tagSize]
	plaintext := make([]byte, len(ciphertext))
	copy(plaintext, ciphertext)
	Transform(key, nonce, plaintext)
	return plaintext, nil
}
