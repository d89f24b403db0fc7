// Package netcrypto implements the datagram channel's per-session AES
// cipher: key derivation, CBC encryption with PKCS#7 padding, and the
// length-prefixed wire framing used on the UDP channel.
package netcrypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vectorrace/racecore/config"
)

var (
	// ErrShortFrame is returned when a datagram is too small to contain
	// even the 4-byte length prefix.
	ErrShortFrame = errors.New("netcrypto: frame shorter than length prefix")
	// ErrLengthMismatch is returned when the length prefix doesn't match
	// the number of ciphertext bytes that follow it.
	ErrLengthMismatch = errors.New("netcrypto: length prefix does not match payload size")
	// ErrBadBlockSize is returned when the ciphertext isn't a multiple of
	// the AES block size.
	ErrBadBlockSize = errors.New("netcrypto: ciphertext is not a multiple of the block size")
	// ErrBadPadding is returned when PKCS#7 padding fails to validate.
	ErrBadPadding = errors.New("netcrypto: invalid PKCS#7 padding")
)

// SessionCipher encrypts and decrypts the datagram channel's JSON
// payloads for one authenticated session. The key and IV are fixed for
// the cipher's lifetime — there is no per-packet nonce, and replay
// protection is not provided here.
type SessionCipher struct {
	block cipher.Block
	iv    [aes.BlockSize]byte
}

// DeriveKey reproduces the wire protocol's key/IV derivation exactly:
// H = SHA-256(sessionID || sharedSecret); key = H[0:32), iv = H[16:32).
// The 16-byte overlap between key and IV is deliberate and must be
// reproduced verbatim for client compatibility, not "fixed" into a
// derivation with an independent IV.
func DeriveKey(sessionID string) (key [32]byte, iv [16]byte) {
	h := sha256.Sum256([]byte(sessionID + config.DatagramSharedSecret))
	copy(key[:], h[:32])
	copy(iv[:], h[16:32])
	return key, iv
}

// NewSessionCipher builds the AES-256-CBC cipher for sessionID.
func NewSessionCipher(sessionID string) (*SessionCipher, error) {
	key, iv := DeriveKey(sessionID)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("netcrypto: building AES cipher: %w", err)
	}
	sc := &SessionCipher{block: block}
	copy(sc.iv[:], iv[:])
	return sc, nil
}

// Encrypt serializes obj as JSON, PKCS#7-pads and CBC-encrypts it, and
// returns the full wire frame: [4-byte LE length][ciphertext].
func (sc *SessionCipher) Encrypt(obj any) ([]byte, error) {
	plaintext, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("netcrypto: marshaling payload: %w", err)
	}
	return sc.EncryptRaw(plaintext)
}

// EncryptRaw PKCS#7-pads and CBC-encrypts already-serialized bytes,
// skipping the JSON marshal step. Used by the datagram fan-out path,
// which re-encrypts a payload it decoded from another session rather
// than building a fresh object.
func (sc *SessionCipher) EncryptRaw(plaintext []byte) ([]byte, error) {
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cbc := cipher.NewCBCEncrypter(sc.block, sc.iv[:])
	cbc.CryptBlocks(ciphertext, padded)

	frame := make([]byte, 4+len(ciphertext))
	binary.LittleEndian.PutUint32(frame[:4], uint32(len(ciphertext)))
	copy(frame[4:], ciphertext)
	return frame, nil
}

// Decrypt parses a wire frame, CBC-decrypts it, strips PKCS#7 padding,
// and unmarshals the result into a generic JSON object.
func (sc *SessionCipher) Decrypt(frame []byte) (map[string]any, error) {
	plaintext, err := sc.DecryptRaw(frame)
	if err != nil {
		return nil, err
	}

	var obj map[string]any
	if err := json.Unmarshal(plaintext, &obj); err != nil {
		return nil, fmt.Errorf("netcrypto: invalid JSON payload: %w", err)
	}
	return obj, nil
}

// DecryptRaw performs the framing/decryption/unpadding steps and returns
// the recovered plaintext bytes without attempting a JSON decode. Used
// by the server's trial-decryption loop, which needs to test candidate
// sessions without committing to a JSON shape up front.
func (sc *SessionCipher) DecryptRaw(frame []byte) ([]byte, error) {
	if len(frame) < 4 {
		return nil, ErrShortFrame
	}

	declared := binary.LittleEndian.Uint32(frame[:4])
	ciphertext := frame[4:]
	if int(declared) != len(ciphertext) {
		return nil, ErrLengthMismatch
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrBadBlockSize
	}

	padded := make([]byte, len(ciphertext))
	cbc := cipher.NewCBCDecrypter(sc.block, sc.iv[:])
	cbc.CryptBlocks(padded, ciphertext)

	plaintext, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

// LooksEncrypted reports whether data matches the encrypted wire shape:
// a 4-byte little-endian length prefix whose value equals the number of
// trailing bytes. The legacy plaintext path is used otherwise.
func LooksEncrypted(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	declared := binary.LittleEndian.Uint32(data[:4])
	return int(declared) == len(data)-4
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(append([]byte{}, data...), padding...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	n := len(data)
	if n == 0 || n%blockSize != 0 {
		return nil, ErrBadPadding
	}
	padLen := int(data[n-1])
	if padLen == 0 || padLen > blockSize || padLen > n {
		return nil, ErrBadPadding
	}
	for _, b := range data[n-padLen:] {
		if int(b) != padLen {
			return nil, ErrBadPadding
		}
	}
	return data[:n-padLen], nil
}
