package netcrypto

import (
	"crypto/aes"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectorrace/racecore/config"
)

func TestDeriveKey_KeyIVOverlap(t *testing.T) {
	sessionID := "deadbeefdeadbeefdeadbeefdeadbeef"
	key, iv := DeriveKey(sessionID)

	h := sha256.Sum256([]byte(sessionID + config.DatagramSharedSecret))
	assert.Equal(t, h[:32], key[:])
	assert.Equal(t, h[16:32], iv[:])
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	sc, err := NewSessionCipher("session-a")
	require.NoError(t, err)

	payload := map[string]any{"command": "UPDATE", "sessionId": "session-a"}
	frame, err := sc.Encrypt(payload)
	require.NoError(t, err)

	decoded, err := sc.Decrypt(frame)
	require.NoError(t, err)
	assert.Equal(t, "UPDATE", decoded["command"])
	assert.Equal(t, "session-a", decoded["sessionId"])
}

func TestEncrypt_FrameLength(t *testing.T) {
	sc, err := NewSessionCipher("session-b")
	require.NoError(t, err)

	plaintext := []byte(`{"command":"PING","sessionId":"session-b"}`)
	frame, err := sc.Encrypt(map[string]any{"command": "PING", "sessionId": "session-b"})
	require.NoError(t, err)

	expectedCipherLen := aes.BlockSize * ((len(plaintext) / aes.BlockSize) + 1)
	assert.Equal(t, 4+expectedCipherLen, len(frame))
}

func TestDecrypt_RejectsWrongSessionKey(t *testing.T) {
	scA, err := NewSessionCipher("session-a")
	require.NoError(t, err)
	scB, err := NewSessionCipher("session-b")
	require.NoError(t, err)

	frame, err := scA.Encrypt(map[string]any{"command": "PING"})
	require.NoError(t, err)

	_, err = scB.Decrypt(frame)
	assert.Error(t, err)
}

func TestDecrypt_LengthMismatch(t *testing.T) {
	sc, err := NewSessionCipher("session-c")
	require.NoError(t, err)

	frame, err := sc.Encrypt(map[string]any{"command": "PING"})
	require.NoError(t, err)
	frame[0]++ // corrupt the length prefix

	_, err = sc.Decrypt(frame)
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestDecrypt_ShortFrame(t *testing.T) {
	sc, err := NewSessionCipher("session-d")
	require.NoError(t, err)

	_, err = sc.Decrypt([]byte{0x01, 0x02})
	assert.ErrorIs(t, err, ErrShortFrame)
}

func TestLooksEncrypted(t *testing.T) {
	sc, err := NewSessionCipher("session-e")
	require.NoError(t, err)
	frame, err := sc.Encrypt(map[string]any{"command": "PING"})
	require.NoError(t, err)

	assert.True(t, LooksEncrypted(frame))
	assert.False(t, LooksEncrypted([]byte(`{"command":"PING"}`)))
}
