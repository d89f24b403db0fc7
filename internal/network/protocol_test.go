package network

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineReader_SplitsOnLF(t *testing.T) {
	r := NewLineReader(bytes.NewBufferString("{\"command\":\"PING\"}\n{\"command\":\"BYE\"}\n"))

	line1, err := r.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, `{"command":"PING"}`, string(line1))

	line2, err := r.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, `{"command":"BYE"}`, string(line2))

	_, err = r.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
}

func TestLineReader_StripsTrailingCR(t *testing.T) {
	r := NewLineReader(bytes.NewBufferString("{\"command\":\"PING\"}\r\n"))
	line, err := r.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, `{"command":"PING"}`, string(line))
}

func TestPeekCommand(t *testing.T) {
	cmd, err := PeekCommand([]byte(`{"command":"NAME","name":"alice"}`))
	require.NoError(t, err)
	assert.Equal(t, "NAME", cmd)
}

func TestPeekCommand_InvalidJSON(t *testing.T) {
	_, err := PeekCommand([]byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestEncodeLine_AppendsLF(t *testing.T) {
	data, err := EncodeLine(Pong{Command: RespPong})
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), data[len(data)-1])
	assert.Equal(t, `{"command":"PONG"}`+"\n", string(data))
}

func TestDecodeCommand_WrapsInvalidMessage(t *testing.T) {
	var req NameRequest
	err := DecodeCommand([]byte(`{bad`), &req)
	assert.ErrorIs(t, err, ErrInvalidMessage)
}
