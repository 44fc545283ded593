package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_AppendsInOrder(t *testing.T) {
	b := New(Config{InitialCapacity: 8})

	for _, chunk := range []string{"HTTP/1.1 200 OK\r\n", "Server: test\r\n", "\r\n"} {
		n, err := b.Write([]byte(chunk))
		require.NoError(t, err)
		assert.Equal(t, len(chunk), n)
	}

	assert.Equal(t, "HTTP/1.1 200 OK\r\nServer: test\r\n\r\n", b.String())
	assert.Equal(t, 33, b.Len())
}

func TestBuffer_MaxCapacity(t *testing.T) {
	b := New(Config{MaxCapacity: 4})

	_, err := b.Write([]byte("abc"))
	require.NoError(t, err)

	n, err := b.Write([]byte("de"))
	assert.Equal(t, 0, n)
	assert.True(t, IsCapacityError(err))
	assert.Equal(t, "abc", b.String())
	assert.Equal(t, 4, b.Cap())
}

func TestBuffer_BytesIsCopy(t *testing.T) {
	b := New(Config{})
	_, _ = b.Write([]byte("body"))

	out := b.Bytes()
	out[0] = 'X'

	assert.Equal(t, "body", b.String())
}

func TestBuffer_Clear(t *testing.T) {
	b := New(Config{})
	_, _ = b.Write([]byte("body"))

	b.Clear()

	assert.Zero(t, b.Len())
	assert.Empty(t, b.String())
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, Config{}.Validate())
	assert.ErrorIs(t, Config{MaxCapacity: -1}.Validate(), ErrInvalidCapacity)
	assert.ErrorIs(t, Config{InitialCapacity: 10, MaxCapacity: 5}.Validate(), ErrInvalidCapacity)
}
