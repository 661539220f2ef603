package ptyio

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openOrSkip(t *testing.T) *PTY {
	t.Helper()
	p, err := Open(nil)
	if err != nil {
		t.Skipf("cannot allocate pty: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestPTY_BinaryPassesThroughUnmodified(t *testing.T) {
	// GOAL: Verify that the slave is raw so frames survive the line discipline
	//
	// TEST SCENARIO: Write bytes including CR, LF and ^C from both ends → identical bytes arrive

	p := openOrSkip(t)
	assert.NotEmpty(t, p.TTYName())

	client, err := os.OpenFile(p.TTYName(), os.O_RDWR, 0)
	require.NoError(t, err)
	defer client.Close()

	frame := []byte{0xa0, 0x03, 0x0d, 0x0a, 0x03, 0x7f, 0x00}

	_, err = p.Write(frame)
	require.NoError(t, err)
	got := make([]byte, len(frame))
	_, err = io.ReadFull(client, got)
	require.NoError(t, err)
	assert.Equal(t, frame, got, "master → slave MUST be byte exact")

	_, err = client.Write(frame)
	require.NoError(t, err)
	_, err = io.ReadFull(p, got)
	require.NoError(t, err)
	assert.Equal(t, frame, got, "slave → master MUST be byte exact")
}

func TestPTY_CloseIsIdempotent(t *testing.T) {
	p := openOrSkip(t)

	assert.NoError(t, p.Close())
	assert.NoError(t, p.Close())
}
