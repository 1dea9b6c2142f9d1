package cache

import (
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestDaemon(t *testing.T, kv KV) string {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "cache.sock")
	l, err := net.Listen("unix", sock)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go ServeConn(conn, kv)
		}
	}()
	return sock
}

func TestClientRoundTrip(t *testing.T) {
	c := NewClient(startTestDaemon(t, NewMemory()))

	require.NoError(t, c.EnsureNamespace("static-v1"))
	require.NoError(t, c.Put("static-v1", "GET|http://hospital.local/", []byte("home")))

	v, err := c.Get("static-v1", "GET|http://hospital.local/")
	require.NoError(t, err)
	assert.Equal(t, []byte("home"), v)

	v, err = c.Match("GET|http://hospital.local/")
	require.NoError(t, err)
	assert.Equal(t, []byte("home"), v)

	names, err := c.Namespaces()
	require.NoError(t, err)
	assert.Equal(t, []string{"static-v1"}, names)

	require.NoError(t, c.Delete("static-v1", "GET|http://hospital.local/"))
	_, err = c.Get("static-v1", "GET|http://hospital.local/")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.DropNamespace("static-v1"))
	names, err = c.Namespaces()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestClientMapsSentinelErrors(t *testing.T) {
	c := NewClient(startTestDaemon(t, NewMemory()))

	_, err := c.Get("nope", "GET|missing")
	assert.ErrorIs(t, err, ErrNoNamespace)

	require.NoError(t, c.EnsureNamespace("ns"))
	_, err = c.Get("ns", "GET|missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.Match("GET|missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
