package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeConn records frames sent to it and can be switched to fail sends.
type fakeConn struct {
	id string

	mu     sync.Mutex
	frames [][]byte
	fail   bool
	closed int
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("send failed")
	}
	c.frames = append(c.frames, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeConn) setFail(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = fail
}

func (c *fakeConn) sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.frames...)
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// types decodes the "type" of every frame received so far.
func (c *fakeConn) types(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, f := range c.sent() {
		var m TypedMessage
		require.NoError(t, json.Unmarshal(f, &m))
		out = append(out, m.Type)
	}
	return out
}

// last decodes the most recent frame into v.
func (c *fakeConn) last(t *testing.T, v any) {
	t.Helper()
	frames := c.sent()
	require.NotEmpty(t, frames, "connection %s received nothing", c.id)
	require.NoError(t, json.Unmarshal(frames[len(frames)-1], v))
}
