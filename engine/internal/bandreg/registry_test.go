package bandreg

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/stretchr/testify/require"
	"github.com/tarcisiozf/dslot/slots"
)

type fakeNode struct {
	data    []byte
	version int32
}

type fakeConn struct {
	mutex  sync.Mutex
	nodes  map[string]*fakeNode
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{nodes: make(map[string]*fakeNode)}
}

func (c *fakeConn) Exists(path string) (bool, *zk.Stat, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	n, ok := c.nodes[path]
	if !ok {
		return false, nil, nil
	}
	return true, &zk.Stat{Version: n.version}, nil
}

func (c *fakeConn) Create(path string, data []byte, _ int32, _ []zk.ACL) (string, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if _, ok := c.nodes[path]; ok {
		return "", zk.ErrNodeExists
	}
	if parent := path[:strings.LastIndex(path, "/")]; parent != "" {
		if _, ok := c.nodes[parent]; !ok {
			return "", zk.ErrNoNode
		}
	}
	c.nodes[path] = &fakeNode{data: data}
	return path, nil
}

func (c *fakeConn) Set(path string, data []byte, _ int32) (*zk.Stat, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	n, ok := c.nodes[path]
	if !ok {
		return nil, zk.ErrNoNode
	}
	n.data = data
	n.version++
	return &zk.Stat{Version: n.version}, nil
}

func (c *fakeConn) Get(path string) ([]byte, *zk.Stat, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return nil, nil, zk.ErrConnectionClosed
	}
	n, ok := c.nodes[path]
	if !ok {
		return nil, nil, zk.ErrNoNode
	}
	return n.data, &zk.Stat{Version: n.version}, nil
}

func (c *fakeConn) Close() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.closed = true
}

func TestRegistry_PublishLoad(t *testing.T) {
	conn := newFakeConn()
	r, err := NewRegistry(conn, "/dslot/test/", nil)
	require.NoError(t, err)
	require.Equal(t, "/dslot/test/bands", r.Path())

	_, err = r.Load()
	require.ErrorIs(t, err, ErrBandsNotFound)

	require.NoError(t, r.Publish(slots.DefaultRedisBands()))
	update, err := r.Load()
	require.NoError(t, err)
	require.Equal(t, int32(0), update.Version)
	require.True(t, update.Table.Equal(slots.DefaultRedisBands()))

	three, err := slots.EvenBands(slots.RedisSlots, "a", "b", "c")
	require.NoError(t, err)
	require.NoError(t, r.Publish(three))
	update, err = r.Load()
	require.NoError(t, err)
	require.Equal(t, int32(1), update.Version)
	require.True(t, update.Table.Equal(three))
}

func TestRegistry_InvalidBasePath(t *testing.T) {
	_, err := NewRegistry(newFakeConn(), "dslot", nil)
	require.Error(t, err)
}

func TestRegistry_Watch(t *testing.T) {
	conn := newFakeConn()
	r, err := NewRegistry(conn, "/dslot", nil)
	require.NoError(t, err)
	r.pollInterval = 10 * time.Millisecond

	require.NoError(t, r.Publish(slots.DefaultRedisBands()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := r.Watch(ctx, 0)

	conn.mutex.Lock()
	conn.nodes[r.Path()].data = []byte(`{"slots":10,"bands":[{"upper":3,"name":"x"}]}`)
	conn.nodes[r.Path()].version++
	conn.mutex.Unlock()

	two, err := slots.EvenBands(slots.RedisSlots, "left", "right")
	require.NoError(t, err)
	require.NoError(t, r.Publish(two))

	select {
	case update := <-updates:
		require.NotNil(t, update)
		require.Equal(t, int32(2), update.Version)
		require.True(t, update.Table.Equal(two))
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for band update")
	}

	conn.Close()
	select {
	case _, ok := <-updates:
		require.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("expected watcher to stop after connection close")
	}
}
