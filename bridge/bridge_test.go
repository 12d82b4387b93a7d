package bridge_test

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"i4.energy/across/osmocon/bridge"
)

type inbox struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (i *inbox) handle(p []byte) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.msgs = append(i.msgs, p)
	return nil
}

func (i *inbox) all() [][]byte {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([][]byte(nil), i.msgs...)
}

func startServer(t *testing.T, opts ...bridge.Option) (*bridge.Server, *inbox, string, <-chan error, context.CancelFunc) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "l2.sock")
	ln, err := bridge.Listen(path)
	require.NoError(t, err)

	in := &inbox{}
	srv := bridge.New(in.handle, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	finished := make(chan struct{})
	go func() {
		done <- srv.Serve(ctx, ln)
		close(finished)
	}()
	t.Cleanup(func() {
		cancel()
		<-finished
	})
	return srv, in, path, done, cancel
}

func dial(t *testing.T, path string) net.Conn {
	t.Helper()
	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestForwardWithoutClient(t *testing.T) {
	srv, _, _, _, _ := startServer(t)

	done := make(chan error, 1)
	go func() { done <- srv.Forward([]byte{1, 2, 3}) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Forward blocked without a client")
	}
	assert.False(t, srv.Connected())
}

func TestForwardToClient(t *testing.T) {
	srv, _, path, _, _ := startServer(t)
	conn := dial(t, path)
	require.Eventually(t, srv.Connected, time.Second, time.Millisecond)

	require.NoError(t, srv.Forward([]byte{0xca, 0xfe}))
	require.NoError(t, srv.Forward(nil))

	buf := make([]byte, 6)
	_, err := io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x02, 0xca, 0xfe, 0x00, 0x00}, buf)
}

func TestForwardTooLarge(t *testing.T) {
	srv, _, _, _, _ := startServer(t)
	err := srv.Forward(make([]byte, bridge.MaxPayload+1))
	assert.ErrorIs(t, err, bridge.ErrPayloadTooLarge)
}

func TestForwardToStalledClient(t *testing.T) {
	srv, _, path, done, cancel := startServer(t, bridge.WithWriteTimeout(20*time.Millisecond))
	dial(t, path) // never reads
	require.Eventually(t, srv.Connected, time.Second, time.Millisecond)

	payload := make([]byte, 4096)
	forward := func() error {
		t.Helper()
		result := make(chan error, 1)
		go func() { result <- srv.Forward(payload) }()
		select {
		case err := <-result:
			return err
		case <-time.After(time.Second):
			t.Fatal("Forward blocked on a client that does not read")
			return nil
		}
	}

	var err error
	for range 4096 {
		if err = forward(); err != nil {
			break
		}
	}
	require.ErrorIs(t, err, bridge.ErrClientStalled)

	// Keep the writer busy while the server shuts down.
	stopWriter := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-stopWriter:
				return
			default:
				srv.Forward(payload)
			}
		}
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	close(stopWriter)
	select {
	case <-writerDone:
	case <-time.After(time.Second):
		t.Fatal("Forward blocked after shutdown")
	}
	assert.False(t, srv.Connected())
}

func TestClientMessages(t *testing.T) {
	srv, in, path, _, _ := startServer(t)

	first := dial(t, path)
	require.Eventually(t, srv.Connected, time.Second, time.Millisecond)

	// One message split over two writes, then a second one.
	_, err := first.Write([]byte{0x00, 0x03, 'a'})
	require.NoError(t, err)
	_, err = first.Write([]byte{'b', 'c', 0x01, 0x00})
	require.NoError(t, err)
	_, err = first.Write(make([]byte, 256))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(in.all()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []byte("abc"), in.all()[0])
	assert.Len(t, in.all()[1], 256)

	t.Run("second client waits for the first to leave", func(t *testing.T) {
		second := dial(t, path)
		_, err := second.Write([]byte{0x00, 0x01, 'z'})
		require.NoError(t, err)

		time.Sleep(50 * time.Millisecond)
		assert.Len(t, in.all(), 2)

		first.Close()
		require.Eventually(t, func() bool { return len(in.all()) == 3 }, time.Second, time.Millisecond)
		assert.Equal(t, []byte("z"), in.all()[2])
		assert.True(t, srv.Connected())
	})
}

func TestServeStopsOnCancel(t *testing.T) {
	srv, _, path, done, cancel := startServer(t)
	dial(t, path)
	require.Eventually(t, srv.Connected, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestListenRemovesStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stale.sock")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	ln, err := bridge.Listen(path)
	require.NoError(t, err)
	ln.Close()
}
