package testutil

import (
	"net"
	"sync"
	"testing"
	"time"
)

// Backend is a scripted TCP server standing in for a probed peer. Each
// accepted connection reads the probe request, writes the configured
// response bytes and closes. The response can be swapped mid-test to
// flip a peer between healthy and unhealthy.
type Backend struct {
	t  *testing.T
	ln net.Listener

	mu          sync.Mutex
	response    []byte
	silent      bool
	requests    int
	lastRequest []byte

	wg     sync.WaitGroup
	closed chan struct{}
}

// StartBackend starts a backend on a random loopback port serving the
// given response.
func StartBackend(t *testing.T, response []byte) *Backend {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	b := &Backend{
		t:        t,
		ln:       ln,
		response: response,
		closed:   make(chan struct{}),
	}
	b.wg.Add(1)
	go b.acceptLoop()
	t.Cleanup(b.Stop)
	return b
}

// OKResponse builds a well-formed 200 response with the given body.
func OKResponse(body string) []byte {
	return []byte("HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nConnection: close\r\n\r\n" + body)
}

// Addr returns the backend's host:port address.
func (b *Backend) Addr() string {
	return b.ln.Addr().String()
}

// SetResponse swaps the bytes served to subsequent connections.
func (b *Backend) SetResponse(response []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.response = response
}

// SetSilent makes subsequent connections hang without responding, so
// probes run into their timeout.
func (b *Backend) SetSilent(silent bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.silent = silent
}

// Requests returns how many connections the backend has served.
func (b *Backend) Requests() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests
}

// LastRequest returns the raw bytes of the most recent probe request.
func (b *Backend) LastRequest() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.lastRequest...)
}

// Stop closes the listener and any open connections.
func (b *Backend) Stop() {
	select {
	case <-b.closed:
		return
	default:
	}
	close(b.closed)
	b.ln.Close()
	b.wg.Wait()
}

func (b *Backend) acceptLoop() {
	defer b.wg.Done()
	for {
		conn, err := b.ln.Accept()
		if err != nil {
			return
		}
		b.wg.Add(1)
		go b.serve(conn)
	}
}

func (b *Backend) serve(conn net.Conn) {
	defer b.wg.Done()
	defer conn.Close()

	// One read is enough to capture the small probe request.
	buf := make([]byte, 4096)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	n, _ := conn.Read(buf)

	b.mu.Lock()
	b.requests++
	b.lastRequest = append([]byte(nil), buf[:n]...)
	response := b.response
	silent := b.silent
	b.mu.Unlock()

	if silent {
		<-b.closed
		return
	}
	conn.Write(response)
}
