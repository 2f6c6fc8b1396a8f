package instrument

import (
	"bytes"
	"errors"
	"strings"
	"sync"
)

// MockPort implements Porter with scripted behaviour for tests and the
// simulated instrument in cmd/sweeprun. Each command line written to the
// port is handed to Handler; a returned reply is queued on the read side.
type MockPort struct {
	mu       sync.Mutex
	readCond *sync.Cond

	readBuf  bytes.Buffer
	commands []string
	closed   bool

	// Handler produces the reply line for a command, or ok=false for
	// commands that have no reply.
	Handler func(command string) (reply string, ok bool)
}

// NewMockPort creates a MockPort answering commands via handler. A nil
// handler accepts every command silently.
func NewMockPort(handler func(command string) (string, bool)) *MockPort {
	p := &MockPort{Handler: handler}
	p.readCond = sync.NewCond(&p.mu)
	return p
}

// Read blocks until reply data is available or the port is closed.
func (p *MockPort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for !p.closed && p.readBuf.Len() == 0 {
		p.readCond.Wait()
	}
	if p.closed && p.readBuf.Len() == 0 {
		return 0, errors.New("port closed")
	}
	return p.readBuf.Read(buf)
}

// Write records each command line and queues the scripted reply.
func (p *MockPort) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, errors.New("port closed")
	}

	for _, line := range strings.Split(string(data), "\n") {
		command := strings.TrimSpace(line)
		if command == "" {
			continue
		}
		p.commands = append(p.commands, command)
		if p.Handler != nil {
			if reply, ok := p.Handler(command); ok {
				p.readBuf.WriteString(reply + "\n")
				p.readCond.Broadcast()
			}
		}
	}
	return len(data), nil
}

// Close marks the port as closed and wakes blocked readers.
func (p *MockPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.readCond.Broadcast()
	return nil
}

// Commands returns every command line written so far.
func (p *MockPort) Commands() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.commands))
	copy(out, p.commands)
	return out
}
