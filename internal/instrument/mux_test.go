package instrument

import (
	"context"
	"strings"
	"testing"
	"time"
)

func echoHandler(command string) (string, bool) {
	if strings.HasSuffix(command, "?") {
		return strings.TrimSuffix(command, "?") + "=1.5", true
	}
	return "", false
}

func startMux(t *testing.T) (*Mux[*MockPort], *MockPort, context.CancelFunc) {
	t.Helper()
	port := NewMockPort(echoHandler)
	mux := NewMux(port)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		mux.Monitor(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		mux.Close()
		<-done
	})
	return mux, port, cancel
}

func TestMuxQueryRoundTrip(t *testing.T) {
	mux, port, _ := startMux(t)

	line, err := mux.Query(context.Background(), "V?", time.Second)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if line != "V=1.5" {
		t.Errorf("reply = %q, want V=1.5", line)
	}

	commands := port.Commands()
	if len(commands) != 1 || commands[0] != "V?" {
		t.Errorf("commands = %v, want [V?]", commands)
	}
}

func TestMuxQueryTimesOutWithoutReply(t *testing.T) {
	mux, _, _ := startMux(t)

	// Set commands produce no reply line.
	if _, err := mux.Query(context.Background(), "V=2", 20*time.Millisecond); err == nil {
		t.Fatal("Query without reply did not time out")
	}
}

func TestMuxFanOut(t *testing.T) {
	mux, _, _ := startMux(t)

	id1, ch1 := mux.Subscribe()
	defer mux.Unsubscribe(id1)
	id2, ch2 := mux.Subscribe()
	defer mux.Unsubscribe(id2)

	got := make(chan string, 2)
	for _, ch := range []chan string{ch1, ch2} {
		go func(ch chan string) {
			got <- <-ch
		}(ch)
	}

	if err := mux.SendCommand("X?"); err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case line := <-got:
			if line != "X=1.5" {
				t.Errorf("subscriber got %q, want X=1.5", line)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the reply")
		}
	}
}

func TestMuxUnsubscribeClosesChannel(t *testing.T) {
	mux, _, _ := startMux(t)

	id, ch := mux.Subscribe()
	mux.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Error("channel still open after Unsubscribe")
	}
	// Double unsubscribe is a no-op.
	mux.Unsubscribe(id)
}
