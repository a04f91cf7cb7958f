package handoff

import (
	"context"
	"net"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestReceiver_ReleasesConnGoroutines(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "handoff.sock")
	out := NewQueue("forge_input", 256)
	recv := NewReceiver(sock, 4, out, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	recvDone := make(chan struct{})
	go func() {
		recv.Run(ctx)
		close(recvDone)
	}()
	waitFor(t, socketReady(sock))

	before := runtime.NumGoroutine()

	// An edge in a reconnect loop opens and drops connections continuously;
	// each one's serve goroutine and watchdog must wind down with it.
	for i := 0; i < 25; i++ {
		conn, err := net.Dial("unix", sock)
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}
		if _, err := conn.Write([]byte("{}\n")); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		conn.Close()
	}

	waitFor(t, func() bool { return runtime.NumGoroutine() <= before+4 })

	cancel()
	select {
	case <-recvDone:
	case <-time.After(5 * time.Second):
		t.Fatal("receiver did not stop")
	}
}
