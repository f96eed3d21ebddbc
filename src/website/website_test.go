package website

import (
	"net"
	"testing"
	"time"

	"github.com/PatchWorkCreations/iriseup-foundation/src/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeReturnsListenError(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	cfg := config.Defaults()
	cfg.Addr = taken.Addr().String()
	cfg.Media.StorageRoot = t.TempDir()

	done := make(chan error, 1)
	go func() {
		done <- Serve(t.Context(), cfg, true)
	}()

	select {
	case err := <-done:
		assert.ErrorContains(t, err, "http server failed")
	case <-time.After(15 * time.Second):
		t.Fatal("Serve did not return after failing to listen")
	}
}
