package tftpc

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-tftp/tftp"
	"github.com/go-tftp/tftp/internal/tftptest"
	"github.com/go-tftp/tftp/metrics"
	"github.com/go-tftp/tftp/tftpd"
)

func testOpts() tftp.Options {
	return tftp.Options{Timeout: 200 * time.Millisecond, MaxAttempts: 3}
}

func discardLogger() *tftp.Logger {
	return tftp.NewLoggerWithOutput(0, false, io.Discard, io.Discard, tftp.LogFormatText)
}

func TestRunGetFailsIfDestinationExists(t *testing.T) {
	fs := tftptest.NewMemFS(map[string][]byte{"already-here": {1}})
	req := Request{ServerAddr: &net.UDPAddr{}, Direction: Get, Source: "remote", Destination: "already-here", Mode: tftp.ModeOctet}

	err := Run(context.Background(), req, fs, testOpts(), discardLogger(), metrics.New())
	assert.True(t, errors.Is(err, ErrLocalPrecondition))
}

func TestRunPutFailsIfSourceMissing(t *testing.T) {
	fs := tftptest.NewMemFS(nil)
	req := Request{ServerAddr: &net.UDPAddr{}, Direction: Put, Source: "missing", Destination: "remote", Mode: tftp.ModeOctet}

	err := Run(context.Background(), req, fs, testOpts(), discardLogger(), metrics.New())
	assert.True(t, errors.Is(err, ErrLocalPrecondition))
}

func TestRunGetSucceedsAgainstADispatcher(t *testing.T) {
	welcome, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	serverFS := tftptest.NewMemFS(map[string][]byte{"remote.bin": []byte("payload bytes")})
	clientFS := tftptest.NewMemFS(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	d := tftpd.NewDispatcher(welcome, serverFS, testOpts(), discardLogger(), metrics.New())
	go d.Run(ctx)

	req := Request{ServerAddr: welcome.LocalAddr(), Direction: Get, Source: "remote.bin", Destination: "local.bin", Mode: tftp.ModeOctet}
	err = Run(ctx, req, clientFS, testOpts(), discardLogger(), metrics.New())
	require.NoError(t, err)

	got, ok := clientFS.Contents("local.bin")
	require.True(t, ok)
	assert.Equal(t, "payload bytes", string(got))
}
