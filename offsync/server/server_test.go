package server

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rob-gra/synchrophasor-timesync/synframe"
)

func startTestServer(t *testing.T) (*Server, *net.UDPAddr) {
	t.Helper()
	cfg := Config{Addr: "127.0.0.1:0", BiasPacket: 3}
	require.NoError(t, cfg.Valid())

	srv, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	addr := srv.sock.LocalAddr().(*net.UDPAddr)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Run(ctx)

	return srv, addr
}

func sendSyncPacket(t *testing.T, conn *net.UDPConn, idCode uint16) CorrectionReply {
	t.Helper()
	now := time.Now()
	frasec, err := synframe.PackFrasec(uint32(now.Nanosecond()/1000), synframe.FrasecFlags{})
	require.NoError(t, err)

	encoded, err := synframe.EncodeHeaderFrame(synframe.HeaderFrame{
		IDCode: idCode,
		SOC:    uint32(now.Unix()),
		Frasec: frasec,
	})
	require.NoError(t, err)

	_, err = conn.Write(encoded)
	require.NoError(t, err)

	buf := make([]byte, 2048)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	require.NoError(t, err)

	var reply CorrectionReply
	require.NoError(t, json.Unmarshal(buf[:n], &reply))
	return reply
}

func TestServerRespondsToRawScheme(t *testing.T) {
	_, addr := startTestServer(t)
	conn, err := net.DialUDP("udp", nil, addr)
	require.NoError(t, err)
	defer conn.Close()

	reply := sendSyncPacket(t, conn, 1)
	require.Equal(t, "raw", reply.Scheme)
}

func TestServerKeepsEWMASchemePastBiasPacket(t *testing.T) {
	_, addr := startTestServer(t)
	conn, err := net.DialUDP("udp", nil, addr)
	require.NoError(t, err)
	defer conn.Close()

	var last CorrectionReply
	for i := 0; i < 5; i++ {
		last = sendSyncPacket(t, conn, 2) // ewma
	}
	require.Equal(t, "ewma", last.Scheme)
}

// A canceled context must unblock the receive loop promptly even with
// no inbound traffic and no ReceiveTimeout configured, matching the
// shutdown requirement that SIGINT stops the loop without waiting on a
// client.
func TestServerRunStopsPromptlyOnCancelWithNoTraffic(t *testing.T) {
	cfg := Config{Addr: "127.0.0.1:0"}
	require.NoError(t, cfg.Valid())
	require.Equal(t, time.Duration(0), cfg.ReceiveTimeout)

	srv, err := New(cfg)
	require.NoError(t, err)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestServerDropsMalformedDatagramAndStaysLive(t *testing.T) {
	_, addr := startTestServer(t)
	conn, err := net.DialUDP("udp", nil, addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte{0x00, 0x01, 0x02})
	require.NoError(t, err)

	// the server should still answer a well-formed packet afterward.
	reply := sendSyncPacket(t, conn, 1)
	require.Equal(t, "raw", reply.Scheme)
}
