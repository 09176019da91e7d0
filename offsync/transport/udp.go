// Package transport wraps the single UDP datagram socket the offset
// service binds, grounded on original_source/udp_server_class.py's
// UDP_server (bind/recvfrom/sendto) and the teacher's cs104 package's
// bind-then-loop shape over TCP.
package transport

import (
	"context"
	"net"
	"time"

	"github.com/rob-gra/synchrophasor-timesync/internal/clog"
)

// MaxDatagramSize bounds a single received datagram, matching the
// deployment's frame-fits-in-one-UDP-packet assumption.
const MaxDatagramSize = 1024

// Socket is a bound UDP datagram endpoint.
type Socket struct {
	conn *net.UDPConn
	log  clog.Clog
	buf  [MaxDatagramSize]byte
}

// Bind opens and binds a UDP socket at addr ("host:port"). A bind
// failure is the one condition this package reports as fatal to the
// caller; everything else (short reads, send failures) is transient.
func Bind(addr string) (*Socket, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	return &Socket{conn: conn, log: clog.New("[transport] ")}, nil
}

// Dial opens a UDP socket connected to addr, for clients that only
// ever talk to one server endpoint.
func Dial(addr string) (*Socket, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, err
	}
	return &Socket{conn: conn, log: clog.New("[transport] ")}, nil
}

// LocalAddr returns the bound local address.
func (s *Socket) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// Write sends payload on a connected (Dial'd) socket.
func (s *Socket) Write(payload []byte) error {
	_, err := s.conn.Write(payload)
	return err
}

// ReadWithDeadline reads one datagram on a connected socket, bounded
// by deadline (zero value clears any existing deadline).
func (s *Socket) ReadWithDeadline(deadline time.Time) ([]byte, error) {
	s.conn.SetReadDeadline(deadline)
	n, err := s.conn.Read(s.buf[:])
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, s.buf[:n])
	return out, nil
}

// Datagram is one received packet and the endpoint it came from.
type Datagram struct {
	Payload []byte
	From    *net.UDPAddr
}

// Receive blocks for the next datagram. If ctx carries a deadline the
// read is bounded by it; otherwise, when timeout is positive, the read
// is bounded by timeout from now so the caller's receive loop wakes
// periodically to re-check ctx even with no configured deadline. A
// non-positive timeout with a deadline-less ctx blocks indefinitely on
// the read, relying on the caller closing the socket to unblock it on
// cancellation. SendError-class failures are never returned here,
// since a read failure always aborts the caller's iteration instead.
func (s *Socket) Receive(ctx context.Context, timeout time.Duration) (Datagram, error) {
	if deadline, ok := ctx.Deadline(); ok {
		s.conn.SetReadDeadline(deadline)
	} else if timeout > 0 {
		s.conn.SetReadDeadline(time.Now().Add(timeout))
	} else {
		s.conn.SetReadDeadline(time.Time{})
	}
	n, from, err := s.conn.ReadFromUDP(s.buf[:])
	if err != nil {
		return Datagram{}, err
	}
	payload := make([]byte, n)
	copy(payload, s.buf[:n])
	return Datagram{Payload: payload, From: from}, nil
}

// Send writes payload to dst. Failures are logged here and returned;
// they never abort the service (SendError policy).
func (s *Socket) Send(payload []byte, dst *net.UDPAddr) error {
	_, err := s.conn.WriteToUDP(payload, dst)
	if err != nil {
		s.log.Warn("send to %s failed: %v", dst, err)
	}
	return err
}

// Close releases the underlying socket.
func (s *Socket) Close() error {
	return s.conn.Close()
}
