// Package server implements the offset service's receive loop: it
// reads C37.118-framed sync packets (reusing the synframe header
// frame shape, per original_source/udp_packet_crafter_class.py's
// 16-byte struct.pack('!HHHIIH', ...) layout, which is exactly the
// codec's empty-payload header frame), runs each client's sample
// through its estimator trio, and replies with a scheme-tagged JSON
// correction — grounded on original_source/udp_server_main.py's main
// loop.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync/atomic"
	"time"

	"github.com/rob-gra/synchrophasor-timesync/internal/clog"
	"github.com/rob-gra/synchrophasor-timesync/offsync/estimator"
	"github.com/rob-gra/synchrophasor-timesync/offsync/transport"
	"github.com/rob-gra/synchrophasor-timesync/synframe"
)

// Server runs the offset service's single cooperative receive loop.
type Server struct {
	cfg      Config
	sock     *transport.Socket
	registry *estimator.Registry
	snapshot *SnapshotWriter
	log      clog.Clog

	ackNum     int64
	biasByPeer map[string]float64

	crcErrors        uint64
	truncatedErrors  uint64
	structuralErrors uint64
	unknownTypeCount uint64
}

// New binds a Server to cfg.Addr. cfg must already have passed Valid.
func New(cfg Config) (*Server, error) {
	sock, err := transport.Bind(cfg.Addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:        cfg,
		sock:       sock,
		registry:   estimator.NewRegistry(cfg.RegistryCapacity),
		snapshot:   NewSnapshotWriter(cfg.SnapshotPath),
		log:        clog.New("[offsync-server] "),
		biasByPeer: make(map[string]float64),
	}, nil
}

// Close releases the bound socket.
func (s *Server) Close() error {
	return s.sock.Close()
}

// LocalAddr returns the socket's bound local address.
func (s *Server) LocalAddr() net.Addr {
	return s.sock.LocalAddr()
}

// Run processes datagrams until ctx is canceled. Per the error
// taxonomy, a malformed datagram is dropped and logged; the loop never
// aborts on a single client's bad packet. On cancellation the socket is
// closed to force an in-flight or future blocking read to return
// immediately, which keeps the loop shutdown-responsive even when
// cfg.ReceiveTimeout is left at its default of "no timeout". A final
// snapshot is written before returning.
func (s *Server) Run(ctx context.Context) error {
	defer s.snapshot.Write(s.registry)

	stopClosing := make(chan struct{})
	defer close(stopClosing)
	go func() {
		select {
		case <-ctx.Done():
			s.sock.Close()
		case <-stopClosing:
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		dg, err := s.sock.Receive(ctx, s.cfg.ReceiveTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.log.Warn("receive error: %v", err)
			continue
		}

		s.handleDatagram(dg)

		if s.cfg.SnapshotEvery > 0 && atomic.LoadInt64(&s.ackNum)%int64(s.cfg.SnapshotEvery) == 0 {
			s.snapshot.Write(s.registry)
		}
	}
}

func (s *Server) handleDatagram(dg transport.Datagram) {
	hf, err := synframe.DecodeHeaderFrame(dg.Payload)
	if err != nil {
		s.countError(err)
		return
	}

	peer := dg.From.String()
	scheme := SchemeFromIDCode(hf.IDCode)

	serverSOC, serverFracUs := serverClockNow()
	clientFracUs, _ := synframe.UnpackFrasec(hf.Frasec)
	sample := estimator.ComputeSample(serverSOC, serverFracUs, hf.SOC, int64(clientFracUs))

	cs := s.registry.Get(peer)
	if s.cfg.EWMAAlpha > 0 {
		cs.Ewma.Alpha = s.cfg.EWMAAlpha
	}
	update := cs.Observe(float64(sample))

	if !s.cfg.HideRaw || scheme != SchemeRaw {
		s.log.Debug("peer %s scheme %s packet #%d sample %.0fus", peer, scheme, cs.PacketCount, sample)
	}

	if cs.PacketCount == s.cfg.BiasPacket {
		s.biasByPeer[peer] = float64(sample)
	}

	chosen := chooseCorrection(scheme, sample, update)
	if scheme.biased() {
		if bias, ok := s.biasByPeer[peer]; ok {
			chosen -= bias
		}
	}

	soc, fracUs := serverClockNow()
	reply := CorrectionReply{
		AckNum:            atomic.AddInt64(&s.ackNum, 1) - 1,
		Scheme:            scheme.String(),
		CorrectionUs:      int64(chosen),
		ServerTimeSOC:     soc,
		ServerTimeFracSec: fracUs,
	}
	raw, err := json.Marshal(reply)
	if err != nil {
		s.log.Error("marshal correction reply: %v", err)
		return
	}
	if err := s.sock.Send(raw, dg.From); err != nil {
		return // SendError policy: logged by Send, never aborts.
	}
}

func chooseCorrection(scheme Scheme, raw float64, u estimator.Update) float64 {
	switch scheme {
	case SchemeEWMA:
		return u.EWMA
	case SchemeKalman:
		return u.Kalman
	case SchemePID:
		return u.PID
	default:
		return raw
	}
}

func (s *Server) countError(err error) {
	kind, ok := synframe.KindOf(err)
	if !ok {
		s.log.Warn("malformed datagram: %v", err)
		return
	}
	switch kind {
	case synframe.CrcMismatch:
		atomic.AddUint64(&s.crcErrors, 1)
	case synframe.Truncated:
		atomic.AddUint64(&s.truncatedErrors, 1)
	case synframe.StructuralMismatch:
		atomic.AddUint64(&s.structuralErrors, 1)
	case synframe.UnknownFrameType:
		atomic.AddUint64(&s.unknownTypeCount, 1)
	}
	s.log.Warn("dropping malformed sync packet: %v", err)
}

// serverClockNow returns the server's current wall clock as
// (SOC, fraction-of-second in microseconds), the same shape a decoded
// sync packet carries.
func serverClockNow() (soc uint32, fracUs int64) {
	now := time.Now()
	return uint32(now.Unix()), int64(now.Nanosecond() / 1000)
}
