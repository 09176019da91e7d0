package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rob-gra/synchrophasor-timesync/internal/clog"
	"github.com/rob-gra/synchrophasor-timesync/offsync/server"
	"github.com/rob-gra/synchrophasor-timesync/offsync/transport"
	"github.com/rob-gra/synchrophasor-timesync/synframe"
)

// readTimeout bounds how long the daemon waits for a single reply
// before counting the round trip as lost and moving on to the next
// resync tick.
const readTimeout = 2 * time.Second

// Client is the running sync daemon: it owns a connected socket to
// the offset service and the Damper that holds the resulting clock
// offset.
type Client struct {
	cfg    Config
	sock   *transport.Socket
	damper *Damper
	log    clog.Clog
}

// Dial connects to the offset service named by cfg.Addr.
func Dial(cfg Config) (*Client, error) {
	if err := cfg.Valid(); err != nil {
		return nil, err
	}
	sock, err := transport.Dial(cfg.Addr)
	if err != nil {
		return nil, err
	}
	return &Client{
		cfg:    cfg,
		sock:   sock,
		damper: NewDamper(),
		log:    clog.New("[synclient] "),
	}, nil
}

// Offset returns the daemon's owned Damper, whose OffsetSeconds is
// safe to read from any goroutine.
func (c *Client) Offset() *Damper {
	return c.damper
}

// Close releases the underlying socket.
func (c *Client) Close() error {
	return c.sock.Close()
}

// Run drives the sync loop until ctx is cancelled or cfg.Count sync
// packets have been exchanged (0 means unlimited). Each iteration
// sends a header frame stamped with the local clock plus the Damper's
// current offset, measures
// the round trip, and folds the server's correction into the Damper.
func (c *Client) Run(ctx context.Context) error {
	interval := 5 * time.Second
	sent := 0
	for {
		if c.cfg.Count > 0 && sent >= c.cfg.Count {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		nextInterval, err := c.syncOnce()
		sent++
		if err != nil {
			c.log.Warn("sync round trip failed: %v", err)
		} else {
			interval = nextInterval
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

func (c *Client) syncOnce() (time.Duration, error) {
	now := time.Now().Add(time.Duration(c.damper.OffsetSeconds() * float64(time.Second)))
	frasec, err := synframe.PackFrasec(uint32(now.Nanosecond()/1000), synframe.FrasecFlags{})
	if err != nil {
		return 0, err
	}

	payload, err := synframe.EncodeHeaderFrame(synframe.HeaderFrame{
		IDCode: c.cfg.Mode.IDCode(),
		SOC:    uint32(now.Unix()),
		Frasec: frasec,
	})
	if err != nil {
		return 0, err
	}

	sendTime := time.Now()
	if err := c.sock.Write(payload); err != nil {
		return 0, err
	}

	raw, err := c.sock.ReadWithDeadline(time.Now().Add(readTimeout))
	if err != nil {
		return 0, err
	}
	rtt := time.Since(sendTime)

	var reply server.CorrectionReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return 0, fmt.Errorf("decode correction reply: %w", err)
	}

	return c.damper.Apply(reply.CorrectionUs, rtt.Microseconds()), nil
}
