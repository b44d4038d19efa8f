// Package transmit ships assembled packets to the ingest server without ever
// blocking the processing loop: bounded retry with exponential backoff, then
// a bounded local spool with a drop-oldest policy.
package transmit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/magicallyoffline/DesertSignals/pkg/models"
)

// Options tune delivery behavior.
type Options struct {
	// QueueCapacity bounds packets waiting for the delivery worker.
	QueueCapacity int
	// SpoolCapacity bounds packets kept after delivery gave up; the oldest
	// spooled packet is dropped on overflow.
	SpoolCapacity int
	// MaxElapsed bounds the per-packet retry window.
	MaxElapsed time.Duration
	// Client defaults to a client with a sane timeout.
	Client *http.Client
}

// Transmitter POSTs packets as JSON to the ingest URL. Enqueue never blocks;
// a single worker owns delivery order and the spool.
type Transmitter struct {
	url     string
	opts    Options
	queue   chan *models.DataPacket
	spool   []*models.DataPacket
	dropped atomic.Uint64
}

// New creates a transmitter. Run must be started for delivery to happen.
func New(url string, opts Options) *Transmitter {
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = 8
	}
	if opts.SpoolCapacity <= 0 {
		opts.SpoolCapacity = 64
	}
	if opts.MaxElapsed <= 0 {
		opts.MaxElapsed = 30 * time.Second
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Transmitter{
		url:   url,
		opts:  opts,
		queue: make(chan *models.DataPacket, opts.QueueCapacity),
	}
}

// Enqueue hands a packet to the delivery worker. When the queue is full the
// oldest waiting packet is dropped so the processing loop never blocks.
func (t *Transmitter) Enqueue(pkt *models.DataPacket) {
	for {
		select {
		case t.queue <- pkt:
			return
		default:
		}
		select {
		case old := <-t.queue:
			t.dropped.Add(1)
			log.Warn().Str("packetID", old.ID).Msg("Transmit queue full, dropped oldest packet")
		default:
		}
	}
}

// Dropped returns the count of packets discarded by queue or spool overflow.
func (t *Transmitter) Dropped() uint64 { return t.dropped.Load() }

// Spooled returns how many packets are currently buffered after failed
// delivery. Only meaningful from the worker's own goroutine or after Run
// returns; exposed for tests and shutdown reporting.
func (t *Transmitter) Spooled() int { return len(t.spool) }

// Run delivers packets until ctx is cancelled.
func (t *Transmitter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			if n := len(t.spool); n > 0 {
				log.Warn().Int("spooled", n).Msg("Shutting down with undelivered packets")
			}
			return ctx.Err()
		case pkt := <-t.queue:
			t.deliver(ctx, pkt)
		}
	}
}

// deliver flushes any spooled packets first to preserve ordering, then the
// new packet. Failures push onto the bounded spool.
func (t *Transmitter) deliver(ctx context.Context, pkt *models.DataPacket) {
	if len(t.spool) > 0 {
		remaining := t.spool[:0]
		for i, spooled := range t.spool {
			if err := t.send(ctx, spooled); err != nil {
				// Still unreachable; keep the rest spooled in order.
				remaining = append(remaining, t.spool[i:]...)
				break
			}
		}
		t.spool = remaining
	}

	if err := t.send(ctx, pkt); err != nil {
		log.Error().Err(err).Str("packetID", pkt.ID).Msg("Delivery failed, spooling packet")
		t.spoolPacket(pkt)
	}
}

func (t *Transmitter) spoolPacket(pkt *models.DataPacket) {
	if len(t.spool) >= t.opts.SpoolCapacity {
		t.dropped.Add(1)
		log.Warn().Str("packetID", t.spool[0].ID).Msg("Spool full, dropped oldest packet")
		t.spool = t.spool[1:]
	}
	t.spool = append(t.spool, pkt)
}

// send POSTs one packet with bounded exponential backoff.
func (t *Transmitter) send(ctx context.Context, pkt *models.DataPacket) error {
	body, err := json.Marshal(pkt)
	if err != nil {
		return fmt.Errorf("transmit: encode packet %s: %w", pkt.ID, err)
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := t.opts.Client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("transmit: ingest returned %s", resp.Status)
		}
		if resp.StatusCode >= 400 {
			// Client errors will not heal with retries.
			return backoff.Permanent(fmt.Errorf("transmit: ingest rejected packet: %s", resp.Status))
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = t.opts.MaxElapsed
	return backoff.Retry(op, backoff.WithContext(policy, ctx))
}
