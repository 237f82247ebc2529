// Package producer implements the cadence loop (spec component C6): on a
// fixed wall-clock cadence, take one sensor reading and enqueue it as a
// pair of messages (save_locally, post_data) sharing the same blob but
// carrying distinct message ids.
package producer

import (
	"context"
	"log/slog"
	"time"

	"github.com/RUBclim/vpf-730/internal/handlers"
	"github.com/RUBclim/vpf-730/internal/queue"
	"github.com/RUBclim/vpf-730/internal/sensor"
	"github.com/RUBclim/vpf-730/internal/types"
)

// DefaultCadence is the original daemon's measurement cadence: every 5th
// minute, at second 0.
const DefaultCadence = 5 * time.Minute

// DefaultTick is how often the Producer checks the wall clock against
// Cadence; it must be well under a minute so the second==0 gate isn't
// missed.
const DefaultTick = time.Second

// Producer samples src on a wall-clock cadence and enqueues the reading
// as both a save_locally and a post_data message.
type Producer struct {
	queue   *queue.Queue
	src     sensor.Source
	log     *slog.Logger
	cadence time.Duration
	tick    time.Duration

	lastFired time.Time
}

// New builds a Producer. log defaults to slog.Default() if nil.
func New(q *queue.Queue, src sensor.Source, log *slog.Logger, cadence time.Duration) *Producer {
	if log == nil {
		log = slog.Default()
	}
	if cadence <= 0 {
		cadence = DefaultCadence
	}
	return &Producer{queue: q, src: src, log: log, cadence: cadence, tick: DefaultTick}
}

// Run blocks, sampling on cadence until ctx is cancelled.
func (p *Producer) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			p.maybeFire(ctx, now.UTC())
		}
	}
}

func (p *Producer) maybeFire(ctx context.Context, now time.Time) {
	if !p.due(now) {
		return
	}
	p.lastFired = now

	m, err := p.src.Measure()
	if err != nil {
		p.log.Error("producer: measure failed", "error", err)
		return
	}
	if m == nil {
		// Sensor read timed out this tick; the original daemon treats this
		// as "no reading available" rather than an error.
		p.log.Warn("producer: sensor read timed out, skipping this cadence")
		return
	}

	if err := p.enqueue(ctx, *m); err != nil {
		p.log.Error("producer: enqueue failed", "error", err)
	}
}

// due reports whether now falls on the cadence boundary (minute % cadence
// == 0, second == 0) and this is the first tick to observe that boundary
// (lastFired guards against firing twice within the same zero-second
// window when the 1s ticker and system clock drift against each other).
func (p *Producer) due(now time.Time) bool {
	cadenceMinutes := int(p.cadence / time.Minute)
	if cadenceMinutes <= 0 {
		cadenceMinutes = 1
	}
	if now.Minute()%cadenceMinutes != 0 || now.Second() != 0 {
		return false
	}
	return now.Truncate(time.Minute) != p.lastFired.Truncate(time.Minute) || p.lastFired.IsZero()
}

func (p *Producer) enqueue(ctx context.Context, m types.Measurement) error {
	local := types.NewMessage(handlers.TaskSaveLocally, m)
	post := types.NewMessage(handlers.TaskPostData, m)

	if _, err := p.queue.Put(ctx, local, queue.RouteQueue); err != nil {
		return err
	}
	if _, err := p.queue.Put(ctx, post, queue.RouteQueue); err != nil {
		return err
	}

	p.log.Info("producer: enqueued measurement", "timestamp", m.Timestamp, "sensor_id", m.SensorID)
	return nil
}
