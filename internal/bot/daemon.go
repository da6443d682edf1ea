// Package bot runs the PostPilot daemon: it connects a chat adapter, pumps
// inbound events to the dialogue engine, and evicts idle sessions on a
// schedule.
package bot

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/avbuyanov/postpilot/internal/chat"
)

// workerBuffer is the per-chat event queue capacity. Events for a chat
// beyond this while its worker is busy are dropped with a log line.
const workerBuffer = 16

// defaultWorkerIdle bounds how long a chat's worker may sit with an empty
// queue before it retires, when no idle timeout is configured.
const defaultWorkerIdle = 10 * time.Minute

// EventHandler is the engine surface the daemon drives.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev chat.InboundEvent)
	EvictIdle(maxIdle time.Duration) int
	SessionCount() int
}

// Daemon is the main bot process.
type Daemon struct {
	adapter     chat.Adapter
	engine      EventHandler
	idleTimeout time.Duration
	evictEvery  string
	out         io.Writer

	mu      sync.Mutex
	workers map[string]chan chat.InboundEvent
	wg      sync.WaitGroup
}

// DaemonOpts holds parameters for creating a new Daemon.
type DaemonOpts struct {
	Adapter     chat.Adapter
	Engine      EventHandler
	IdleTimeout time.Duration // sessions idle longer than this are evicted
	EvictEvery  string        // cron expression for the eviction sweep
	Out         io.Writer     // defaults to os.Stdout
}

// NewDaemon creates a Daemon with the given options.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.Adapter == nil {
		return nil, fmt.Errorf("bot: adapter is required")
	}
	if opts.Engine == nil {
		return nil, fmt.Errorf("bot: engine is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Daemon{
		adapter:     opts.Adapter,
		engine:      opts.Engine,
		idleTimeout: opts.IdleTimeout,
		evictEvery:  opts.EvictEvery,
		out:         out,
		workers:     make(map[string]chan chat.InboundEvent),
	}, nil
}

// Run starts the daemon. It connects the adapter, starts the eviction
// scheduler, and pumps inbound events until the context is cancelled.
// Events are serialized per chat so a slow generation for one user never
// reorders or blocks another user's dialogue.
func (d *Daemon) Run(ctx context.Context) error {
	fmt.Fprintf(d.out, "PostPilot connecting...\n")
	if err := d.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("bot: connect: %w", err)
	}

	inbound, err := d.adapter.Listen(ctx)
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("bot: listen: %w", err)
	}

	if d.idleTimeout > 0 && d.evictEvery != "" {
		go d.runEvictionScheduler(ctx)
	}

	fmt.Fprintf(d.out, "PostPilot online\n")

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(d.out, "PostPilot shutting down...\n")
			d.shutdownWorkers()
			if err := d.adapter.Close(); err != nil {
				log.Printf("bot: close adapter: %v", err)
			}
			fmt.Fprintf(d.out, "PostPilot stopped\n")
			return nil

		case ev, ok := <-inbound:
			if !ok {
				fmt.Fprintf(d.out, "PostPilot inbound channel closed\n")
				d.shutdownWorkers()
				return nil
			}
			d.dispatch(ctx, ev)
		}
	}
}

// dispatch routes an event to the chat's worker goroutine, creating one on
// first contact. Each worker processes its chat's events in order. The
// enqueue happens under the map lock so a worker retiring concurrently
// either sees the event and stays, or is already gone and gets replaced.
func (d *Daemon) dispatch(ctx context.Context, ev chat.InboundEvent) {
	if ev.ChatID == "" {
		return
	}

	d.mu.Lock()
	queue, ok := d.workers[ev.ChatID]
	if !ok {
		queue = make(chan chat.InboundEvent, workerBuffer)
		d.workers[ev.ChatID] = queue
		d.wg.Add(1)
		go d.runWorker(ctx, ev.ChatID, queue)
	}
	dropped := false
	select {
	case queue <- ev:
	default:
		dropped = true
	}
	d.mu.Unlock()

	if dropped {
		log.Printf("bot: chat %s queue full, dropping %s event", ev.ChatID, ev.Kind)
	}
}

// workerIdle is the empty-queue lifetime of a chat worker.
func (d *Daemon) workerIdle() time.Duration {
	if d.idleTimeout > 0 {
		return d.idleTimeout
	}
	return defaultWorkerIdle
}

// runWorker drains one chat's event queue until the queue is closed, the
// context is cancelled, or the queue has sat empty for the idle cutoff.
func (d *Daemon) runWorker(ctx context.Context, chatID string, queue chan chat.InboundEvent) {
	defer d.wg.Done()
	idle := time.NewTimer(d.workerIdle())
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-queue:
			if !ok {
				return
			}
			d.engine.HandleEvent(ctx, ev)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(d.workerIdle())
		case <-idle.C:
			if d.retireWorker(chatID, queue) {
				return
			}
			idle.Reset(d.workerIdle())
		}
	}
}

// retireWorker removes an idle worker's queue from the map. It reports
// false when an event slipped into the queue before the lock was taken;
// the worker then stays to drain it.
func (d *Daemon) retireWorker(chatID string, queue chan chat.InboundEvent) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(queue) > 0 {
		return false
	}
	if d.workers[chatID] == queue {
		delete(d.workers, chatID)
	}
	return true
}

// shutdownWorkers closes all worker queues and waits for them to drain.
func (d *Daemon) shutdownWorkers() {
	d.mu.Lock()
	for id, queue := range d.workers {
		close(queue)
		delete(d.workers, id)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// runEvictionScheduler fires the idle-session sweep on the configured cron
// schedule.
func (d *Daemon) runEvictionScheduler(ctx context.Context) {
	wait := nextCronDuration(d.evictEvery)
	if wait <= 0 {
		log.Printf("bot: bad eviction schedule %q, sweep disabled", d.evictEvery)
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if n := d.engine.EvictIdle(d.idleTimeout); n > 0 {
				fmt.Fprintf(d.out, "bot: evicted %d idle session(s), %d active\n",
					n, d.engine.SessionCount())
			}
			if wait = nextCronDuration(d.evictEvery); wait <= 0 {
				return
			}
			timer.Reset(wait)
		}
	}
}
