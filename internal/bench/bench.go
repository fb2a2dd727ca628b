// Package bench drives slim locks under contention and measures how many
// acquisitions a set of workers completes in a fixed time.
package bench

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/llxisdsh/slim"
	"github.com/llxisdsh/slim/internal/opt"
)

const (
	ModeLock      = "lock"
	ModeReentrant = "reentrant"
	ModeAny       = "any"
	ModeAll       = "all"
)

var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrExclusion     = errors.New("mutual exclusion violated")
)

// Config describes one run.
type Config struct {
	Mode string
	// Workers is the number of goroutines contending for the lock.
	Workers int
	// SpinCount is passed to every lock constructor.
	SpinCount int
	Duration  time.Duration
	// Probability is the percentage of critical sections that spin for a
	// while before releasing.
	Probability int
	// Timeout bounds each acquisition; zero waits forever.
	Timeout time.Duration
}

// DefaultConfig mirrors the command's flag defaults.
func DefaultConfig() Config {
	return Config{
		Mode:        ModeLock,
		Workers:     4,
		SpinCount:   200,
		Duration:    time.Second,
		Probability: 25,
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var merr error

	switch c.Mode {
	case ModeLock, ModeReentrant, ModeAny, ModeAll:
	default:
		merr = multierror.Append(merr, fmt.Errorf("unknown mode %q", c.Mode))
	}
	if c.Workers < 1 {
		merr = multierror.Append(merr, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.SpinCount < 0 {
		merr = multierror.Append(merr, fmt.Errorf("spin count must not be negative, got %d", c.SpinCount))
	}
	if c.Duration <= 0 {
		merr = multierror.Append(merr, fmt.Errorf("duration must be positive, got %v", c.Duration))
	}
	if c.Probability < 0 || c.Probability > 100 {
		merr = multierror.Append(merr, fmt.Errorf("probability must be within [0, 100], got %d", c.Probability))
	}
	if c.Timeout < 0 {
		merr = multierror.Append(merr, fmt.Errorf("timeout must not be negative, got %v", c.Timeout))
	}
	// Workers in WaitAll may each hold one lock while queued on the other.
	if c.Mode == ModeAll && c.Timeout == 0 {
		merr = multierror.Append(merr, errors.New("mode all needs a positive timeout"))
	}

	if merr != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, merr)
	}

	return nil
}

// Result is the outcome of Run.
type Result struct {
	PerWorker    []uint64
	Acquisitions uint64
	Timeouts     uint64
	Elapsed      time.Duration
}

// UnitCost returns the elapsed time per acquisition.
func (r Result) UnitCost() time.Duration {
	if r.Acquisitions == 0 {
		return 0
	}
	return r.Elapsed / time.Duration(r.Acquisitions)
}

// target is one lock setup under test. acquire returns the indexes of the
// locks it now holds; release gives them back.
type target interface {
	acquire(w int, cancel slim.CancelArgs) ([]int, slim.Outcome)
	release(w int, held []int) error
}

// Run starts cfg.Workers goroutines that acquire and release the
// configured locks until cfg.Duration elapses or ctx is done.
func Run(ctx context.Context, cfg Config) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}

	tgt := newTarget(cfg)
	counts := make([]opt.Counter_, cfg.Workers)
	var timeouts atomic.Uint64
	// holders[i] counts the workers inside lock i.
	var holders [2]atomic.Int32

	stop := slim.NewAlerter()
	detach := stop.AlertOnDone(ctx)
	defer detach()

	cancel := slim.CancelArgs{Timeout: cfg.Timeout, Alerter: stop}
	start := slim.NewCountDownLatch(1)
	ready := slim.NewCountDownLatch(cfg.Workers)

	g := &errgroup.Group{}
	for w := range cfg.Workers {
		g.Go(func() error {
			rnd := rand.New(rand.NewPCG(uint64(w), uint64(time.Now().UnixNano())))
			ready.Signal()
			start.Wait()

			for !stop.IsSet() {
				held, o := tgt.acquire(w, cancel)
				switch o {
				case slim.Success:
				case slim.Timeout:
					timeouts.Add(1)
					continue
				default:
					return nil
				}

				for _, i := range held {
					if holders[i].Add(1) != 1 {
						stop.Set()
						return fmt.Errorf("%w: lock %d, worker %d", ErrExclusion, i, w)
					}
				}
				atomic.AddUintptr(&counts[w].C, 1)
				if rnd.IntN(100) < cfg.Probability {
					for range 64 + rnd.IntN(64) {
						if stop.IsSet() {
							break
						}
					}
				}
				for _, i := range held {
					holders[i].Add(-1)
				}

				if err := tgt.release(w, held); err != nil {
					stop.Set()
					return err
				}
			}
			return nil
		})
	}

	ready.Wait()
	slog.Debug("workers ready", "mode", cfg.Mode, "workers", cfg.Workers)
	began := time.Now()
	start.Signal()
	timer := time.AfterFunc(cfg.Duration, func() { stop.Set() })
	err := g.Wait()
	timer.Stop()

	res := Result{
		PerWorker: make([]uint64, cfg.Workers),
		Timeouts:  timeouts.Load(),
		Elapsed:   time.Since(began),
	}
	for w := range counts {
		n := uint64(atomic.LoadUintptr(&counts[w].C))
		res.PerWorker[w] = n
		res.Acquisitions += n
	}
	return res, err
}

func newTarget(cfg Config) target {
	switch cfg.Mode {
	case ModeReentrant:
		owners := make([]slim.Owner, cfg.Workers)
		for i := range owners {
			owners[i] = slim.NewOwner()
		}
		return &reentrantTarget{l: slim.NewReentrantLock(cfg.SpinCount), owners: owners}
	case ModeAny:
		return &anyTarget{locks: [2]*slim.FairLock{slim.NewFairLock(cfg.SpinCount), slim.NewFairLock(cfg.SpinCount)}}
	case ModeAll:
		return &allTarget{anyTarget{locks: [2]*slim.FairLock{slim.NewFairLock(cfg.SpinCount), slim.NewFairLock(cfg.SpinCount)}}}
	default:
		return &lockTarget{l: slim.NewFairLock(cfg.SpinCount)}
	}
}

var only0 = []int{0}

type lockTarget struct {
	l *slim.FairLock
}

func (t *lockTarget) acquire(_ int, cancel slim.CancelArgs) ([]int, slim.Outcome) {
	return only0, t.l.WaitOne(cancel)
}

func (t *lockTarget) release(_ int, _ []int) error {
	return t.l.Exit()
}

type reentrantTarget struct {
	l      *slim.ReentrantLock
	owners []slim.Owner
}

func (t *reentrantTarget) acquire(w int, cancel slim.CancelArgs) ([]int, slim.Outcome) {
	o := t.owners[w]
	if out := t.l.WaitOne(o, cancel); out != slim.Success {
		return nil, out
	}
	// Nested entry never blocks for the owner.
	t.l.Enter(o)
	return only0, slim.Success
}

func (t *reentrantTarget) release(w int, _ []int) error {
	o := t.owners[w]
	if err := t.l.Exit(o); err != nil {
		return err
	}
	return t.l.Exit(o)
}

type anyTarget struct {
	locks [2]*slim.FairLock
}

func (t *anyTarget) acquire(w int, cancel slim.CancelArgs) ([]int, slim.Outcome) {
	// Alternate the preferred lock so both see traffic.
	first := w & 1
	ws := []slim.Waitable{t.locks[first], t.locks[1-first]}
	i, o := slim.WaitAny(ws, cancel)
	if o != slim.Success {
		return nil, o
	}
	if i == 0 {
		return []int{first}, o
	}
	return []int{1 - first}, o
}

func (t *anyTarget) release(_ int, held []int) error {
	var merr error
	for _, i := range held {
		if err := t.locks[i].Exit(); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return merr
}

type allTarget struct {
	anyTarget
}

var both = []int{0, 1}

func (t *allTarget) acquire(_ int, cancel slim.CancelArgs) ([]int, slim.Outcome) {
	o := slim.WaitAll([]slim.Waitable{t.locks[0], t.locks[1]}, cancel)
	if o != slim.Success {
		return nil, o
	}
	return both, o
}
