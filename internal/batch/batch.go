package batch

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/tarcisiozf/dslot/slots"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultChunkSize = 10_000

// ProgressFunc receives the number of identifiers processed so far.
// Calls are serialized and done never decreases.
type ProgressFunc func(done, total int)

type Option func(p *Processor) *Processor

func WithChunkSize(size int) Option {
	return func(p *Processor) *Processor {
		if size > 0 {
			p.chunkSize = size
		}
		return p
	}
}

func WithConcurrency(concurrency int) Option {
	return func(p *Processor) *Processor {
		if concurrency > 0 {
			p.concurrency = concurrency
		}
		return p
	}
}

func WithProgress(fn ProgressFunc) Option {
	return func(p *Processor) *Processor {
		p.progress = fn
		return p
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(p *Processor) *Processor {
		if logger != nil {
			p.logger = logger
		}
		return p
	}
}

// Processor assigns slots to large identifier lists in chunks.
type Processor struct {
	chunkSize   int
	concurrency int
	progress    ProgressFunc
	logger      *zap.Logger
}

func NewProcessor(options ...Option) *Processor {
	p := &Processor{
		chunkSize:   DefaultChunkSize,
		concurrency: runtime.GOMAXPROCS(0),
		logger:      zap.NewNop(),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Run returns one assignment per identifier, in input order.
func (p *Processor) Run(ctx context.Context, alg slots.Algorithm, n int, ids []string) ([]slots.Assignment, error) {
	if !alg.IsValid() {
		return nil, fmt.Errorf("invalid algorithm %q", alg)
	}
	if n <= 0 {
		return nil, slots.ErrInvalidSlotCount
	}

	total := len(ids)
	results := make([]slots.Assignment, total)
	var (
		mutex sync.Mutex
		done  int
	)
	report := func(processed int) {
		mutex.Lock()
		defer mutex.Unlock()
		done += processed
		if p.progress != nil {
			p.progress(done, total)
		}
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(p.concurrency)

	for start := 0; start < total; start += p.chunkSize {
		if egCtx.Err() != nil {
			break
		}
		end := min(start+p.chunkSize, total)
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				slot, err := alg.Assign(ids[i], n)
				if err != nil {
					return fmt.Errorf("assigning slot to %q: %w", ids[i], err)
				}
				results[i] = slots.Assignment{ID: ids[i], Slot: slot}
			}
			report(end - start)
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.logger.Debug("batch assigned",
		zap.String("algorithm", alg.String()),
		zap.Int("slots", n),
		zap.Int("identifiers", total))
	return results, nil
}
