package engine

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/handlex/internal/db/models"
	"github.com/abdoElHodaky/handlex/pkg/errors"
)

// Router owns the per-symbol processors and the workers that drive them.
// Unknown symbols are a configuration error and fail synchronously.
type Router struct {
	processors map[string]*Processor
	storage    Storage
	logger     *zap.Logger
	inboxSize  int

	// mu serializes lifecycle against enqueues: Submit and Cancel hold
	// the read side while enqueuing so Shutdown cannot close an inbox
	// under an in-flight send.
	mu      sync.RWMutex
	started bool
	closed  bool
	wg      sync.WaitGroup
}

// NewRouter creates a router for a fixed symbol list
func NewRouter(storage Storage, symbols []string, inboxSize int, logger *zap.Logger) *Router {
	r := &Router{
		processors: make(map[string]*Processor, len(symbols)),
		storage:    storage,
		logger:     logger,
		inboxSize:  inboxSize,
	}
	for _, symbol := range symbols {
		r.processors[symbol] = NewProcessor(symbol, storage, inboxSize, logger)
	}
	return r
}

// Start rebuilds every book from durable state and launches one worker
// per processor. No traffic is accepted until rebuild completes.
func (r *Router) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	for symbol, proc := range r.processors {
		if err := proc.Rebuild(ctx); err != nil {
			return errors.Wrapf(err, errors.ErrDatabaseError, "rebuild book for %s", symbol)
		}
	}
	for _, proc := range r.processors {
		proc := proc
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			proc.Run(ctx)
		}()
	}
	r.started = true
	r.logger.Info("Order router started", zap.Int("symbols", len(r.processors)))
	return nil
}

// Shutdown stops accepting messages, lets each processor drain its inbox
// and waits for the workers to exit.
func (r *Router) Shutdown() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for _, proc := range r.processors {
		proc.close()
	}
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Info("Order router stopped")
}

func (r *Router) processor(symbol string) (*Processor, error) {
	proc, ok := r.processors[symbol]
	if !ok {
		return nil, errors.Newf(errors.ErrSymbolNotFound, "no processor for symbol %s", symbol)
	}
	return proc, nil
}

// Submit routes a new order to its symbol processor
func (r *Router) Submit(ctx context.Context, orderID uuid.UUID, symbol string) error {
	proc, err := r.processor(symbol)
	if err != nil {
		return err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return errors.New(errors.ErrInternalError, "router is shut down")
	}
	return proc.Submit(ctx, orderID)
}

// Cancel routes a cancellation to its symbol processor
func (r *Router) Cancel(ctx context.Context, orderID uuid.UUID, symbol string, reason models.CancelReason) error {
	proc, err := r.processor(symbol)
	if err != nil {
		return err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return errors.New(errors.ErrInternalError, "router is shut down")
	}
	return proc.Cancel(ctx, orderID, reason)
}

// Book returns the depth snapshot for a symbol
func (r *Router) Book(symbol string) (Snapshot, error) {
	proc, err := r.processor(symbol)
	if err != nil {
		return Snapshot{}, err
	}
	return proc.BookSnapshot(), nil
}

// Books returns depth snapshots for every symbol
func (r *Router) Books() map[string]Snapshot {
	books := make(map[string]Snapshot, len(r.processors))
	for symbol, proc := range r.processors {
		books[symbol] = proc.BookSnapshot()
	}
	return books
}

// BookState returns the top of book for a symbol
func (r *Router) BookState(symbol string) (BookState, error) {
	proc, err := r.processor(symbol)
	if err != nil {
		return BookState{}, err
	}
	return proc.BookState(), nil
}

// LastPrice returns the cached last trade price for a symbol
func (r *Router) LastPrice(symbol string) (*int64, error) {
	proc, err := r.processor(symbol)
	if err != nil {
		return nil, err
	}
	return proc.LastPrice(), nil
}

// Symbols lists the configured symbols
func (r *Router) Symbols() []string {
	symbols := make([]string, 0, len(r.processors))
	for symbol := range r.processors {
		symbols = append(symbols, symbol)
	}
	return symbols
}
