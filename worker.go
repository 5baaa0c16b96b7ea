package webhooks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coregx/webhooks/model"
)

// RetryWorker drives the automatic retry loop. It periodically scans the
// ledger for rows whose scheduled retry time has passed, claims them with a
// compare-and-set, and re-runs the attempt through the dispatcher.
//
// It also rescans for stale pending rows: claims whose attempt never
// recorded an outcome because a worker crashed between claim and write.
// Re-running those is safe because the ledger is the only scheduling state.
//
// Key behaviors:
//   - Due scan excludes deliveries of disabled subscriptions at the query
//   - A lost claim race is not an error; another worker owns the row
//   - Attempts in one batch run through a bounded pool
//
// Thread safety: safe for concurrent use; multiple workers can share one
// database because claims serialize them.
type RetryWorker struct {
	dispatcher   *Dispatcher
	deliveryRepo DeliveryRepository
	logger       Logger
	batchSize    int
	concurrency  int
	staleAfter   time.Duration
}

// NewRetryWorker creates a retry worker with the provided options.
//
// Required options:
//   - WithWorkerDispatcher: the dispatcher whose outcome handling is reused
//   - WithWorkerDeliveryRepository: the ledger to scan
//
// Optional options:
//   - WithWorkerLogger: logger instance (default: NoopLogger)
//   - WithWorkerBatchSize: rows claimed per scan (default: 100)
//   - WithWorkerConcurrency: parallel attempts per batch (default: 10)
//   - WithStaleAfter: age at which a pending row counts as abandoned (default: 5m)
func NewRetryWorker(opts ...WorkerOption) (*RetryWorker, error) {
	w := &RetryWorker{
		logger:      &NoopLogger{},
		batchSize:   100,
		concurrency: 10,
		staleAfter:  5 * time.Minute,
	}

	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply worker option", err)
		}
	}

	if w.dispatcher == nil {
		return nil, NewError(ErrCodeConfiguration, "Dispatcher is required (use WithWorkerDispatcher)")
	}
	if w.deliveryRepo == nil {
		return nil, NewError(ErrCodeConfiguration, "DeliveryRepository is required (use WithWorkerDeliveryRepository)")
	}

	return w, nil
}

// ProcessDueRetries claims and re-attempts deliveries whose retry time has
// passed. Deliveries of disabled subscriptions never show up in the scan;
// they stay scheduled and resume when the subscription is re-enabled.
//
// Returns the number of attempts run. Individual failures are logged and do
// not stop the batch.
func (w *RetryWorker) ProcessDueRetries(ctx context.Context) (int, error) {
	due, err := w.deliveryRepo.FindDueRetries(ctx, time.Now(), w.batchSize)
	if err != nil {
		if IsNoData(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to find due retries: %w", err)
	}

	return w.processBatch(ctx, due, w.claimDue), nil
}

// ProcessStalePending re-claims pending rows whose attempt never finished.
// The attempt number is not bumped; the crashed attempt is simply re-run.
func (w *RetryWorker) ProcessStalePending(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-w.staleAfter)
	stale, err := w.deliveryRepo.FindStalePending(ctx, cutoff, w.batchSize)
	if err != nil {
		if IsNoData(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to find stale pending deliveries: %w", err)
	}

	return w.processBatch(ctx, stale, w.claimStale), nil
}

func (w *RetryWorker) claimDue(ctx context.Context, id int64) (model.Delivery, error) {
	return w.deliveryRepo.ClaimRetry(ctx, id)
}

func (w *RetryWorker) claimStale(ctx context.Context, id int64) (model.Delivery, error) {
	return w.deliveryRepo.ClaimStalePending(ctx, id)
}

// processBatch claims each row and runs the attempts through a bounded pool.
// The batch returns only after every attempt has recorded its outcome.
func (w *RetryWorker) processBatch(ctx context.Context, rows []model.Delivery, claim func(context.Context, int64) (model.Delivery, error)) int {
	var wg sync.WaitGroup
	sem := make(chan struct{}, w.concurrency)
	processed := 0

	for i := range rows {
		claimed, err := claim(ctx, rows[i].ID)
		if err != nil {
			if errors.Is(err, ErrClaimConflict) {
				w.logger.Debugf("Delivery %d claimed elsewhere, skipping", rows[i].ID)
				continue
			}
			w.logger.Errorf("Failed to claim delivery %d: %v", rows[i].ID, err)
			continue
		}
		processed++

		wg.Add(1)
		sem <- struct{}{}
		go func(d model.Delivery) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := w.dispatcher.processClaimed(ctx, d, false); err != nil {
				w.logger.Errorf("Failed to process delivery %d: %v", d.ID, err)
			}
		}(claimed)
	}

	wg.Wait()
	return processed
}

// Run starts the scan loop. It blocks until the context is canceled and
// should typically run in a goroutine.
//
// Example:
//
//	go worker.Run(ctx, 30*time.Second)
func (w *RetryWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.Info("Retry worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Retry worker stopped")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *RetryWorker) tick(ctx context.Context) {
	retried, err := w.ProcessDueRetries(ctx)
	if err != nil {
		w.logger.Errorf("Error processing due retries: %v", err)
	}

	recovered, err := w.ProcessStalePending(ctx)
	if err != nil {
		w.logger.Errorf("Error processing stale pending deliveries: %v", err)
	}

	if retried > 0 || recovered > 0 {
		w.logger.Infof("Scan processed: retries=%d, recovered=%d", retried, recovered)
	}
}
