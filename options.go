package webhooks

import (
	"fmt"
	"net/http"
	"time"

	"github.com/coregx/webhooks/backoff"
)

// ExecutorOption configures an HTTPExecutor.
type ExecutorOption func(*HTTPExecutor) error

// WithAttemptTimeout sets the per-attempt timeout for the HTTP executor.
// This is an optional configuration - default is 10 seconds.
//
// The timeout bounds the whole attempt: connect, write, and response read.
func WithAttemptTimeout(timeout time.Duration) ExecutorOption {
	return func(e *HTTPExecutor) error {
		if timeout <= 0 {
			return fmt.Errorf("attempt timeout must be > 0, got %v", timeout)
		}
		e.client.Timeout = timeout
		return nil
	}
}

// WithHTTPClient sets a custom HTTP client for the executor.
// Use this to configure transport details (proxies, TLS, connection pools).
// The client's own timeout applies; WithAttemptTimeout should come after
// this option if both are used.
func WithHTTPClient(client *http.Client) ExecutorOption {
	return func(e *HTTPExecutor) error {
		if client == nil {
			return fmt.Errorf("client cannot be nil")
		}
		e.client = client
		return nil
	}
}

// WithExecutorLogger sets the logger instance for the HTTP executor.
func WithExecutorLogger(logger Logger) ExecutorOption {
	return func(e *HTTPExecutor) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		e.logger = logger
		return nil
	}
}

// DispatcherOption configures a Dispatcher.
// Used with the Options Pattern for flexible service construction.
//
// Example:
//
//	dispatcher, err := webhooks.NewDispatcher(
//	    webhooks.WithDispatcherRepositories(eventRepo, subRepo, deliveryRepo),
//	    webhooks.WithExecutor(executor),
//	    webhooks.WithHealthTracker(health),
//	    webhooks.WithDispatcherLogger(logger),
//	)
type DispatcherOption func(*Dispatcher) error

// WithDispatcherRepositories sets the required repository dependencies for
// the dispatcher. All three repositories are required and must not be nil.
func WithDispatcherRepositories(
	eventRepo EventRepository,
	subscriptionRepo SubscriptionRepository,
	deliveryRepo DeliveryRepository,
) DispatcherOption {
	return func(d *Dispatcher) error {
		if eventRepo == nil {
			return fmt.Errorf("eventRepo cannot be nil")
		}
		if subscriptionRepo == nil {
			return fmt.Errorf("subscriptionRepo cannot be nil")
		}
		if deliveryRepo == nil {
			return fmt.Errorf("deliveryRepo cannot be nil")
		}

		d.eventRepo = eventRepo
		d.subscriptionRepo = subscriptionRepo
		d.deliveryRepo = deliveryRepo
		return nil
	}
}

// WithExecutor sets the delivery attempt executor.
//
// This is a required option for NewDispatcher.
func WithExecutor(executor Executor) DispatcherOption {
	return func(d *Dispatcher) error {
		if executor == nil {
			return fmt.Errorf("executor cannot be nil")
		}
		d.executor = executor
		return nil
	}
}

// WithHealthTracker sets the subscription health tracker.
//
// This is a required option for NewDispatcher.
func WithHealthTracker(health *HealthTracker) DispatcherOption {
	return func(d *Dispatcher) error {
		if health == nil {
			return fmt.Errorf("health tracker cannot be nil")
		}
		d.health = health
		return nil
	}
}

// WithSchedule sets a custom retry schedule for the dispatcher.
// This is an optional configuration - default is backoff.Default()
// (1m, 5m, 15m, 1h, 6h; six attempts total).
func WithSchedule(schedule backoff.Schedule) DispatcherOption {
	return func(d *Dispatcher) error {
		d.schedule = schedule
		return nil
	}
}

// WithDispatcherLogger sets the logger instance for the dispatcher.
func WithDispatcherLogger(logger Logger) DispatcherOption {
	return func(d *Dispatcher) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		d.logger = logger
		return nil
	}
}

// WithMaxConcurrentAttempts bounds the fan-out concurrency of Dispatch.
// This is an optional configuration - default is 10.
func WithMaxConcurrentAttempts(n int) DispatcherOption {
	return func(d *Dispatcher) error {
		if n <= 0 {
			return fmt.Errorf("max concurrent attempts must be > 0, got %d", n)
		}
		d.maxConcurrent = n
		return nil
	}
}

// WithManualRetryInterval sets the minimum interval between manual retries
// of the same delivery. This is an optional configuration - default is one
// per minute per delivery.
func WithManualRetryInterval(interval time.Duration) DispatcherOption {
	return func(d *Dispatcher) error {
		if interval <= 0 {
			return fmt.Errorf("manual retry interval must be > 0, got %v", interval)
		}
		d.retryInterval = interval
		return nil
	}
}

// WorkerOption configures a RetryWorker.
type WorkerOption func(*RetryWorker) error

// WithWorkerDispatcher sets the dispatcher whose outcome handling the worker
// reuses for claimed rows.
//
// This is a required option for NewRetryWorker.
func WithWorkerDispatcher(dispatcher *Dispatcher) WorkerOption {
	return func(w *RetryWorker) error {
		if dispatcher == nil {
			return fmt.Errorf("dispatcher cannot be nil")
		}
		w.dispatcher = dispatcher
		return nil
	}
}

// WithWorkerDeliveryRepository sets the ledger the worker scans.
//
// This is a required option for NewRetryWorker.
func WithWorkerDeliveryRepository(deliveryRepo DeliveryRepository) WorkerOption {
	return func(w *RetryWorker) error {
		if deliveryRepo == nil {
			return fmt.Errorf("deliveryRepo cannot be nil")
		}
		w.deliveryRepo = deliveryRepo
		return nil
	}
}

// WithWorkerLogger sets the logger instance for the retry worker.
func WithWorkerLogger(logger Logger) WorkerOption {
	return func(w *RetryWorker) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		w.logger = logger
		return nil
	}
}

// WithWorkerBatchSize sets the number of ledger rows claimed per scan.
// This is an optional configuration - default is 100.
func WithWorkerBatchSize(size int) WorkerOption {
	return func(w *RetryWorker) error {
		if size <= 0 {
			return fmt.Errorf("batch size must be > 0, got %d", size)
		}
		w.batchSize = size
		return nil
	}
}

// WithWorkerConcurrency bounds how many attempts of one batch run in
// parallel. This is an optional configuration - default is 10.
func WithWorkerConcurrency(n int) WorkerOption {
	return func(w *RetryWorker) error {
		if n <= 0 {
			return fmt.Errorf("concurrency must be > 0, got %d", n)
		}
		w.concurrency = n
		return nil
	}
}

// WithStaleAfter sets how old a pending row must be before the crash
// recovery scan re-claims it. This is an optional configuration - default
// is 5 minutes.
//
// Must exceed the executor's attempt timeout, or in-flight attempts would
// be re-claimed while still running.
func WithStaleAfter(age time.Duration) WorkerOption {
	return func(w *RetryWorker) error {
		if age <= 0 {
			return fmt.Errorf("stale age must be > 0, got %v", age)
		}
		w.staleAfter = age
		return nil
	}
}

// SubscriptionServiceOption configures a SubscriptionService.
type SubscriptionServiceOption func(*SubscriptionService) error

// WithSubscriptionRepository sets the subscription persistence.
//
// This is a required option for NewSubscriptionService.
func WithSubscriptionRepository(subscriptionRepo SubscriptionRepository) SubscriptionServiceOption {
	return func(s *SubscriptionService) error {
		if subscriptionRepo == nil {
			return fmt.Errorf("subscriptionRepo cannot be nil")
		}
		s.subscriptionRepo = subscriptionRepo
		return nil
	}
}

// WithSubscriptionLogger sets the logger instance for the subscription service.
func WithSubscriptionLogger(logger Logger) SubscriptionServiceOption {
	return func(s *SubscriptionService) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}
