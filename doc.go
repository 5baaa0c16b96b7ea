// Package webhooks provides a webhook delivery and retry library for Go,
// plus a standalone service with a REST API.
//
// Upstream systems hand domain events to the Dispatcher; the library signs
// them, POSTs them to every subscribed endpoint, and drives a fixed retry
// schedule over a durable per-attempt ledger.
//
// # Features
//
//   - HMAC-SHA256 signed deliveries (X-Webhook-Signature: sha256=<hex>)
//   - Fixed retry schedule: 1m, 5m, 15m, 1h, 6h (six attempts total)
//   - Durable delivery ledger: every attempt's outcome is queryable
//   - Per-subscription health: consecutive exhausted deliveries flip a
//     subscription to failing; operators disable and re-enable explicitly
//   - Manual retry of scheduled or exhausted deliveries, rate limited
//   - Crash-safe retry worker: all scheduling state lives in the ledger,
//     claims are compare-and-set, abandoned attempts are rescanned
//   - Domain-Driven Design with rich domain models containing business logic
//   - Repository Pattern for clean data access abstraction
//   - Options Pattern for service construction
//   - Pluggable Logger and Executor interfaces
//   - Multi-Database Support: MySQL, PostgreSQL, SQLite via Relica adapters
//   - Embedded migrations for easy database setup
//
// # Quick Start
//
// # Option 1: As Embedded Library
//
//	import (
//	    "database/sql"
//	    "github.com/coregx/webhooks"
//	    "github.com/coregx/webhooks/adapters/relica"
//	    _ "github.com/go-sql-driver/mysql"
//	)
//
//	db, _ := sql.Open("mysql", "user:pass@tcp(localhost:3306)/webhooks?parseTime=true")
//
//	repos := relica.NewRepositories(db, "mysql")
//
//	executor, _ := webhooks.NewHTTPExecutor()
//	health, _ := webhooks.NewHealthTracker(repos.Subscription, logger)
//
//	dispatcher, _ := webhooks.NewDispatcher(
//	    webhooks.WithDispatcherRepositories(repos.Event, repos.Subscription, repos.Delivery),
//	    webhooks.WithExecutor(executor),
//	    webhooks.WithHealthTracker(health),
//	    webhooks.WithDispatcherLogger(logger),
//	)
//
//	worker, _ := webhooks.NewRetryWorker(
//	    webhooks.WithWorkerDispatcher(dispatcher),
//	    webhooks.WithWorkerDeliveryRepository(repos.Delivery),
//	    webhooks.WithWorkerLogger(logger),
//	)
//	go worker.Run(ctx, 30*time.Second)
//
// Dispatch an event:
//
//	result, err := dispatcher.Dispatch(ctx, webhooks.DispatchRequest{
//	    EventType: "report.created",
//	    Payload:   `{"reportId": 123}`,
//	})
//
// # Option 2: As Standalone Service
//
// Run the webhook server and use the REST API at http://localhost:8080:
//
//	# Emit an event
//	curl -X POST http://localhost:8080/api/v1/events \
//	  -H "Content-Type: application/json" \
//	  -d '{"eventType":"report.created","data":{"reportId":123}}'
//
//	# Register a subscription
//	curl -X POST http://localhost:8080/api/v1/subscriptions \
//	  -H "Content-Type: application/json" \
//	  -d '{"owner":"billing","targetURL":"https://example.com/hook","eventTypes":["report.created"]}'
//
// See cmd/webhook-server for the full API.
//
// # Delivery Flow
//
//  1. DISPATCH
//     Dispatcher → store Event
//     → find subscriptions for the event type (active and failing)
//     → create one Delivery per subscription (attempt 1)
//     → run first attempts concurrently, record outcomes
//
//  2. WORKER (background)
//     RetryWorker → find due pending_retry rows (skipping disabled subscriptions)
//     → claim each via compare-and-set (attempt+1)
//     → re-attempt and record outcomes
//     → failure after the final attempt marks the row exhausted
//
//  3. HEALTH
//     success → failure count resets, failing recovers to active
//     exhausted → failure count +1; at 5 the subscription turns failing
//
// # Database Schema
//
// The library requires 3 tables (created via embedded migrations):
//
//	webhooks_event          - Dispatched events (immutable)
//	webhooks_subscription   - Webhook registrations with health state
//	webhooks_delivery       - Per-attempt delivery ledger
//
// Supports MySQL, PostgreSQL, and SQLite via Relica adapters.
package webhooks
