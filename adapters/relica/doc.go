// Package relica provides repository implementations using Relica query builder.
//
// Relica (github.com/coregx/relica) is a lightweight, type-safe database query builder
// for Go with zero production dependencies.
//
// This package provides production-ready implementations of all webhooks repository interfaces:
//   - EventRepository
//   - SubscriptionRepository
//   - DeliveryRepository
//
// The delivery ledger's claim operations (ClaimRetry, ClaimStalePending) and
// the subscription health update are conditional UPDATEs: the WHERE clause
// carries the expected current state and RowsAffected decides the race, so
// multiple workers can safely share one database.
//
// Example usage:
//
//	import (
//	    "database/sql"
//	    "github.com/coregx/webhooks"
//	    "github.com/coregx/webhooks/adapters/relica"
//	    _ "github.com/go-sql-driver/mysql"
//	)
//
//	// Open database connection
//	db, err := sql.Open("mysql", "user:pass@tcp(localhost:3306)/webhooks_db?parseTime=true")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create repositories (driverName should be "mysql", "postgres", or "sqlite3")
//	repos := relica.NewRepositories(db, "mysql")
//
//	// Create services
//	dispatcher, err := webhooks.NewDispatcher(
//	    webhooks.WithDispatcherRepositories(repos.Event, repos.Subscription, repos.Delivery),
//	    webhooks.WithExecutor(executor),
//	    webhooks.WithHealthTracker(health),
//	)
package relica
