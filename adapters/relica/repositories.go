package relica

import (
	"database/sql"

	"github.com/coregx/webhooks"
)

// Repositories holds all repository implementations.
type Repositories struct {
	Event        webhooks.EventRepository
	Subscription webhooks.SubscriptionRepository
	Delivery     webhooks.DeliveryRepository
}

// NewRepositories creates all repository implementations using Relica.
//
// The db parameter should be an *sql.DB connected to MySQL, PostgreSQL, or SQLite.
// The driverName should be "mysql", "postgres", or "sqlite3".
// The table prefix defaults to "webhooks_" but can be customized.
func NewRepositories(db *sql.DB, driverName string) *Repositories {
	return &Repositories{
		Event:        NewEventRepository(db, driverName),
		Subscription: NewSubscriptionRepository(db, driverName),
		Delivery:     NewDeliveryRepository(db, driverName),
	}
}

// NewRepositoriesWithPrefix creates all repository implementations with a custom table prefix.
func NewRepositoriesWithPrefix(db *sql.DB, driverName, prefix string) *Repositories {
	return &Repositories{
		Event:        NewEventRepositoryWithPrefix(db, driverName, prefix),
		Subscription: NewSubscriptionRepositoryWithPrefix(db, driverName, prefix),
		Delivery:     NewDeliveryRepositoryWithPrefix(db, driverName, prefix),
	}
}
