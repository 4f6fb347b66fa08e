package inventory

import "time"

// CatalogRefreshedEvent is emitted after a new listing set was published.
type CatalogRefreshedEvent struct {
	Version    uint64
	Listings   int
	Units      int
	OccurredAt time.Time
}

func (CatalogRefreshedEvent) EventName() string { return "inventory.catalog_refreshed" }

func NewCatalogRefreshedEvent(version uint64, listings []Listing) CatalogRefreshedEvent {
	return CatalogRefreshedEvent{
		Version:    version,
		Listings:   len(listings),
		Units:      TotalQuantity(listings),
		OccurredAt: time.Now().UTC(),
	}
}
