package domain

import "time"

// ImportedEventRecord is the storage-schema shape of an accepted event. It is
// deliberately a distinct type from CrawledEvent: IsRealEvent here means
// "authored by an organizer on the platform", which is always false for
// anything the crawler imports, regardless of what a source claimed.
type ImportedEventRecord struct {
	EventType     EventType
	Name          string
	Description   string
	Images        []string
	Price         float64
	Currency      string
	StartAt       time.Time
	EndAt         time.Time
	Status        EventStatus
	LocationType  LocationType
	City          string
	Address       string
	Latitude      *float64
	Longitude     *float64
	Categories    []Category
	Tags          []string
	Origin        string
	ExternalID    string
	ExternalURL   string
	AttendeeCount int
	Capacity      int
	IsRealEvent   bool
	RawData       map[string]any
	ImportedAt    time.Time
}

// ToImportedRecord maps a crawled event into the storage schema, forcing
// IsRealEvent to false and stamping the import time.
func ToImportedRecord(e *CrawledEvent, now time.Time) *ImportedEventRecord {
	return &ImportedEventRecord{
		EventType:     e.EventType,
		Name:          e.Name,
		Description:   e.Description,
		Images:        e.Images,
		Price:         e.Price,
		Currency:      e.Currency,
		StartAt:       e.StartAt,
		EndAt:         e.EndAt,
		Status:        e.Status,
		LocationType:  e.LocationType,
		City:          e.City,
		Address:       e.Address,
		Latitude:      e.Latitude,
		Longitude:     e.Longitude,
		Categories:    e.Categories,
		Tags:          e.Tags,
		Origin:        e.Origin,
		ExternalID:    e.ExternalID,
		ExternalURL:   e.ExternalURL,
		AttendeeCount: e.AttendeeCount,
		Capacity:      e.Capacity,
		IsRealEvent:   false,
		RawData:       e.RawData,
		ImportedAt:    now,
	}
}
