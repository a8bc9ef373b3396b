package store

// HarvestRecord is an append-only harvest entry. Date is YYYY-MM-DD.
type HarvestRecord struct {
	ID         int64
	Count      int64
	Weight     float64
	Date       string
	RecordedTs int64
}

type FindHarvestRecord struct {
	// Year filters records whose date falls in the given calendar year.
	Year *int
}
