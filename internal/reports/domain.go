package reports

import "time"

// Snapshot is the stock state of one active product.
type Snapshot struct {
	ProductID        int64
	Name             string
	CurrentStock     int64
	MorningStock     int64
	MorningStockDate time.Time
}

// MovementRow summarises one product over a window.
type MovementRow struct {
	ProductID        int64     `json:"product_id"`
	ProductName      string    `json:"product_name"`
	MorningStock     int64     `json:"morning_stock"`
	MorningStockDate time.Time `json:"morning_stock_date"`
	Purchased        int64     `json:"purchased"`
	Sold             int64     `json:"sold"`
	CurrentStock     int64     `json:"current_stock"`
}

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// DayWindow covers start through the end of end's day, both in UTC.
func DayWindow(start, end time.Time) Window {
	s := start.UTC()
	y, m, d := end.UTC().Date()
	return Window{Start: s, End: time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)}
}
