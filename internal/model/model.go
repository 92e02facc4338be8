package model

import "time"

const (
	ShortCodeLength   = 6
	MaxOriginalURLLen = 2048
)

type URLMapping struct {
	ShortCode      string     `db:"short_code" json:"short_code"`
	OriginalURL    string     `db:"original_url" json:"original_url"`
	ClickCount     int64      `db:"click_count" json:"click_count"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	LastAccessedAt *time.Time `db:"last_accessed_at" json:"last_accessed_at,omitempty"`
}

// Stats is the public view of a mapping's usage.
type Stats struct {
	Code      string    `json:"code"`
	Clicks    int64     `json:"clicks"`
	CreatedAt time.Time `json:"createdAt"`
}

func (m *URLMapping) Stats() Stats {
	return Stats{Code: m.ShortCode, Clicks: m.ClickCount, CreatedAt: m.CreatedAt}
}
