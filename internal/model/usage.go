package model

import "time"

// UsageRecord is one audit log entry for an authenticated request made with
// an API key.
type UsageRecord struct {
	ID        int64     `json:"id" db:"id"`
	APIKeyID  int64     `json:"api_key_id" db:"api_key_id"`
	Endpoint  string    `json:"endpoint" db:"endpoint"`
	Method    string    `json:"method" db:"method"`
	Status    int       `json:"status" db:"status"`
	CallerIP  string    `json:"caller_ip" db:"caller_ip"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
