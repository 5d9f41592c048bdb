package model

// RateCounter is the authoritative Store-side mirror of an hour's send
// count for one sender, used to reseed the KV counter after eviction
// (spec.md §4.E).
type RateCounter struct {
	HourBucket string `db:"hour_bucket" json:"hourBucket"`
	Sender     string `db:"sender" json:"sender"`
	Count      int    `db:"count" json:"count"`
}
