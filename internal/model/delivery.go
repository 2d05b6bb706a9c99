package model

// DeliveryStats summarizes one fan-out of a snapshot to live sessions.
type DeliveryStats struct {
	Delivered int `json:"delivered"`
	Skipped   int `json:"skipped"`
	Dropped   int `json:"dropped"`
}
