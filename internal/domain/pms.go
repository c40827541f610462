package domain

import "time"

// RoomOption is one bookable room type returned by an availability query.
type RoomOption struct {
	RoomType    string  `json:"room_type"`
	Description string  `json:"description,omitempty"`
	NightlyRate float64 `json:"nightly_rate"`
	Currency    string  `json:"currency"`
	Available   int     `json:"available"`
}

// Availability is a gateway read result. Stale is true when the value was
// served from the last-known cache copy during an upstream outage.
type Availability struct {
	CheckIn   string       `json:"check_in"`
	CheckOut  string       `json:"check_out"`
	Rooms     []RoomOption `json:"rooms"`
	Stale     bool         `json:"stale"`
	FetchedAt time.Time    `json:"fetched_at"`
}

// Reservation is the PMS booking record as seen by this system.
type Reservation struct {
	ReservationID string    `json:"reservation_id"`
	TenantID      string    `json:"tenant_id"`
	GuestID       string    `json:"guest_id"`
	RoomType      string    `json:"room_type"`
	CheckIn       string    `json:"check_in"`
	CheckOut      string    `json:"check_out"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}
