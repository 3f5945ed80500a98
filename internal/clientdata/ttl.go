package clientdata

import "time"

// TTL constants for different data types.
// These are added to time.Now() when storing to calculate expires_at.
const (
	TTLPoolSearch = 24 * time.Hour // Pool addresses for a symbol rarely move
	TTLTokenList  = 6 * time.Hour  // Birdeye rankings drift through the day
)
