package storage

import "time"

// Payment is a slot payment tracked by the companion server
type Payment struct {
	ID         string
	Amount     int64 // lovelace
	Address    string
	CreatedAt  time.Time
	VerifiedAt *time.Time
	TxHash     string
	Used       bool
	// ClaimToken is handed to the initiator only
	ClaimToken string
}

// Verified reports whether a matching transaction was found
func (p *Payment) Verified() bool {
	return p.VerifiedAt != nil
}
