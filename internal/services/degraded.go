package services

import (
	"time"

	"github.com/yungbote/concierge-backend/internal/domain"
)

// DegradedResponsePolicy decides what the gateway may serve while the PMS
// is unhealthy. Stale cached reads are the normal degradation; simulated
// availability is a separate, strictly opt-in switch for non-production
// profiles, because fabricated data shown as real would be a correctness
// bug. Everything served under this policy is labeled stale.
type DegradedResponsePolicy struct {
	AllowStaleReads bool
	AllowSimulated  bool
}

func DefaultDegradedResponsePolicy() DegradedResponsePolicy {
	return DegradedResponsePolicy{
		AllowStaleReads: true,
		AllowSimulated:  false,
	}
}

// SimulatedAvailability fabricates a clearly-labeled availability answer
// for development environments. Returns false unless AllowSimulated is set.
func (p DegradedResponsePolicy) SimulatedAvailability(checkIn, checkOut string, now time.Time) (*domain.Availability, bool) {
	if !p.AllowSimulated {
		return nil, false
	}
	return &domain.Availability{
		CheckIn:  checkIn,
		CheckOut: checkOut,
		Rooms: []domain.RoomOption{
			{RoomType: "standard", Description: "simulated", NightlyRate: 100, Currency: "EUR", Available: 1},
		},
		Stale:     true,
		FetchedAt: now,
	}, true
}
