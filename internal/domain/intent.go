package domain

import "strings"

// Intent is the closed set of conversation intents the orchestrator can
// dispatch. Adding an intent means adding a constant here and a case to the
// orchestrator's dispatch switch; there is no runtime-registered handler map.
type Intent string

const (
	IntentGreeting           Intent = "greeting"
	IntentCheckAvailability  Intent = "check_availability"
	IntentMakeReservation    Intent = "make_reservation"
	IntentConfirmReservation Intent = "confirm_reservation"
	IntentCancelReservation  Intent = "cancel_reservation"
	IntentReservationStatus  Intent = "reservation_status"
	IntentHelp               Intent = "help"
	IntentEscalate           Intent = "escalate"
	IntentUnknown            Intent = "unknown"
)

// Intents lists every dispatchable intent, IntentUnknown included.
func Intents() []Intent {
	return []Intent{
		IntentGreeting,
		IntentCheckAvailability,
		IntentMakeReservation,
		IntentConfirmReservation,
		IntentCancelReservation,
		IntentReservationStatus,
		IntentHelp,
		IntentEscalate,
		IntentUnknown,
	}
}

func ParseIntent(s string) Intent {
	c := Intent(strings.ToLower(strings.TrimSpace(s)))
	for _, k := range Intents() {
		if c == k {
			return c
		}
	}
	return IntentUnknown
}

// IsWrite reports whether the intent mutates state in the PMS. Write intents
// are the only ones that may take a reservation lock, and the only ones the
// orchestrator enqueues for retry when the upstream is unhealthy.
func (i Intent) IsWrite() bool {
	switch i {
	case IntentMakeReservation, IntentConfirmReservation, IntentCancelReservation:
		return true
	default:
		return false
	}
}

func (i Intent) String() string { return string(i) }
