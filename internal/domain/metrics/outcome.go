package metrics

// OutcomeCategory partitions raw conversation outcome tags into the fixed set
// of categories used by downstream rate calculations. Tags are decoded exactly
// once at this boundary; downstream code only ever sees categories.
type OutcomeCategory string

const (
	// OutcomeSuccess covers conversations that achieved the user's goal
	OutcomeSuccess OutcomeCategory = "success"

	// OutcomeNeutral covers legitimate conversations with a neutral result
	OutcomeNeutral OutcomeCategory = "neutral"

	// OutcomeFailure covers conversations the assistant failed to handle
	OutcomeFailure OutcomeCategory = "failure"

	// OutcomeExcluded covers conversations that do not count toward any
	// success/failure denominator (spam, wrong numbers, automated followups)
	OutcomeExcluded OutcomeCategory = "excluded"

	// OutcomeUnknown is assigned to any tag not present in the lookup.
	// Unknown tags must never crash a computation.
	OutcomeUnknown OutcomeCategory = "unknown"
)

// String returns the string representation of the category
func (c OutcomeCategory) String() string {
	return string(c)
}

// CountsTowardSuccessRate returns true when sessions in this category belong
// in the success-rate denominator. Excluded and unknown sessions never do.
func (c OutcomeCategory) CountsTowardSuccessRate() bool {
	switch c {
	case OutcomeSuccess, OutcomeNeutral, OutcomeFailure:
		return true
	}
	return false
}

// OutcomeCancelled is the raw tag that drives the cancellation rate. It is a
// neutral outcome for success-rate purposes but is tracked separately.
const OutcomeCancelled = "appointment_cancelled"

// outcomeLookup is the fixed partition of the raw outcome tag enumeration.
var outcomeLookup = map[string]OutcomeCategory{
	// success
	"appointment_created":     OutcomeSuccess,
	"appointment_confirmed":   OutcomeSuccess,
	"appointment_rescheduled": OutcomeSuccess,
	"info_request_fulfilled":  OutcomeSuccess,
	"price_inquiry":           OutcomeSuccess,
	"business_hours_inquiry":  OutcomeSuccess,
	"location_inquiry":        OutcomeSuccess,
	"appointment_inquiry":     OutcomeSuccess,

	// neutral
	"appointment_cancelled": OutcomeNeutral,
	"appointment_modified":  OutcomeNeutral,
	"booking_abandoned":     OutcomeNeutral,

	// failure
	"timeout_abandoned":    OutcomeFailure,
	"conversation_timeout": OutcomeFailure,

	// excluded
	"wrong_number":                OutcomeExcluded,
	"spam_detected":               OutcomeExcluded,
	"appointment_noshow_followup": OutcomeExcluded,
}

// ClassifyOutcome maps a raw outcome tag to its category. An empty or
// unrecognized tag maps to OutcomeUnknown rather than erroring.
func ClassifyOutcome(tag string) OutcomeCategory {
	if category, ok := outcomeLookup[tag]; ok {
		return category
	}
	return OutcomeUnknown
}
