package payment

// Outcome is what a gateway transaction state means for an order.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomePending
	OutcomePaid
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomePaid:
		return "paid"
	case OutcomeCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Resolve maps transaction_status / fraud_status to an Outcome.
func Resolve(transactionStatus, fraudStatus string) Outcome {
	switch transactionStatus {
	case "capture":
		switch fraudStatus {
		case "", "accept":
			return OutcomePaid
		case "deny":
			return OutcomeCancelled
		}
		// challenge: wait for the follow-up notification
		return OutcomePending
	case "settlement":
		return OutcomePaid
	case "pending":
		return OutcomePending
	case "deny", "cancel", "expire", "failure":
		return OutcomeCancelled
	}
	return OutcomeUnknown
}
