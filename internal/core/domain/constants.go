package domain

const (
	// FieldAccountID is the value of TradeError.Field when the error is
	// attributed to a specific account, whose id is in TradeError.FieldData.
	FieldAccountID = "accountId"

	// ExternalStatusUnknown is the status of an external trade right after
	// the offer has been sent.
	ExternalStatusUnknown = "Unknown"
	// ExternalStatusCompleted is the only terminal success status of an
	// external trade.
	ExternalStatusCompleted = "Completed"
)

// Terminal non-success statuses of an external trade.
var externalFailureStatuses = map[string]struct{}{
	"Declined":           {},
	"Countered":          {},
	"Expired":            {},
	"RejectedDueToError": {},
}

// IsExternalTradeCompleted returns whether the given platform status is the
// terminal success one.
func IsExternalTradeCompleted(status string) bool {
	return status == ExternalStatusCompleted
}

// IsExternalTradeFailed returns whether the given platform status is a
// terminal non-success one.
func IsExternalTradeFailed(status string) bool {
	_, ok := externalFailureStatuses[status]
	return ok
}
