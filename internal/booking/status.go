package booking

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "no_show"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentRefunded  PaymentStatus = "refunded"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed: {StatusCancelled: true, StatusCompleted: true, StatusNoShow: true},
	StatusCancelled: {},
	StatusCompleted: {},
	StatusNoShow:    {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Occupies reports whether a reservation in this status blocks its slot.
func (s Status) Occupies() bool {
	return s != StatusCancelled && s != StatusNoShow
}

// Modifiable reports whether the reservation may still be changed by a client or staff.
func (s Status) Modifiable() bool {
	return s != StatusCancelled && s != StatusCompleted
}
