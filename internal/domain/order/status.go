package order

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusPaid       Status = "paid"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusFailed     Status = "failed"
)

// transitions lists the statuses reachable from each status.
var transitions = map[Status][]Status{
	StatusPending:    {StatusPaid, StatusFailed, StatusCancelled},
	StatusPaid:       {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
	StatusFailed:     {StatusCancelled},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusProcessing, StatusShipped,
		StatusDelivered, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further fulfillment progress is possible.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusFailed
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// checkCancellable returns nil when an order in status s may be cancelled.
// Shipped and delivered orders need manual logistics work; cancelling twice
// is a conflict.
func checkCancellable(id string, s Status) error {
	switch s {
	case StatusCancelled:
		return ErrAlreadyCancelled
	case StatusShipped, StatusDelivered:
		return &InvalidStateError{OrderID: id, Status: s, Op: "cancel", Reason: "order already shipped"}
	}
	return nil
}
