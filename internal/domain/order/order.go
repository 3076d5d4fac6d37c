package order

import (
	"context"
	"time"
)

// Address is a structured postal address.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Customer holds the contact details captured at checkout.
type Customer struct {
	Email string
	Name  string
	Phone string
}

// Order is one checkout attempt and, once paid, one purchase.
type Order struct {
	ID string
	// UserID is the owning hosted-auth identity; nil for anonymous orders.
	UserID   *string
	Status   Status
	Locale   string
	Currency string

	SubtotalCents int64
	ShippingCents int64
	TaxCents      int64
	TotalCents    int64

	ShippingAddress Address
	BillingAddress  Address
	Customer        Customer

	PaymentIntentID    string
	FulfillmentOrderID string
	TrackingNumber     string
	TrackingURL        string
	RefundID           string
	CancelReason       string

	// Version increases on every status transition.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time

	Items []Item
}

// Anonymous reports whether the order has no owning identity.
func (o *Order) Anonymous() bool {
	return o.UserID == nil || *o.UserID == ""
}

// OwnedBy reports whether userID owns the order.
func (o *Order) OwnedBy(userID string) bool {
	return userID != "" && !o.Anonymous() && *o.UserID == userID
}

// Item is one catalog line within an order. Items are immutable once the
// order is created.
type Item struct {
	ID             string
	OrderID        string
	ProductID      string
	VariantID      string
	Quantity       int
	UnitPriceCents int64
	LineTotalCents int64
}

// AccessToken is a possession credential for an anonymous order. Only the
// SHA-256 hash of the token is stored.
type AccessToken struct {
	ID         string
	OrderID    string
	TokenHash  string
	Active     bool
	UseCount   int
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// AccessMethod is how an order read was authorized.
type AccessMethod string

const (
	MethodAuthenticatedUser AccessMethod = "authenticated_user"
	MethodToken             AccessMethod = "token"
	MethodNone              AccessMethod = "none"
)

// Access reasons recorded in the audit log.
const (
	ReasonOwnerMatch       = "owner_match"
	ReasonTokenMatch       = "token_match"
	ReasonOwnerMismatch    = "owner_mismatch"
	ReasonMissingToken     = "missing_token"
	ReasonInvalidToken     = "invalid_token"
	ReasonIdentityRequired = "identity_required"
)

// AccessLogEntry is one audited order access attempt.
type AccessLogEntry struct {
	OrderID    string
	Method     AccessMethod
	Granted    bool
	Reason     string
	UserID     string
	RemoteAddr string
	CreatedAt  time.Time
}

// Transition carries the optional column updates applied together with a
// status change. Nil fields are left untouched.
type Transition struct {
	FulfillmentOrderID *string
	TrackingNumber     *string
	TrackingURL        *string
	CancelReason       *string
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create persists the order, its items and the optional access token in
	// one transaction.
	Create(ctx context.Context, o *Order, token *AccessToken) error
	// GetByID returns the order with its items or ErrOrderNotFound.
	GetByID(ctx context.Context, id string) (*Order, error)
	// ListByPaymentIntent returns orders referencing the intent, newest first.
	ListByPaymentIntent(ctx context.Context, intentID string) ([]Order, error)
	// ListByUser returns orders owned by userID, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]Order, error)
	// TransitionStatus moves the order from one status to another with
	// compare-and-swap semantics. It returns ErrStatusConflict when the
	// stored status is no longer from.
	TransitionStatus(ctx context.Context, id string, from, to Status, t Transition) error
	// SetRefund records the processor refund id.
	SetRefund(ctx context.Context, id, refundID string) error
	// Claim binds an anonymous order to userID and deactivates its access
	// tokens. It returns ErrAlreadyClaimed when the order already has an owner.
	Claim(ctx context.Context, id, userID string) error
}

// TokenRepository provides access token lookups.
type TokenRepository interface {
	// FindActive returns the active token bound to orderID or ErrTokenNotFound.
	FindActive(ctx context.Context, orderID string) (*AccessToken, error)
	// RecordUse increments the token use counter and sets its last-used time.
	RecordUse(ctx context.Context, tokenID string, at time.Time) error
}

// AccessLogRepository stores the order access audit trail.
type AccessLogRepository interface {
	Record(ctx context.Context, e AccessLogEntry) error
}
