package order

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fieldNames(errs []FieldError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Field
	}
	return out
}

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Address)
		fields []string
	}{
		{"Valid", func(*Address) {}, nil},
		{"ZipPlusFour", func(a *Address) { a.PostalCode = "94105-1234" }, nil},
		{"Spain", func(a *Address) { a.Country, a.State, a.PostalCode = "ES", "Madrid", "28013" }, nil},
		{"Canada", func(a *Address) { a.Country, a.State, a.PostalCode = "CA", "ON", "k1a 0b1" }, nil},
		{"UnitedKingdom", func(a *Address) { a.Country, a.State, a.PostalCode = "GB", "London", "SW1A 1AA" }, nil},
		{"OtherCountry", func(a *Address) { a.Country, a.State, a.PostalCode = "AR", "CABA", "C1002" }, nil},
		{"MissingLine1", func(a *Address) { a.Line1 = "  " }, []string{"ship.line1"}},
		{"LongLine2", func(a *Address) { a.Line2 = strings.Repeat("x", 201) }, []string{"ship.line2"}},
		{"MissingCityState", func(a *Address) { a.City, a.State = "", "" }, []string{"ship.city", "ship.state"}},
		{"LowercaseCountry", func(a *Address) { a.Country = "us" }, []string{"ship.country"}},
		{"BadUSZip", func(a *Address) { a.PostalCode = "9410" }, []string{"ship.postal_code"}},
		{"BadSpanishZip", func(a *Address) { a.Country, a.PostalCode = "ES", "2801" }, []string{"ship.postal_code"}},
		{"MissingPostal", func(a *Address) { a.PostalCode = "" }, []string{"ship.postal_code"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := validAddress()
			tt.modify(&a)

			errs := ValidateAddress("ship", a)
			if tt.fields == nil {
				assert.Empty(t, errs)
				return
			}
			assert.Equal(t, tt.fields, fieldNames(errs))
		})
	}
}

func TestValidateCheckout(t *testing.T) {
	valid := func() CheckoutRequest {
		return checkoutRequest(LineItemRequest{ProductID: "b1", Quantity: 1})
	}

	tests := []struct {
		name   string
		modify func(*CheckoutRequest)
		fields []string
	}{
		{"Valid", func(*CheckoutRequest) {}, nil},
		{"EnglishLocale", func(r *CheckoutRequest) { r.Locale = LocaleEN }, nil},
		{"NoPhone", func(r *CheckoutRequest) { r.Customer.Phone = "" }, nil},
		{"NoItems", func(r *CheckoutRequest) { r.Items = nil }, []string{"items"}},
		{"TooManyItems", func(r *CheckoutRequest) {
			r.Items = make([]LineItemRequest, 51)
			for i := range r.Items {
				r.Items[i] = LineItemRequest{ProductID: "b1", Quantity: 1}
			}
		}, []string{"items"}},
		{"BadItem", func(r *CheckoutRequest) {
			r.Items = []LineItemRequest{{ProductID: "b1", Quantity: 1}, {Quantity: 100}}
		}, []string{"items[1].product_id", "items[1].quantity"}},
		{"BadContact", func(r *CheckoutRequest) {
			r.Customer = Customer{Email: "reader@", Name: "", Phone: "12ab"}
		}, []string{"customer.email", "customer.name", "customer.phone"}},
		{"ShortPhone", func(r *CheckoutRequest) { r.Customer.Phone = "555-01" }, []string{"customer.phone"}},
		{"BadLocale", func(r *CheckoutRequest) { r.Locale = "fr" }, []string{"locale"}},
		{"BadBilling", func(r *CheckoutRequest) { r.BillingAddress.City = "" }, []string{"billing_address.city"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.modify(&req)

			err := ValidateCheckout(req)
			if tt.fields == nil {
				require.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.fields, fieldNames(verr.Fields))
		})
	}
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusPending.CanTransitionTo(StatusPaid))
	assert.True(t, StatusPaid.CanTransitionTo(StatusProcessing))
	assert.True(t, StatusProcessing.CanTransitionTo(StatusShipped))
	assert.True(t, StatusShipped.CanTransitionTo(StatusDelivered))
	assert.False(t, StatusPaid.CanTransitionTo(StatusPending))
	assert.False(t, StatusShipped.CanTransitionTo(StatusCancelled))
	assert.False(t, StatusDelivered.CanTransitionTo(StatusCancelled))

	for _, s := range []Status{StatusDelivered, StatusCancelled, StatusFailed} {
		assert.True(t, s.Terminal(), s)
	}
	assert.False(t, Status("refunded").Valid())
}
