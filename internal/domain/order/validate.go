package order

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	maxLineItems   = 50
	maxQuantity    = 99
	maxNameLen     = 100
	maxAddressLen  = 200
	maxLocalityLen = 100
)

var (
	emailPattern   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]{2,}$`)
	phonePattern   = regexp.MustCompile(`^\+?[0-9 ()\-.]+$`)
	countryPattern = regexp.MustCompile(`^[A-Z]{2}$`)

	postalPatterns = map[string]*regexp.Regexp{
		"US": regexp.MustCompile(`^\d{5}(-\d{4})?$`),
		"ES": regexp.MustCompile(`^\d{5}$`),
		"MX": regexp.MustCompile(`^\d{5}$`),
		"FR": regexp.MustCompile(`^\d{5}$`),
		"DE": regexp.MustCompile(`^\d{5}$`),
		"CA": regexp.MustCompile(`^[A-Z]\d[A-Z] ?\d[A-Z]\d$`),
		"GB": regexp.MustCompile(`^[A-Z]{1,2}\d[A-Z\d]? ?\d[A-Z]{2}$`),
	}
	genericPostal = regexp.MustCompile(`^[A-Z0-9][A-Z0-9 \-]{1,8}[A-Z0-9]$`)
)

// Supported storefront locales.
const (
	LocaleES = "es"
	LocaleEN = "en"
)

type fieldErrors []FieldError

func (f *fieldErrors) add(field, msg string) {
	*f = append(*f, FieldError{Field: field, Message: msg})
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Fields: f}
}

// ValidateAddress checks a postal address and returns one FieldError per
// problem. Field names are prefixed with prefix (e.g. "shipping_address").
func ValidateAddress(prefix string, a Address) []FieldError {
	var errs fieldErrors
	field := func(name string) string { return prefix + "." + name }

	requireText(&errs, field("line1"), a.Line1, maxAddressLen)
	if utf8.RuneCountInString(a.Line2) > maxAddressLen {
		errs.add(field("line2"), "too long")
	}
	requireText(&errs, field("city"), a.City, maxLocalityLen)
	requireText(&errs, field("state"), a.State, maxLocalityLen)

	country := strings.TrimSpace(a.Country)
	if !countryPattern.MatchString(country) {
		errs.add(field("country"), "must be an ISO 3166-1 alpha-2 code")
	}

	postal := strings.ToUpper(strings.TrimSpace(a.PostalCode))
	switch {
	case postal == "":
		errs.add(field("postal_code"), "required")
	case !postalCodeValid(country, postal):
		errs.add(field("postal_code"), "invalid for country")
	}
	return errs
}

func postalCodeValid(country, postal string) bool {
	if re, ok := postalPatterns[country]; ok {
		return re.MatchString(postal)
	}
	return genericPostal.MatchString(postal)
}

// ValidateCheckout checks a checkout submission before any catalog lookup.
func ValidateCheckout(req CheckoutRequest) error {
	var errs fieldErrors

	switch n := len(req.Items); {
	case n == 0:
		errs.add("items", "at least one item required")
	case n > maxLineItems:
		errs.add("items", "too many items")
	}
	for i, item := range req.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			errs.add(itemField(i, "product_id"), "required")
		}
		if item.Quantity < 1 || item.Quantity > maxQuantity {
			errs.add(itemField(i, "quantity"), "must be between 1 and 99")
		}
	}

	if !emailPattern.MatchString(strings.TrimSpace(req.Customer.Email)) {
		errs.add("customer.email", "invalid email")
	}
	requireText(&errs, "customer.name", req.Customer.Name, maxNameLen)
	if req.Customer.Phone != "" && !phoneValid(req.Customer.Phone) {
		errs.add("customer.phone", "invalid phone number")
	}

	switch req.Locale {
	case "", LocaleES, LocaleEN:
	default:
		errs.add("locale", "must be es or en")
	}

	errs = append(errs, ValidateAddress("shipping_address", req.ShippingAddress)...)
	errs = append(errs, ValidateAddress("billing_address", req.BillingAddress)...)
	return errs.err()
}

func requireText(errs *fieldErrors, field, v string, maxLen int) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		errs.add(field, "required")
	case utf8.RuneCountInString(v) > maxLen:
		errs.add(field, "too long")
	}
}

func phoneValid(phone string) bool {
	if !phonePattern.MatchString(phone) {
		return false
	}
	digits := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= 7 && digits <= 15
}

func itemField(i int, name string) string {
	return "items[" + strconv.Itoa(i) + "]." + name
}
