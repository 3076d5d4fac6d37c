// Package redact masks personal data before it reaches logs.
package redact

import (
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

const mask = "***"

// Email keeps the first character of the local part and the domain.
//
//	jane.doe@example.com -> j***@example.com
func Email(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return mask
	}
	first, _ := utf8.DecodeRuneInString(email)
	return string(first) + mask + email[at:]
}

// Phone keeps the last four digits.
func Phone(phone string) string {
	var digits []byte
	for i := 0; i < len(phone); i++ {
		if c := phone[i]; c >= '0' && c <= '9' {
			digits = append(digits, c)
		}
	}
	if len(digits) <= 4 {
		return mask
	}
	return mask + string(digits[len(digits)-4:])
}

// Name keeps the initial of every word.
//
//	Jane Doe -> J*** D***
func Name(name string) string {
	words := strings.Fields(name)
	if len(words) == 0 {
		return ""
	}
	for i, w := range words {
		r, _ := utf8.DecodeRuneInString(w)
		words[i] = string(r) + mask
	}
	return strings.Join(words, " ")
}

// Address keeps only the country and the first two characters of the postal
// code, enough to debug routing problems.
func Address(country, postalCode string) string {
	postalCode = strings.TrimSpace(postalCode)
	if len(postalCode) > 2 {
		postalCode = postalCode[:2] + mask
	}
	if postalCode == "" {
		return country
	}
	return country + " " + postalCode
}

// EmailField returns a zap field with a masked email.
func EmailField(key, email string) zap.Field {
	return zap.String(key, Email(email))
}

// NameField returns a zap field with a masked name.
func NameField(key, name string) zap.Field {
	return zap.String(key, Name(name))
}
