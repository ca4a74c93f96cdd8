// Package email derives display names from email addresses for message greetings.
package email

import (
	"strings"
	"unicode"
)

// DeriveNameFromEmail returns a first and last name guessed from the local
// part of an address: "asha.rao@example.com" gives ("Asha", "Rao"). Missing
// parts fall back to "User".
func DeriveNameFromEmail(email string) (string, string) {
	localPart := email
	if at := strings.IndexByte(email, '@'); at >= 0 {
		localPart = email[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+' || unicode.IsDigit(r)
	})
	if len(parts) == 0 {
		return "User", "User"
	}

	first := capitalize(parts[0])
	last := "User"
	if len(parts) > 1 {
		last = capitalize(parts[len(parts)-1])
	}
	return first, last
}

// Greeting is the salutation used at the top of status mails.
func Greeting(address string) string {
	first, _ := DeriveNameFromEmail(address)
	return "Hello " + first + ","
}

func capitalize(s string) string {
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
