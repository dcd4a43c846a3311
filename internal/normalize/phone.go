// Package normalize canonicalizes user-entered values before they are used as
// merge keys.
package normalize

import "strings"

// MinPhoneDigits is the shortest digit run accepted as a phone number.
const MinPhoneDigits = 8

// Phone returns the canonical "+<digits>" form of raw, or nil when raw does not
// hold at least MinPhoneDigits digits. A leading international "00" becomes
// "+"; every other non-digit is dropped. Numbers without a "+" are treated as
// already carrying their country code, so "15550000" and "+15550000" match.
func Phone(raw string) *string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil
	}

	var digits strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	number := digits.String()
	if strings.HasPrefix(number, "00") && !strings.HasPrefix(value, "+") {
		number = number[2:]
	}
	if len(number) < MinPhoneDigits {
		return nil
	}

	canonical := "+" + number
	return &canonical
}

// PhonePtr normalizes an optional phone.
func PhonePtr(raw *string) *string {
	if raw == nil {
		return nil
	}
	return Phone(*raw)
}
