package domain

import (
	"strings"

	"github.com/google/uuid"
)

type AddressType string

const (
	AddressTaxID     AddressType = "tax_id"
	AddressEmail     AddressType = "email"
	AddressPhone     AddressType = "phone"
	AddressRandomKey AddressType = "random_key"
)

func (t AddressType) Valid() bool {
	switch t {
	case AddressTaxID, AddressEmail, AddressPhone, AddressRandomKey:
		return true
	}
	return false
}

const (
	maxEmailLength = 77
	countryPrefix  = "55"
)

// NormalizeAddress validates a transfer-network address and returns its
// canonical form. A non-empty hint must agree with the detected type; it also
// disambiguates 11 digit values, which can be either a tax id or a phone.
func NormalizeAddress(raw string, hint AddressType) (string, AddressType, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", ErrInvalidPayeeAddress
	}
	if hint != "" && !hint.Valid() {
		return "", "", ErrInvalidPayeeAddress
	}

	var (
		addr string
		typ  AddressType
		ok   bool
	)
	switch {
	case strings.Contains(raw, "@"):
		addr, ok = normalizeEmail(raw)
		typ = AddressEmail
	case strings.HasPrefix(raw, "+"):
		addr, ok = normalizePhone(raw[1:], true)
		typ = AddressPhone
	case len(raw) == 36 && strings.Count(raw, "-") == 4:
		addr, ok = normalizeRandomKey(raw)
		typ = AddressRandomKey
	default:
		addr, typ, ok = normalizeNumeric(raw, hint)
	}
	if !ok {
		return "", "", ErrInvalidPayeeAddress
	}
	if hint != "" && hint != typ {
		return "", "", ErrInvalidPayeeAddress
	}
	return addr, typ, nil
}

func normalizeEmail(raw string) (string, bool) {
	if len(raw) > maxEmailLength || strings.Count(raw, "@") != 1 {
		return "", false
	}
	if strings.ContainsAny(raw, " \t\r\n") {
		return "", false
	}
	local, domain, _ := strings.Cut(raw, "@")
	if local == "" || domain == "" {
		return "", false
	}
	dot := strings.LastIndex(domain, ".")
	if dot <= 0 || dot == len(domain)-1 || strings.Contains(domain, "..") {
		return "", false
	}
	return strings.ToLower(raw), true
}

func normalizeRandomKey(raw string) (string, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", false
	}
	return id.String(), true
}

// normalizePhone accepts 10 or 11 national digits with an optional country
// prefix, which is mandatory when the value started with '+'.
func normalizePhone(raw string, prefixed bool) (string, bool) {
	digits, ok := stripSeparators(raw, "-() ")
	if !ok {
		return "", false
	}
	if prefixed {
		if !strings.HasPrefix(digits, countryPrefix) {
			return "", false
		}
		digits = digits[len(countryPrefix):]
	} else if (len(digits) == 12 || len(digits) == 13) && strings.HasPrefix(digits, countryPrefix) {
		digits = digits[len(countryPrefix):]
	}
	if len(digits) != 10 && len(digits) != 11 {
		return "", false
	}
	return "+" + countryPrefix + digits, true
}

func normalizeNumeric(raw string, hint AddressType) (string, AddressType, bool) {
	if hint == AddressPhone {
		addr, ok := normalizePhone(raw, false)
		return addr, AddressPhone, ok
	}
	digits, ok := stripSeparators(raw, ".-/")
	if !ok {
		return "", "", false
	}
	switch len(digits) {
	case 11:
		if validCPF(digits) {
			return digits, AddressTaxID, true
		}
	case 14:
		if validCNPJ(digits) {
			return digits, AddressTaxID, true
		}
	case 10, 12, 13:
		if hint == AddressTaxID {
			return "", "", false
		}
		addr, ok := normalizePhone(digits, false)
		return addr, AddressPhone, ok
	}
	return "", "", false
}

func stripSeparators(raw, separators string) (string, bool) {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case strings.ContainsRune(separators, r):
		default:
			return "", false
		}
	}
	return b.String(), b.Len() > 0
}

func repeated(digits string) bool {
	return strings.Count(digits, digits[:1]) == len(digits)
}

func validCPF(d string) bool {
	if repeated(d) {
		return false
	}
	return checkDigit(d[:9], []int{10, 9, 8, 7, 6, 5, 4, 3, 2}) == d[9] &&
		checkDigit(d[:10], []int{11, 10, 9, 8, 7, 6, 5, 4, 3, 2}) == d[10]
}

func validCNPJ(d string) bool {
	if repeated(d) {
		return false
	}
	return checkDigit(d[:12], []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}) == d[12] &&
		checkDigit(d[:13], []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}) == d[13]
}

func checkDigit(digits string, weights []int) byte {
	sum := 0
	for i, w := range weights {
		sum += int(digits[i]-'0') * w
	}
	rem := sum % 11
	if rem < 2 {
		return '0'
	}
	return byte('0' + 11 - rem)
}

// MaskAddress hides most of an address for logs, audit metadata and
// notifications.
func MaskAddress(addr string) string {
	if addr == "" {
		return ""
	}
	if local, domain, ok := strings.Cut(addr, "@"); ok {
		if len(local) <= 1 {
			return "*@" + domain
		}
		return local[:1] + strings.Repeat("*", len(local)-1) + "@" + domain
	}
	if len(addr) <= 4 {
		return strings.Repeat("*", len(addr))
	}
	return strings.Repeat("*", len(addr)-4) + addr[len(addr)-4:]
}
