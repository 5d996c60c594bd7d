// Package identity normalizes and matches contact identifiers.
//
// A raw identifier is either an email address or a phone number in any
// surface form. Normalization produces a canonical key: lowercased email,
// or E.164 phone number. Two identifiers refer to the same contact exactly
// when their canonical keys are equal; partial and prefix matches never
// count.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/nyaruka/phonenumbers"
)

// ErrInvalidIdentifier is returned when input cannot be parsed as a phone
// number or email address.
var ErrInvalidIdentifier = errors.New("invalid identifier")

// DefaultRegion is used when no region hint is supplied and the caller has
// not configured one. The original tool read the macOS locale; here the
// region is explicit configuration so tests and callers are deterministic.
const DefaultRegion = "US"

// Kind distinguishes email identifiers from phone identifiers.
type Kind int

const (
	KindPhone Kind = iota
	KindEmail
)

// Identifier is a canonical contact key. Equality of Canonical implies the
// same logical contact regardless of the raw surface form.
type Identifier struct {
	Raw       string
	Canonical string
	Kind      Kind
}

// Normalize canonicalizes a raw phone number or email address.
//
// Input containing '@' is treated as an email: lowercased and trimmed, no
// further transformation. Anything else is parsed as a phone number; a
// leading '+' selects international parsing, otherwise region resolves the
// national-to-international mapping (falling back to DefaultRegion when
// region is empty).
func Normalize(raw, region string) (Identifier, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Identifier{}, fmt.Errorf("%w: empty input", ErrInvalidIdentifier)
	}

	if strings.Contains(trimmed, "@") {
		return Identifier{
			Raw:       raw,
			Canonical: strings.ToLower(trimmed),
			Kind:      KindEmail,
		}, nil
	}

	canonical, err := normalizePhone(trimmed, region)
	if err != nil {
		return Identifier{}, err
	}
	return Identifier{Raw: raw, Canonical: canonical, Kind: KindPhone}, nil
}

// normalizePhone parses a phone number to E.164 form.
func normalizePhone(number, region string) (string, error) {
	for _, r := range number {
		if unicode.IsLetter(r) {
			return "", fmt.Errorf("%w: %q is not a phone number", ErrInvalidIdentifier, number)
		}
	}

	if region == "" {
		region = DefaultRegion
	}

	parsed, err := phonenumbers.Parse(number, region)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidIdentifier, number, err)
	}
	if !phonenumbers.IsValidNumber(parsed) && !phonenumbers.IsPossibleNumber(parsed) {
		return "", fmt.Errorf("%w: %q has an impossible digit count", ErrInvalidIdentifier, number)
	}
	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}

// Match reports whether two normalized identifiers refer to the same
// contact. Matching is exact canonical equality and therefore symmetric.
func Match(a, b Identifier) bool {
	return a.Canonical != "" && a.Canonical == b.Canonical
}

// MatchRaw reports whether a user-supplied query identifier matches a
// stored one, normalizing both sides first. When either side fails to
// parse as a phone number, it falls back to comparing the trailing seven
// digits, which tolerates stored handles with truncated or local-format
// numbers. Emails compare case-insensitively.
func MatchRaw(query, stored, region string) bool {
	if query == "" || stored == "" {
		return false
	}

	if strings.Contains(query, "@") || strings.Contains(stored, "@") {
		return strings.EqualFold(strings.TrimSpace(query), strings.TrimSpace(stored))
	}

	qn, qerr := normalizePhone(strings.TrimSpace(query), region)
	sn, serr := normalizePhone(strings.TrimSpace(stored), region)
	if qerr == nil && serr == nil {
		return qn == sn
	}

	// Suffix fallback for unparseable numbers. Seven digits is the shortest
	// unambiguous national significant number we accept.
	qd := digitsOnly(query)
	sd := digitsOnly(stored)
	if len(qd) < 7 || len(sd) < 7 {
		return false
	}
	return strings.HasSuffix(qd, sd[len(sd)-7:]) || strings.HasSuffix(sd, qd[len(qd)-7:])
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
