package model

import (
	"strings"
	"unicode"
)

// Kind classifies what a finding describes
type Kind string

const (
	KindCompany Kind = "company"
	KindContact Kind = "contact"
)

// Tier classifies a finding by completeness and strength of evidence
type Tier string

const (
	TierHot  Tier = "hot"  // all required fields present, corroborated
	TierWarm Tier = "warm" // core identity present, some fields missing
	TierCold Tier = "cold" // weak signal only
)

// Well-known attribute names used across extraction and tiering
const (
	AttrLocation = "location"
	AttrIndustry = "industry"
	AttrSize     = "size"
	AttrWebsite  = "website"
)

// Contact is a named person attached to a finding
type Contact struct {
	Name  string `json:"name"`
	Title string `json:"title,omitempty"`
	Email string `json:"email,omitempty"`
}

// Complete reports whether the contact record is fully filled in
func (c Contact) Complete() bool {
	return c.Name != "" && c.Title != "" && c.Email != ""
}

// Provenance records where an attribute set came from
type Provenance struct {
	URL        string  `json:"url"`
	Cycle      int     `json:"cycle"`
	Confidence float64 `json:"confidence"`
}

// Finding is a deduplicated structured record about a discovered subject.
// One identity key maps to exactly one Finding; repeated extraction under
// the same key merges instead of duplicating.
type Finding struct {
	Kind Kind   `json:"kind"`
	Name string `json:"name"`

	// Attributes maps attribute name to value. Merge keeps an existing
	// non-empty value unless the newer record's confidence is strictly
	// higher.
	Attributes map[string]string `json:"attributes,omitempty"`

	// Confidence per attribute, parallel to Attributes.
	AttrConfidence map[string]float64 `json:"attr_confidence,omitempty"`

	Contacts []Contact `json:"contacts,omitempty"`

	// Signals are need/pain indicators found in sources, e.g.
	// "hiring for platform team", "legacy ERP migration".
	Signals []string `json:"signals,omitempty"`

	Provenance []Provenance `json:"provenance,omitempty"`
}

// IdentityKey returns the normalized dedup key for this finding
func (f *Finding) IdentityKey() string {
	return IdentityKey(f.Name, f.Attributes[AttrLocation])
}

// IdentityKey normalizes a name (+ optional location) into a stable key,
// tolerant of minor formatting differences: case, punctuation, extra
// whitespace and trailing corporate suffixes are ignored.
func IdentityKey(name, location string) string {
	n := normalizeName(name)
	l := normalizeToken(location)
	if l == "" {
		return n
	}
	return n + "|" + l
}

var corporateSuffixes = []string{
	"inc", "llc", "ltd", "limited", "corp", "corporation",
	"gmbh", "kk", "co", "sa", "ag", "plc",
}

func normalizeName(s string) string {
	fields := strings.Fields(normalizeToken(s))
	for len(fields) > 1 {
		last := fields[len(fields)-1]
		if !isCorporateSuffix(last) {
			break
		}
		fields = fields[:len(fields)-1]
	}
	return strings.Join(fields, " ")
}

func isCorporateSuffix(tok string) bool {
	for _, s := range corporateSuffixes {
		if tok == s {
			return true
		}
	}
	return false
}

// normalizeToken lowercases and strips everything but letters, digits
// and spaces, collapsing runs of whitespace.
func normalizeToken(s string) string {
	var b strings.Builder
	prevSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			prevSpace = false
		case !prevSpace:
			b.WriteRune(' ')
			prevSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// SourceCount returns the number of distinct source URLs in provenance
func (f Finding) SourceCount() int {
	seen := make(map[string]bool)
	for _, p := range f.Provenance {
		seen[p.URL] = true
	}
	return len(seen)
}

// Tier classifies the finding:
//   - Hot: name and location known, at least one complete contact, at
//     least one signal, and corroboration from two or more sources.
//   - Warm: name known plus location, a contact or a signal.
//   - Cold: anything weaker.
func (f Finding) Tier() Tier {
	hasName := f.Name != ""
	hasLocation := f.Attributes[AttrLocation] != ""
	hasSignal := len(f.Signals) > 0
	hasContact := len(f.Contacts) > 0

	completeContact := false
	for _, c := range f.Contacts {
		if c.Complete() {
			completeContact = true
			break
		}
	}

	if hasName && hasLocation && hasSignal && completeContact && f.SourceCount() >= 2 {
		return TierHot
	}
	if hasName && (hasLocation || hasContact || hasSignal) {
		return TierWarm
	}
	return TierCold
}
