package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Recognized provider identifiers. Submissions referencing anything outside
// this set are rejected at validation time.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderXAI       = "xai"
)

// KnownProviders is the closed set of provider identifiers
var KnownProviders = map[string]bool{
	ProviderOpenAI:    true,
	ProviderAnthropic: true,
	ProviderGemini:    true,
	ProviderXAI:       true,
}

// IsKnownProvider reports whether id names a recognized provider
func IsKnownProvider(id string) bool {
	return KnownProviders[id]
}

// ProviderList is the set of providers requested by a job, stored as a JSON
// array in the providers column.
type ProviderList []string

// Value implements driver.Valuer for sqlx writes
func (p ProviderList) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner for sqlx reads
func (p *ProviderList) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	case nil:
		*p = nil
		return nil
	default:
		return fmt.Errorf("cannot scan providers from %T", src)
	}
}

// Fingerprint returns a canonical form of the provider set, used as the
// deduplication key alongside paper_id. Order-insensitive.
func (p ProviderList) Fingerprint() string {
	sorted := make([]string, len(p))
	copy(sorted, p)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
