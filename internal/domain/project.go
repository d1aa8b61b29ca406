package domain

import "time"

// MaxRetentionDays caps a project's retention override at one hundred years.
const MaxRetentionDays = 36500

// Project scopes logs and owns the API key used for ingestion.
type Project struct {
	ID      string
	Name    string
	APIKey  string
	OwnerID string
	// RetentionDays is nil when the system default applies; 0 keeps logs forever.
	RetentionDays *int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// EffectiveRetentionDays resolves the retention window against the system default.
func (p Project) EffectiveRetentionDays(defaultDays int) int {
	if p.RetentionDays != nil {
		return *p.RetentionDays
	}
	return defaultDays
}

// ValidRetentionDays reports whether days is an acceptable override.
func ValidRetentionDays(days int) bool {
	return days >= 0 && days <= MaxRetentionDays
}
