package versioning

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// VersionStatus represents the lifecycle status of an event configuration version.
type VersionStatus string

const (
	StatusDraft    VersionStatus = "draft"
	StatusActive   VersionStatus = "active"
	StatusApproved VersionStatus = "approved"
	StatusArchived VersionStatus = "archived"
)

// PayloadSection identifies one replaceable section of a configuration bundle.
type PayloadSection string

const (
	SectionBasicInfo       PayloadSection = "basicInfo"
	SectionFieldConfig     PayloadSection = "fieldConfig"
	SectionStatementConfig PayloadSection = "statementConfig"
	SectionIndicatorConfig PayloadSection = "indicatorConfig"
)

// Sections lists all valid payload sections.
var Sections = []PayloadSection{
	SectionBasicInfo,
	SectionFieldConfig,
	SectionStatementConfig,
	SectionIndicatorConfig,
}

// Valid reports whether s is a known payload section.
func (s PayloadSection) Valid() bool {
	for _, known := range Sections {
		if s == known {
			return true
		}
	}
	return false
}

// ConfigPayload is the opaque configuration bundle of a version, keyed by
// section. Section contents are raw JSON handed over by the sub-editors;
// this subsystem never interprets them. Stored as a single JSON column.
type ConfigPayload map[PayloadSection]json.RawMessage

// Scan implements the sql.Scanner interface for ConfigPayload.
func (p *ConfigPayload) Scan(value any) error {
	if value == nil {
		*p = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("unsupported type for ConfigPayload: %T", value)
	}
	return json.Unmarshal(bytes, p)
}

// Value implements the driver.Valuer interface for ConfigPayload.
func (p ConfigPayload) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Clone returns a deep copy of the payload. Mutating the copy never
// affects the original.
func (p ConfigPayload) Clone() ConfigPayload {
	out := make(ConfigPayload, len(p))
	for section, blob := range p {
		cp := make(json.RawMessage, len(blob))
		copy(cp, blob)
		out[section] = cp
	}
	return out
}

// VersionSummary is one entry of an event's version timeline.
type VersionSummary struct {
	ID             string        `json:"id"`
	EventNo        string        `json:"eventNo"`
	VersionCode    string        `json:"versionCode"`
	VersionDesc    string        `json:"versionDesc,omitempty"`
	Status         VersionStatus `json:"status"`
	IsCurrent      bool          `json:"isCurrent"`
	CreatedBy      string        `json:"createdBy"`
	CreatedAt      string        `json:"createdAt"`
	LastModifiedBy string        `json:"lastModifiedBy,omitempty"`
	PublishedAt    string        `json:"publishedAt,omitempty"`
}

// TimelineResponse is a paginated version timeline, newest first.
type TimelineResponse struct {
	EventNo       string           `json:"eventNo"`
	Versions      []VersionSummary `json:"versions"`
	NextPageToken string           `json:"nextPageToken,omitempty"`
	TotalSize     int              `json:"totalSize"`
}

// DraftResponse is the API representation of an editable draft.
type DraftResponse struct {
	ID                string        `json:"id"`
	EventNo           string        `json:"eventNo"`
	VersionCode       string        `json:"versionCode"`
	Status            VersionStatus `json:"status"`
	Payload           ConfigPayload `json:"payload"`
	HasUnsavedChanges bool          `json:"hasUnsavedChanges"`
	LastModifiedBy    string        `json:"lastModifiedBy,omitempty"`
	LastModifiedAt    string        `json:"lastModifiedAt,omitempty"`
}

// SectionDiff describes how one payload section differs between two versions.
type SectionDiff struct {
	Section PayloadSection `json:"section"`
	Change  string         `json:"change"` // added, removed, changed
	Ops     int            `json:"ops,omitempty"`
}

// DiffResponse is the structural diff summary between two versions.
type DiffResponse struct {
	VersionA string        `json:"versionA"`
	VersionB string        `json:"versionB"`
	Sections []SectionDiff `json:"sections"`
}
