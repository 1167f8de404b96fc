package versioning

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONAny is a custom GORM type for map[string]any stored as JSON.
type JSONAny map[string]any

// Scan implements the sql.Scanner interface for JSONAny.
func (m *JSONAny) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("unsupported type for JSONAny: %T", value)
	}
	return json.Unmarshal(bytes, m)
}

// Value implements the driver.Valuer interface for JSONAny.
func (m JSONAny) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// EventVersionRecord is one snapshot of an event's configuration bundle
// plus its lifecycle status.
//
// DraftGuard and ActiveGuard hold the event number while the row is in the
// corresponding status and NULL otherwise; their unique indexes make a
// second DRAFT or a second ACTIVE row for the same event unrepresentable
// at the storage layer, independent of application logic.
type EventVersionRecord struct {
	ID             string        `gorm:"primaryKey;column:id;type:varchar(36)"`
	EventNo        string        `gorm:"column:event_no;index:idx_version_event_status,priority:1;uniqueIndex:idx_version_event_code,priority:1;not null"`
	VersionCode    string        `gorm:"column:version_code;uniqueIndex:idx_version_event_code,priority:2;not null"`
	VersionDesc    string        `gorm:"column:version_desc"`
	EventType      string        `gorm:"column:event_type"`
	EventGroup     string        `gorm:"column:event_group"`
	Status         VersionStatus `gorm:"column:status;type:varchar(16);index:idx_version_event_status,priority:2;not null"`
	Payload        ConfigPayload `gorm:"column:payload;type:text;not null"`
	LockVersion    int64         `gorm:"column:lock_version;not null;default:0"`
	DraftGuard     *string       `gorm:"column:draft_guard;uniqueIndex:idx_version_single_draft"`
	ActiveGuard    *string       `gorm:"column:active_guard;uniqueIndex:idx_version_single_active"`
	CreatedBy      string        `gorm:"column:created_by;not null"`
	CreatedAt      time.Time     `gorm:"column:created_at;autoCreateTime"`
	LastModifiedBy string        `gorm:"column:last_modified_by"`
	LastModifiedAt time.Time     `gorm:"column:last_modified_at;autoUpdateTime"`
	PublishedAt    *time.Time    `gorm:"column:published_at"`
}

// TableName returns the GORM table name.
func (EventVersionRecord) TableName() string { return "event_versions" }

// AuditEventRecord is an immutable audit log entry for a versioning operation.
type AuditEventRecord struct {
	ID            string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	CorrelationID string    `gorm:"column:correlation_id;index"`
	EventType     string    `gorm:"column:event_type;index:idx_audit_type_time,priority:1;not null"`
	Actor         string    `gorm:"column:actor;not null"`
	EventNo       string    `gorm:"column:event_no;index:idx_audit_event_time,priority:1"`
	VersionID     string    `gorm:"column:version_id"`
	Action        string    `gorm:"column:action"`
	Outcome       string    `gorm:"column:outcome;not null"` // success, failure
	Reason        string    `gorm:"column:reason"`
	OldValue      JSONAny   `gorm:"column:old_value;type:text"`
	NewValue      JSONAny   `gorm:"column:new_value;type:text"`
	CreatedAt     time.Time `gorm:"column:created_at;index:idx_audit_type_time,priority:2;index:idx_audit_event_time,priority:2;autoCreateTime"`
}

// TableName returns the GORM table name.
func (AuditEventRecord) TableName() string { return "config_audit_events" }
