package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// SessionStatus represents the lifecycle state of an import session
type SessionStatus string

const (
	SessionStatusParsed     SessionStatus = "parsed"
	SessionStatusDraftSaved SessionStatus = "draft_saved"
	SessionStatusSaved      SessionStatus = "saved"
	SessionStatusDiscarded  SessionStatus = "discarded"
	SessionStatusRolledBack SessionStatus = "rolled_back"
)

// ChangeOperation discriminates change-log entries
type ChangeOperation string

const (
	ChangeOpCreated ChangeOperation = "created"
	ChangeOpUpdated ChangeOperation = "updated"
)

// FileManifestEntry records one uploaded source file and the entity kind its
// rows were routed to. The manifest is append-only.
type FileManifestEntry struct {
	Filename   string     `json:"filename"`
	Entity     EntityKind `json:"entity"`
	RowCount   int        `json:"rowCount"`
	UploadedAt time.Time  `json:"uploadedAt"`
}

// FileManifest is the JSONB-stored list of uploaded files
type FileManifest []FileManifestEntry

func (m FileManifest) Value() (driver.Value, error) {
	if m == nil {
		m = FileManifest{}
	}
	return json.Marshal(m)
}

func (m *FileManifest) Scan(value interface{}) error {
	if value == nil {
		*m = FileManifest{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, m)
}

// ChangeLogEntry records one catalog write made during commit, with enough
// state to reverse it. PreviousSnapshot is the full pre-update entity for
// updates and empty for creates.
type ChangeLogEntry struct {
	Entity           EntityKind      `json:"entity"`
	Operation        ChangeOperation `json:"operation"`
	ID               uuid.UUID       `json:"id"`
	PreviousSnapshot json.RawMessage `json:"previousSnapshot,omitempty"`
}

// ChangeLog is the JSONB-stored ordered record of commit writes
type ChangeLog []ChangeLogEntry

func (c ChangeLog) Value() (driver.Value, error) {
	if c == nil {
		c = ChangeLog{}
	}
	return json.Marshal(c)
}

func (c *ChangeLog) Scan(value interface{}) error {
	if value == nil {
		*c = ChangeLog{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, c)
}

// ImportSession is the aggregate root for one bulk catalog import
type ImportSession struct {
	ID                 uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID           string         `json:"tenantId" gorm:"column:tenant_id;not null;index"`
	CreatedBy          string         `json:"createdBy" gorm:"column:created_by;not null"`
	Status             SessionStatus  `json:"status" gorm:"type:varchar(20);not null;default:'parsed';index"`
	OriginalFiles      FileManifest   `json:"originalFiles" gorm:"column:original_files;type:jsonb"`
	ParsedData         ParsedDataset  `json:"parsedData" gorm:"column:parsed_data;type:jsonb"`
	ValidationErrors   IssueList      `json:"validationErrors" gorm:"column:validation_errors;type:jsonb"`
	ValidationWarnings IssueList      `json:"validationWarnings" gorm:"column:validation_warnings;type:jsonb"`
	AppliedChangeLog   ChangeLog      `json:"appliedChangeLog,omitempty" gorm:"column:applied_change_log;type:jsonb"`
	Metadata           datatypes.JSON `json:"metadata,omitempty" gorm:"type:jsonb"`
	SavedAt            *time.Time     `json:"savedAt,omitempty" gorm:"column:saved_at"`
	RolledBackAt       *time.Time     `json:"rolledBackAt,omitempty" gorm:"column:rolled_back_at"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

// TableName returns the table name for ImportSession
func (ImportSession) TableName() string {
	return "import_sessions"
}

// TerminalStatuses lists the states history clearing may sweep. Saved is not
// terminal: its change log is still needed for rollback.
var TerminalStatuses = []SessionStatus{SessionStatusDiscarded, SessionStatusRolledBack}

// IsTerminal returns true if the session can no longer change state
func (s *ImportSession) IsTerminal() bool {
	return s.Status == SessionStatusDiscarded || s.Status == SessionStatusRolledBack
}

// IsEditable returns true if the draft may still be modified
func (s *ImportSession) IsEditable() bool {
	return s.Status == SessionStatusParsed || s.Status == SessionStatusDraftSaved
}

// RollbackFailure records one change-log entry that could not be reversed
type RollbackFailure struct {
	Entry  ChangeLogEntry `json:"entry"`
	Reason string         `json:"reason"`
}

// RollbackResult reports the outcome of reversing a committed session
type RollbackResult struct {
	Reversed int               `json:"reversed"`
	Failed   []RollbackFailure `json:"failed,omitempty"`
}
