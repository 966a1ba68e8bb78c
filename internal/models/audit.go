package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// AuditAction constants represent actions to be logged.
type AuditAction string

const (
	AuditActionTaskCreate        AuditAction = "TASK_CREATE"
	AuditActionTaskStatusUpdate  AuditAction = "TASK_STATUS_UPDATE"
	AuditActionTaskCommentAdd    AuditAction = "TASK_COMMENT_ADD"
	AuditActionTaskAssign        AuditAction = "TASK_ASSIGN"
	AuditActionTaskSummaryAttach AuditAction = "TASK_SUMMARY_ATTACH"
	AuditActionExamCreate        AuditAction = "EXAM_CREATE"
	AuditActionExamUpdate        AuditAction = "EXAM_UPDATE"
	AuditActionExamDelete        AuditAction = "EXAM_DELETE"
	AuditActionExamPublish       AuditAction = "EXAM_RESULTS_PUBLISH"
)

// Audited entity types.
const (
	EntityTask = "task"
	EntityExam = "exam"
)

// DetailKind is the shape of a single audit detail value.
type DetailKind string

const (
	DetailString     DetailKind = "STRING"
	DetailInt        DetailKind = "INT"
	DetailBool       DetailKind = "BOOL"
	DetailStringList DetailKind = "STRING_LIST"
)

// DetailValue is a tagged union; only the field matching Kind is meaningful.
type DetailValue struct {
	Kind DetailKind `json:"kind"`
	Str  string     `json:"str,omitempty"`
	Int  int64      `json:"int,omitempty"`
	Bool bool       `json:"bool,omitempty"`
	List []string   `json:"list,omitempty"`
}

// StringDetail builds a STRING value.
func StringDetail(v string) DetailValue { return DetailValue{Kind: DetailString, Str: v} }

// IntDetail builds an INT value.
func IntDetail(v int) DetailValue { return DetailValue{Kind: DetailInt, Int: int64(v)} }

// BoolDetail builds a BOOL value.
func BoolDetail(v bool) DetailValue { return DetailValue{Kind: DetailBool, Bool: v} }

// ListDetail builds a STRING_LIST value.
func ListDetail(v []string) DetailValue {
	return DetailValue{Kind: DetailStringList, List: append([]string(nil), v...)}
}

// AuditDetails is the structured payload of an audit entry.
type AuditDetails map[string]DetailValue

var auditDetailSchema = map[AuditAction]map[string]DetailKind{
	AuditActionTaskCreate:        {"priority": DetailString, "category": DetailString},
	AuditActionTaskStatusUpdate:  {"reopened": DetailBool},
	AuditActionTaskCommentAdd:    {"commentId": DetailString},
	AuditActionTaskAssign:        {},
	AuditActionTaskSummaryAttach: {"length": DetailInt},
	AuditActionExamCreate:        {"conflictCount": DetailInt, "enrolled": DetailInt, "status": DetailString},
	AuditActionExamUpdate:        {"conflictCount": DetailInt, "fields": DetailStringList},
	AuditActionExamDelete:        {"courseCode": DetailString},
	AuditActionExamPublish:       {},
}

// KnownAuditAction reports whether the action has a detail schema.
func KnownAuditAction(action AuditAction) bool {
	_, ok := auditDetailSchema[action]
	return ok
}

// Validate checks every key and value shape against the action's schema.
func (d AuditDetails) Validate(action AuditAction) error {
	schema, ok := auditDetailSchema[action]
	if !ok {
		return fmt.Errorf("unknown audit action %q", action)
	}
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		want, ok := schema[key]
		if !ok {
			return fmt.Errorf("detail %q is not permitted for %s", key, action)
		}
		if got := d[key].Kind; got != want {
			return fmt.Errorf("detail %q must be %s, got %s", key, want, got)
		}
	}
	return nil
}

// Value implements driver.Valuer.
func (d AuditDetails) Value() (driver.Value, error) {
	if d == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(map[string]DetailValue(d))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan implements sql.Scanner.
func (d *AuditDetails) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*d = AuditDetails{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported audit details source %T", src)
	}
	out := AuditDetails{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("decode audit details: %w", err)
		}
	}
	*d = out
	return nil
}

// AuditLogEntryDraft is what the boundary hands to the recorder.
type AuditLogEntryDraft struct {
	Action        AuditAction
	Performer     Actor
	EntityType    string
	EntityID      string
	PreviousValue *string
	NewValue      *string
	Details       AuditDetails
}

// AuditLogEntry is an immutable audit trail record.
type AuditLogEntry struct {
	ID            string       `db:"id" json:"id"`
	Action        AuditAction  `db:"action" json:"action"`
	PerformerID   string       `db:"performer_id" json:"performerId"`
	PerformerName string       `db:"performer_name" json:"performerName"`
	PerformerRole Role         `db:"performer_role" json:"performerRole"`
	EntityType    string       `db:"entity_type" json:"entityType"`
	EntityID      string       `db:"entity_id" json:"entityId"`
	PreviousValue *string      `db:"previous_value" json:"previousValue,omitempty"`
	NewValue      *string      `db:"new_value" json:"newValue,omitempty"`
	Details       AuditDetails `db:"details" json:"details,omitempty"`
	CreatedAt     time.Time    `db:"created_at" json:"createdAt"`
}

// AuditFilter constrains audit history queries.
type AuditFilter struct {
	EntityID string
	Limit    int
}
