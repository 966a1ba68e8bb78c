package dto

// AuditQuery filters audit history.
type AuditQuery struct {
	EntityID string `form:"entityId" validate:"omitempty,max=64"`
	Limit    int    `form:"limit" validate:"gte=0"`
}

// AuditExport is a rendered audit download.
type AuditExport struct {
	Filename    string
	ContentType string
	Body        []byte
	Rows        int
}
