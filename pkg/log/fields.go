package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor (matches pkg/middleware/session.go keys)
	FieldUsername = "username"

	// Chat
	FieldRoom         = "room"
	FieldGroup        = "group"
	FieldConnectionID = "connection_id"
	FieldInstanceID   = "instance_id"

	// Service
	FieldService = "service"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
