package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, carried on the context logger through a call chain.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldRunID is the sync run ID
	FieldRunID = "run_id"

	// FieldScheduleID is the recurring schedule ID
	FieldScheduleID = "schedule_id"

	// FieldSchoolID is the external school identifier
	FieldSchoolID = "school_id"

	// FieldSource is the data source (arbor, wonde)
	FieldSource = "source"

	// FieldEndpoint is the endpoint step name
	FieldEndpoint = "endpoint"

	// FieldComponent is the component/module name
	FieldComponent = "component"
)

// Metric fields, attached per entry for aggregation.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldStatus     = "status"
	FieldSize       = "size"
)
