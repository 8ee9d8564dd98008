package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Standard tracing fields propagated through the call chain.
const (
	// FieldJobID is the scrape job ID
	FieldJobID = "job_id"

	// FieldManufacturerID is the manufacturer being processed
	FieldManufacturerID = "manufacturer_id"

	// FieldOrganizationID is the owning organization
	FieldOrganizationID = "organization_id"

	// FieldEvent is the pipeline event name
	FieldEvent = "event"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldRequestID is the API request ID
	FieldRequestID = "request_id"
)

// Standard metric fields used for aggregation and alerting.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
