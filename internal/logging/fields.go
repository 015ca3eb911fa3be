package logging

// Field names for structured logging.
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration"
	FieldOperation  = "operation"
	FieldEntityID   = "entity_id"
	FieldStatus     = "status"
	FieldGeneration = "generation"
	FieldSilent     = "silent"
	FieldUser       = "user"
	FieldResource   = "resource"
	FieldOutcome    = "outcome"
	FieldAddr       = "addr"
)

// Component names, used with zap.Logger.Named.
const (
	ComponentAPI      = "api"
	ComponentProvider = "provider"
	ComponentMutation = "mutation"
	ComponentLoader   = "loader"
	ComponentStore    = "store"
	ComponentEvents   = "events"
	ComponentMetrics  = "metrics"
	ComponentDaemon   = "daemon"
	ComponentTUI      = "tui"
)

// Operation names.
const (
	OpLogin         = "login"
	OpLogout        = "logout"
	OpRefresh       = "refresh"
	OpTokenRefresh  = "token_refresh"
	OpUpdatePhase   = "update_phase"
	OpUpdateTask    = "update_task"
	OpUpdatePermit  = "update_permit_status"
	OpLoadSnapshot  = "load_snapshot"
	OpCacheSnapshot = "cache_snapshot"
	OpPublish       = "publish"
	OpPoll          = "poll"
)
