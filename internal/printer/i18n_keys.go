package printer

const (
	keyTableTime      = "table.time"
	keyTableMethod    = "table.method"
	keyTableStatus    = "table.status"
	keyTableDuration  = "table.duration"
	keyTableSize      = "table.size"
	keyTablePath      = "table.path"
	keyRowTrace       = "row.trace"
	keyStatusGraphQL  = "status.graphql"
	keyStatusToken    = "status.token"
	keyStatusAccess   = "status.access"
	keyStatusWarning  = "status.warning"
	keyStatusCritical = "status.critical"
	keyStatusElapsed  = "status.elapsed"
	keyNoticePrefix   = "session."
)
