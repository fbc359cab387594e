// Package httpapi serves the metastore over a JSON REST API built on chi.
//
//	GET    /api/v1/indexes
//	POST   /api/v1/indexes
//	GET    /api/v1/indexes/{indexID}
//	DELETE /api/v1/indexes/{indexID}[?force=true][&dry_run=true]
//	POST   /api/v1/indexes/{indexID}/reset
//	POST   /api/v1/indexes/{indexID}/gc
//	GET    /api/v1/indexes/{indexID}/splits?split_states=Published&start_timestamp=0&end_timestamp=99&tags=a,b
//	POST   /api/v1/indexes/{indexID}/splits/stage
//	POST   /api/v1/indexes/{indexID}/splits/publish
//	POST   /api/v1/indexes/{indexID}/splits/mark-for-deletion
//
// Errors map to 404 (not found), 409 (conflicts), 422 (invalid arguments
// and state transitions) and 503 (backend unavailable).
package httpapi
