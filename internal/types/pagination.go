package types

import "time"

// PageInfo contains pagination metadata for list responses.
type PageInfo struct {
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// ListResponse is a generic paginated response wrapper.
type ListResponse[T any] struct {
	Data     []T      `json:"data"`
	PageInfo PageInfo `json:"pagination"`
}

// LogFilter defines the query parameters accepted by the admin log viewer.
// Zero values mean "no filter" for that dimension. Cursor-based pagination
// keys on created_at descending.
type LogFilter struct {
	Type    NotificationType
	Channel Channel
	Status  LogStatus
	From    time.Time
	To      time.Time
	Search  string // matched against recipient and subject
	Cursor  string // RFC3339Nano created_at of the last item on the prior page
	Limit   int    // defaults to 20, capped at 100
}
