package models

// Session groups an ordered conversation thread. OwnerID is nil for
// anonymous sessions; Title is nil until the user renames the thread.
type Session struct {
	ID        string  `json:"id"`
	OwnerID   *string `json:"owner_id,omitempty"`
	Title     *string `json:"title,omitempty"`
	Pinned    bool    `json:"pinned"`
	CreatedAt int64   `json:"created_at"`
}

// SessionSummary is a listing row with the derived display title: explicit
// custom title, else the first user message truncated, else a placeholder.
type SessionSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Pinned    bool   `json:"pinned"`
	CreatedAt int64  `json:"created_at"`
}
