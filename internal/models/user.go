package models

// User is the account row referenced by owned sessions. The chat core only
// ever uses the ID; credential fields never leave the auth surface.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	PasswordHash string `json:"-"`
	Salt         string `json:"-"`
	Provider     string `json:"provider"`
	CreatedAt    int64  `json:"created_at"`
}
