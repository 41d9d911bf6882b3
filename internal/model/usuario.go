package model

// Identity is the authenticated user as reported by the store's auth channel.
type Identity struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

// Perfil binds an authenticated user to exactly one place. Read-only here;
// looked up once per session to resolve which lista to load.
type Perfil struct {
	UserID  string `json:"user_id"`
	PlaceID string `json:"place_id"`
}
