package dto

// ─── Request DTOs ────────────────────────────────────────────────────────────

type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=4"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type UsuarioResponse struct {
	UID     string `json:"uid"`
	Email   string `json:"email"`
	PlaceID string `json:"place_id"`
}

type LoginResponse struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	ExpiresIn   int             `json:"expires_in"`
	User        UsuarioResponse `json:"user"`
	// Status carries the post-login resolution outcome, e.g. a user with no
	// place assigned still logs in but sees why nothing loaded.
	Status string `json:"status"`
}
