package models

// Identity is the resolved subject of a verified credential.
type Identity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
}
