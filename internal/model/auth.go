package model

// Auth state change events, delivered over the change feed so open sessions
// react to sign-in and sign-out from any device.
const (
	AuthEventSignIn  = "sign_in"
	AuthEventSignOut = "sign_out"
)

type AuthEvent struct {
	UserID string `json:"userId"`
	Event  string `json:"event"`
}
