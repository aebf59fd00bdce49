package enums

type AuthStatus string

const (
	AuthStatusSuccess           AuthStatus = "success"
	AuthStatusWaiting           AuthStatus = "waiting"
	AuthStatusTwoFactorRequired AuthStatus = "2fa_required"
	AuthStatusTimeout           AuthStatus = "timeout"
	AuthStatusAlreadyAuthorized AuthStatus = "already_authorized"
	AuthStatusError             AuthStatus = "error"
)
