package enums

type AttemptType string

const (
	AttemptTypeQR       AttemptType = "qr"
	AttemptTypePhone    AttemptType = "phone"
	AttemptTypePassword AttemptType = "2fa"
)

type AttemptStatus string

const (
	AttemptStatusPending AttemptStatus = "pending"
	AttemptStatusSuccess AttemptStatus = "success"
	AttemptStatusFailed  AttemptStatus = "failed"
	AttemptStatusTimeout AttemptStatus = "timeout"
)
