package apperr

type Code string

const (
	CodeUnknown    Code = "UNKNOWN"
	CodeValidation Code = "VALIDATION"
	CodePermission Code = "PERMISSION_DENIED"
	CodeNotFound   Code = "NOT_FOUND"
	CodeTransient  Code = "TRANSIENT"
)
