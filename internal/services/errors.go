package services

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type ConflictError struct{ Message string }

func (e *ConflictError) Error() string { return e.Message }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type ForbiddenError struct{ Message string }

func (e *ForbiddenError) Error() string { return e.Message }

// AuthenticationFailedError covers unknown accounts, wrong passwords and
// deactivated accounts alike, so the response does not reveal which.
type AuthenticationFailedError struct{ Message string }

func (e *AuthenticationFailedError) Error() string { return e.Message }
