package requester

// IdentityMismatchError is returned when the contact details supplied during a
// lookup do not match the record on file. The message is intentionally generic
// so callers cannot probe which field was wrong.
type IdentityMismatchError struct{}

func (e *IdentityMismatchError) Error() string {
	return "los datos suministrados no coinciden con el registro"
}
