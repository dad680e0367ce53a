package funds

import "errors"

var (
	ErrInvalidCredit     = errors.New("invalid funds credit: amount must be positive and reference set")
	ErrReferenceConflict = errors.New("funds reference already used for a different amount")
	ErrInternal          = errors.New("internal error")
)
