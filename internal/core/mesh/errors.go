package mesh

import "errors"

var (
	// ErrInvalidMapping reports a bad indirection table or map endpoints.
	ErrInvalidMapping = errors.New("invalid mapping")
	// ErrShapeMismatch reports initial dat values of the wrong length or type.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrUnknownHandle reports a handle that was never issued or is stale.
	ErrUnknownHandle = errors.New("unknown handle")
	// ErrDuplicateName reports a dat name that is already declared.
	ErrDuplicateName = errors.New("duplicate name")
	// ErrInvalidSet reports a set declaration with a negative size.
	ErrInvalidSet = errors.New("invalid set")
)
