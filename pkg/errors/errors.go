package errors

import "errors"

var (
	// Search errors
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrInsufficientData  = errors.New("insufficient reference data")

	// Training errors
	ErrInvalidParameter    = errors.New("invalid parameter")
	ErrUnsupportedHashType = errors.New("unsupported hash type")
	ErrInvalidDimension    = errors.New("invalid vector dimension")

	// Snapshot errors
	ErrCorruptSnapshot = errors.New("corrupt snapshot")

	// Registry errors
	ErrIndexNotFound = errors.New("index not found")
	ErrIndexExists   = errors.New("index already exists")
)
