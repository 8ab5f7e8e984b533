package core

import "github.com/pkg/errors"

var (
	ErrImmutable       = errors.New("snapshot is immutable")
	ErrInvalidDataset  = errors.New("invalid dataset")
	ErrInvalidPlan     = errors.New("invalid plan")
	ErrInvalidActivity = errors.New("invalid activity")
	ErrFileNotFound    = errors.New("file not found in dataset")
)
