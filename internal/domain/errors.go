package domain

import "errors"

var (
	ErrInvalidID     = errors.New("invalid lead id")
	ErrInvalidName   = errors.New("invalid lead name")
	ErrInvalidRating = errors.New("invalid rating value")
	ErrInvalidColumn = errors.New("invalid board column")
)
