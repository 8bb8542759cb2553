package model

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")

	// ErrCapacity is returned when a creation would push the relic count past the maximum.
	ErrCapacity = errors.New("relic capacity reached")
	// ErrAlreadyHolder is returned when the target actor already holds a relic.
	ErrAlreadyHolder = errors.New("actor already holds a relic")
	// ErrNotHolder is returned when an operation needs a holder and the actor is not one.
	ErrNotHolder = errors.New("actor does not hold a relic")
	ErrCooldown  = errors.New("cooldown active")
	ErrDisabled  = errors.New("feature disabled")
)
