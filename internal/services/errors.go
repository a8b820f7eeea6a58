package services

import "errors"

// Service errors
var (
	ErrDatabaseMissing = errors.New("database not initialised")
	ErrInvalidTable    = errors.New("invalid table name")
	ErrInvalidInput    = errors.New("invalid input")
)
