package main

import (
	"context"
	"errors"
)

var (
	// ErrBookNotFound is returned when no book matches the given id.
	ErrBookNotFound = errors.New("book not found")
	// ErrStorageUnavailable wraps any storage failure which is not a domain error.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// missingFieldError is the validation error returned on book creation.
type missingFieldError string

func (m missingFieldError) Error() string {
	return string(m) + " is required"
}

// IsValidationError reports whether err carries a missing field error.
func IsValidationError(err error) bool {
	var mfe missingFieldError
	return errors.As(err, &mfe)
}

// Book represents a book entity.
type Book struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	IsAvailable bool   `json:"is_available"`
}

// BookStorage defines possible operations on book entity. Ids are
// assigned by the storage itself on Add, in increasing order.
type BookStorage interface {
	Add(ctx context.Context, book Book) (Book, error)
	GetOne(ctx context.Context, id int64) (Book, error)
	ToggleAvailability(ctx context.Context, id int64) (Book, error)
	GetAll(ctx context.Context) ([]Book, error)
}

// BookArchiver stores a book as-is under its existing id.
type BookArchiver interface {
	Save(ctx context.Context, book Book) error
}
