package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

type BookServiceProvider interface {
	List(ctx context.Context) ([]Book, error)
	Create(ctx context.Context, title, author string) (Book, error)
	ToggleAvailability(ctx context.Context, id int64) (Book, error)
	GetOne(ctx context.Context, id int64) (Book, error)
}

type BookService struct {
	logger  *zap.Logger
	config  *Config
	storage BookStorage
	queue   Queuer
}

func NewBookService(logger *zap.Logger, config *Config, storage BookStorage, queue Queuer) BookServiceProvider {
	if queue == nil {
		queue = nopQueue{}
	}
	return &BookService{
		logger:  logger,
		config:  config,
		storage: storage,
		queue:   queue,
	}
}

// storageError keeps domain errors as they are and marks anything else as a
// transient storage failure.
func storageError(op string, err error) error {
	if err == nil || errors.Is(err, ErrBookNotFound) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

func (bs *BookService) publish(ctx context.Context, qid string, book Book) {
	if err := bs.queue.Push(ctx, qid, book); err != nil {
		bs.logger.Error("service: failed to push book to queue", zap.String("qid", qid), zap.Int64("book.id", book.ID), zap.Error(err))
	}
}

func (bs *BookService) List(ctx context.Context) ([]Book, error) {
	books, err := bs.storage.GetAll(ctx)
	if err != nil {
		return nil, storageError("list books", err)
	}
	if books == nil {
		books = []Book{}
	}
	return books, nil
}

// Create validates the fields then stores a new available book.
func (bs *BookService) Create(ctx context.Context, title, author string) (Book, error) {
	if err := ValidateCreateBookRequestBody(title, author); err != nil {
		return Book{}, err
	}
	book, err := bs.storage.Add(ctx, Book{Title: title, Author: author, IsAvailable: true})
	if err != nil {
		return Book{}, storageError("create book", err)
	}
	bs.publish(ctx, CreateQueue, book)
	return book, nil
}

// ToggleAvailability flips the availability of an existing book.
func (bs *BookService) ToggleAvailability(ctx context.Context, id int64) (Book, error) {
	book, err := bs.storage.ToggleAvailability(ctx, id)
	if err != nil {
		return Book{}, storageError("toggle book", err)
	}
	bs.publish(ctx, ToggleQueue, book)
	return book, nil
}

func (bs *BookService) GetOne(ctx context.Context, id int64) (Book, error) {
	book, err := bs.storage.GetOne(ctx, id)
	return book, storageError("get book", err)
}
