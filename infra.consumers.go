package main

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// popRetryDelay is the pause after a failed pop so a broken
// transport does not turn the loop into a busy spin.
var popRetryDelay = time.Second

type Consumer interface {
	Consume(ctx context.Context, qids ...string) error
}

// BookReader reads the current state of a book.
type BookReader interface {
	GetOne(ctx context.Context, id int64) (Book, error)
}

type archiveConsumer struct {
	logger  *zap.Logger
	queue   Queuer
	source  BookReader
	archive BookArchiver
}

// NewArchiveConsumer provides a consumer which copies every changed book
// into the archive store. The event only names the book: its state is read
// back from source so late events never overwrite newer ones.
func NewArchiveConsumer(logger *zap.Logger, q Queuer, source BookReader, archive BookArchiver) Consumer {
	return &archiveConsumer{logger, q, source, archive}
}

// Consume runs until ctx is done. Pop failures, a closed transport included,
// are logged and retried after popRetryDelay.
func (ac *archiveConsumer) Consume(ctx context.Context, qids ...string) error {
	for {
		qid, book, err := ac.queue.Pop(ctx, qids...)
		if err != nil && ctx.Err() != nil {
			ac.logger.Info("consumer: queue pop call: context is done: exit", zap.String("reason", ctx.Err().Error()))
			return nil
		}

		if err != nil {
			if errors.Is(err, ErrQueueClosed) {
				ac.logger.Error("consumer: queue closed: retrying", zap.Duration("delay", popRetryDelay))
			} else {
				ac.logger.Error("consumer: error on queue pop call", zap.Error(err))
			}
			select {
			case <-ctx.Done():
			case <-time.After(popRetryDelay):
			}
			continue
		}

		switch qid {
		case CreateQueue, ToggleQueue:
			ac.archiveBook(ctx, qid, book)
		default:
			ac.logger.Warn("consumer: received book on unknown queue id", zap.String("qid", qid), zap.Any("book", book))
		}
	}
}

// archiveBook saves the current state of the book named by the event.
// The event payload is only used when the primary store cannot be read.
func (ac *archiveConsumer) archiveBook(ctx context.Context, qid string, book Book) {
	logger := ac.logger.With(zap.String("qid", qid), zap.Int64("book.id", book.ID))
	current, err := ac.source.GetOne(ctx, book.ID)
	switch {
	case errors.Is(err, ErrBookNotFound):
		logger.Warn("consumer: book missing from primary store: skipped")
		return
	case err != nil:
		logger.Error("consumer: failed to read primary store: archiving event payload", zap.Error(err))
		current = book
	}
	if err = ac.archive.Save(ctx, current); err != nil {
		logger.Error("consumer: failed to archive", zap.Any("book", current), zap.Error(err))
	}
}
