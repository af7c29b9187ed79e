package main

import (
	"context"
	"sync"
	"time"
)

// This file contains mocks definitions needed to perform unit tests.

type MockBookStorage struct {
	AddFunc    func(ctx context.Context, book Book) (Book, error)
	GetOneFunc func(ctx context.Context, id int64) (Book, error)
	ToggleFunc func(ctx context.Context, id int64) (Book, error)
	GetAllFunc func(ctx context.Context) ([]Book, error)
}

// Add mocks the behavior of book creation by the repository.
func (m *MockBookStorage) Add(ctx context.Context, book Book) (Book, error) {
	return m.AddFunc(ctx, book)
}

// GetOne mocks the behavior of retrieving a book by the repository.
func (m *MockBookStorage) GetOne(ctx context.Context, id int64) (Book, error) {
	return m.GetOneFunc(ctx, id)
}

// ToggleAvailability mocks the behavior of flipping a book availability.
func (m *MockBookStorage) ToggleAvailability(ctx context.Context, id int64) (Book, error) {
	return m.ToggleFunc(ctx, id)
}

// GetAll mocks the behavior of retrieving all books by the repository.
func (m *MockBookStorage) GetAll(ctx context.Context) ([]Book, error) {
	return m.GetAllFunc(ctx)
}

// MockBookService implements a fake BookServiceProvider.
type MockBookService struct {
	ListFunc   func(ctx context.Context) ([]Book, error)
	CreateFunc func(ctx context.Context, title, author string) (Book, error)
	ToggleFunc func(ctx context.Context, id int64) (Book, error)
	GetOneFunc func(ctx context.Context, id int64) (Book, error)
}

func (m *MockBookService) List(ctx context.Context) ([]Book, error) {
	return m.ListFunc(ctx)
}

func (m *MockBookService) Create(ctx context.Context, title, author string) (Book, error) {
	return m.CreateFunc(ctx, title, author)
}

func (m *MockBookService) ToggleAvailability(ctx context.Context, id int64) (Book, error) {
	return m.ToggleFunc(ctx, id)
}

func (m *MockBookService) GetOne(ctx context.Context, id int64) (Book, error) {
	return m.GetOneFunc(ctx, id)
}

// queueEvent is a single pushed change.
type queueEvent struct {
	qid  string
	book Book
	err  error
}

// MockQueue records pushed events and replays the scripted ones on Pop.
// Pop blocks on ctx once the script is exhausted.
type MockQueue struct {
	mu      sync.Mutex
	PushErr error
	Pushed  []queueEvent
	Script  []queueEvent
}

func (m *MockQueue) Push(_ context.Context, qid string, book Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PushErr != nil {
		return m.PushErr
	}
	m.Pushed = append(m.Pushed, queueEvent{qid: qid, book: book})
	return nil
}

func (m *MockQueue) Pop(ctx context.Context, _ ...string) (string, Book, error) {
	m.mu.Lock()
	if len(m.Script) > 0 {
		ev := m.Script[0]
		m.Script = m.Script[1:]
		m.mu.Unlock()
		return ev.qid, ev.book, ev.err
	}
	m.mu.Unlock()
	<-ctx.Done()
	return "", Book{}, ctx.Err()
}

func (m *MockQueue) pushed() []queueEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]queueEvent(nil), m.Pushed...)
}

// MockArchiver records saved books.
type MockArchiver struct {
	mu      sync.Mutex
	SaveErr error
	Saved   []Book
}

func (m *MockArchiver) Save(_ context.Context, book Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Saved = append(m.Saved, book)
	return m.SaveErr
}

func (m *MockArchiver) saved() []Book {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Book(nil), m.Saved...)
}

// MockClocker implements a fake Clocker.
type MockClocker struct {
	MockNow time.Time
}

// NewMockClocker returns a mocked instance with fixed time.
func NewMockClocker() *MockClocker {
	return &MockClocker{time.Date(2023, 0o7, 0o2, 0o0, 0o0, 0o0, 0o00000000, time.UTC)}
}

// Now returns an already defined time to be used as mock. This
// equals to `Sun, 02 Jul 2023 00:00:00 UTC` in time.RFC1123 format.
func (mck *MockClocker) Now() time.Time {
	return mck.MockNow
}

// MockUIDHandler implements a fake UIDHandler.
type MockUIDHandler struct {
	MockedUID string
	Valid     bool
}

// NewMockUIDHandler returns a mocked instance with predictable id.
func NewMockUIDHandler(id string, valid bool) *MockUIDHandler {
	return &MockUIDHandler{MockedUID: id, Valid: valid}
}

// Generate constructs a predictable id to be used as mock.
func (muid *MockUIDHandler) Generate(prefix string) string {
	return prefix + ":" + muid.MockedUID
}

// IsValid mocks IsValid behavior by providing configured status.
func (muid *MockUIDHandler) IsValid(_, _ string) bool {
	return muid.Valid
}
