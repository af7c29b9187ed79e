package client

import (
	"context"
	"io"
	"sync"
	"text/template"

	"go.uber.org/zap"
)

// Service is the part of the transport the catalog relies on.
type Service interface {
	List(ctx context.Context) ([]Book, error)
	Create(ctx context.Context, title, author string) (Book, error)
	ToggleAvailability(ctx context.Context, id int64) (Book, error)
}

var _ Service = (*Client)(nil)

const EmptyCatalogMessage = "No books in the library yet. Add one above!"

var catalogTemplate = template.Must(template.New("catalog").Parse(
	`{{if not .}}` + EmptyCatalogMessage + `
{{else}}{{range .}}[{{.ID}}] {{.Title}}
    by {{.Author}}
    Status: {{if .IsAvailable}}Available{{else}}Issued{{end}}
    ({{if .IsAvailable}}Issue Book{{else}}Return Book{{end}}: toggle {{.ID}})
{{end}}{{end}}`))

// Catalog is the local view of the service catalog plus the pending
// create form. Failed calls are logged and leave the view as it was.
type Catalog struct {
	logger  *zap.Logger
	service Service

	mu     sync.Mutex
	books  []Book
	title  string
	author string
}

func NewCatalog(logger *zap.Logger, service Service) *Catalog {
	return &Catalog{logger: logger, service: service}
}

// Mount loads the first snapshot.
func (c *Catalog) Mount(ctx context.Context) {
	c.Refresh(ctx)
}

// Refresh replaces the whole snapshot with the service catalog.
func (c *Catalog) Refresh(ctx context.Context) {
	books, err := c.service.List(ctx)
	if err != nil {
		c.logger.Error("failed to fetch books", zap.Error(err))
		return
	}
	c.mu.Lock()
	c.books = books
	c.mu.Unlock()
}

func (c *Catalog) SetTitle(title string) {
	c.mu.Lock()
	c.title = title
	c.mu.Unlock()
}

func (c *Catalog) SetAuthor(author string) {
	c.mu.Lock()
	c.author = author
	c.mu.Unlock()
}

// Input returns the pending title and author.
func (c *Catalog) Input() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.title, c.author
}

// Submit creates a book from the pending input. Nothing is sent while
// a field is empty. The input is cleared only after a successful create.
func (c *Catalog) Submit(ctx context.Context) {
	title, author := c.Input()
	if title == "" || author == "" {
		c.logger.Warn("title and author are both required")
		return
	}
	book, err := c.service.Create(ctx, title, author)
	if err != nil {
		c.logger.Error("failed to add book", zap.Error(err))
		return
	}
	c.logger.Debug("book added", zap.Int64("book.id", book.ID))
	c.mu.Lock()
	c.title, c.author = "", ""
	c.mu.Unlock()
	c.Refresh(ctx)
}

// Toggle issues or returns a book then reloads the snapshot.
func (c *Catalog) Toggle(ctx context.Context, id int64) {
	if _, err := c.service.ToggleAvailability(ctx, id); err != nil {
		c.logger.Error("failed to update book", zap.Int64("book.id", id), zap.Error(err))
		return
	}
	c.Refresh(ctx)
}

// Snapshot returns a copy of the current books.
func (c *Catalog) Snapshot() []Book {
	c.mu.Lock()
	defer c.mu.Unlock()
	books := make([]Book, len(c.books))
	copy(books, c.books)
	return books
}

// Render writes the current snapshot.
func (c *Catalog) Render(w io.Writer) error {
	return catalogTemplate.Execute(w, c.Snapshot())
}
