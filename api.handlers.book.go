package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// Index provides same details like `Status` handler by redirecting the request.
func (api *APIHandler) Index(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	http.Redirect(w, r, "/status", http.StatusSeeOther)
}

// Status provides basics details about the application to the public users.
//
//	@Summary	Service status
//	@Tags		status
//	@Produce	json
//	@Success	200	{object}	StatusResponse
//	@Router		/status [get]
func (api *APIHandler) Status(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	resp := StatusResponse{
		RequestID: GetValueFromContext(r.Context(), RequestIDContextKey),
		Status:    fmt.Sprintf("up & running since %.0f mins", api.clock.Now().Sub(api.stats.started).Minutes()),
		Message:   "Hello. Library catalog api is available. Enjoy :)",
	}
	if err := WriteResponse(r.Context(), w, http.StatusOK, resp); err != nil {
		api.GetLoggerFromContext(r.Context()).Error("failed to send status response", zap.Error(err))
	}
}

// sendError writes the error envelope and logs a failed write.
func (api *APIHandler) sendError(w http.ResponseWriter, r *http.Request, status int, message string, data interface{}) {
	errResp := NewAPIError(GetValueFromContext(r.Context(), RequestIDContextKey), status, message, data)
	if err := WriteErrorResponse(r.Context(), w, errResp); err != nil {
		api.GetLoggerFromContext(r.Context()).Error("failed to send error response", zap.Error(err))
	}
}

// sendStorageError maps a service error which is not a validation error.
func (api *APIHandler) sendStorageError(w http.ResponseWriter, r *http.Request, err error, message string) {
	switch {
	case errors.Is(err, ErrBookNotFound):
		api.sendError(w, r, http.StatusNotFound, "book does not exist", EmptyData)
	case errors.Is(err, ErrStorageUnavailable):
		api.sendError(w, r, http.StatusServiceUnavailable, "storage temporarily unavailable", EmptyData)
	default:
		api.sendError(w, r, http.StatusInternalServerError, message, EmptyData)
	}
}

// GetAllBooks returns the full catalog.
//
//	@Summary	List all books
//	@Tags		books
//	@Produce	json
//	@Success	200	{array}		Book
//	@Failure	503	{object}	APIError
//	@Router		/api/books [get]
func (api *APIHandler) GetAllBooks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	logger := api.GetLoggerFromContext(r.Context())
	books, err := api.bookService.List(r.Context())
	if err != nil {
		logger.Error("failed to get all books", zap.Error(err))
		api.sendStorageError(w, r, err, "failed to get all books")
		return
	}
	logger.Info("success to get all books", zap.Int("books.total", len(books)))
	if err = WriteResponse(r.Context(), w, http.StatusOK, books); err != nil {
		logger.Error("failed to send response", zap.Error(err))
	}
}

// CreateBook adds a new available book to the catalog.
//
//	@Summary	Create a book
//	@Tags		books
//	@Accept		json
//	@Produce	json
//	@Param		book	body		CreateBookRequest	true	"title and author"
//	@Success	201		{object}	Book
//	@Failure	400		{object}	APIError
//	@Failure	503		{object}	APIError
//	@Router		/api/books [post]
func (api *APIHandler) CreateBook(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	logger := api.GetLoggerFromContext(r.Context())
	payload := CreateBookRequest{}
	if err := DecodeCreateBookRequestBody(r, &payload); err != nil {
		logger.Error("failed to create book", zap.Error(err))
		api.sendError(w, r, http.StatusBadRequest, "failed to create the book", "invalid request body")
		return
	}

	book, err := api.bookService.Create(r.Context(), payload.Title, payload.Author)
	if IsValidationError(err) {
		logger.Error("failed to create book", zap.Error(err))
		api.sendError(w, r, http.StatusBadRequest, "failed to create the book", err.Error())
		return
	}
	if err != nil {
		logger.Error("failed to create book", zap.Error(err))
		api.sendStorageError(w, r, err, "failed to create the book")
		return
	}

	logger.Info("success to create book", zap.Int64("book.id", book.ID))
	if err = WriteResponse(r.Context(), w, http.StatusCreated, book); err != nil {
		logger.Error("failed to send response", zap.Error(err))
	}
}

// GetOneBook returns a single book.
//
//	@Summary	Get a book
//	@Tags		books
//	@Produce	json
//	@Param		id	path		int	true	"book id"
//	@Success	200	{object}	Book
//	@Failure	404	{object}	APIError
//	@Router		/api/books/{id} [get]
func (api *APIHandler) GetOneBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	logger := api.GetLoggerFromContext(r.Context()).With(zap.String("book.id", ps.ByName("id")))
	id, ok := ParseBookID(ps.ByName("id"))
	if !ok {
		logger.Error("book id provided is not valid")
		api.sendError(w, r, http.StatusNotFound, "book does not exist", EmptyData)
		return
	}
	book, err := api.bookService.GetOne(r.Context(), id)
	if err != nil {
		logger.Error("failed to get book", zap.Error(err))
		api.sendStorageError(w, r, err, "failed to get the book")
		return
	}
	logger.Info("success to get book")
	if err = WriteResponse(r.Context(), w, http.StatusOK, book); err != nil {
		logger.Error("failed to send response", zap.Error(err))
	}
}

// ToggleBook issues an available book or returns an issued one.
//
//	@Summary	Toggle book availability
//	@Tags		books
//	@Produce	json
//	@Param		id	path		int	true	"book id"
//	@Success	200	{object}	Book
//	@Failure	404	{object}	APIError
//	@Failure	503	{object}	APIError
//	@Router		/api/books/{id} [put]
func (api *APIHandler) ToggleBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	logger := api.GetLoggerFromContext(r.Context()).With(zap.String("book.id", ps.ByName("id")))
	id, ok := ParseBookID(ps.ByName("id"))
	if !ok {
		logger.Error("book id provided is not valid")
		api.sendError(w, r, http.StatusNotFound, "book does not exist", EmptyData)
		return
	}
	book, err := api.bookService.ToggleAvailability(r.Context(), id)
	if err != nil {
		logger.Error("failed to toggle book", zap.Error(err))
		api.sendStorageError(w, r, err, "failed to update the book")
		return
	}
	logger.Info("success to toggle book", zap.Bool("book.available", book.IsAvailable))
	if err = WriteResponse(r.Context(), w, http.StatusOK, book); err != nil {
		logger.Error("failed to send response", zap.Error(err))
	}
}
