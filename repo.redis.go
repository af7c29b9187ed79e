package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	HBooks    string = "books"
	KBooksSeq string = "books:seq"
)

var _ BookStorage = (*redisBookStorage)(nil)

type redisBookStorage struct {
	logger *zap.Logger
	client *redis.Client
}

// NewRedisBookStorage provides an instance of redis-based book storage.
func NewRedisBookStorage(logger *zap.Logger, client *redis.Client) BookStorage {
	return &redisBookStorage{
		logger: logger,
		client: client,
	}
}

// GetRedisClient provides a ready to use redis client.
func GetRedisClient(config *RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", config.Host, config.Port),
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		PoolSize:     config.PoolSize,
		PoolTimeout:  config.PoolTimeout,
		Password:     config.Password,
		Username:     config.Username,
		DB:           config.DatabaseIndex,
	})

	// test connection.
	if pong, err := client.Ping(context.Background()).Result(); pong != "PONG" || err != nil {
		return client, fmt.Errorf("test connection failed: %w", err)
	}
	return client, nil
}

// Add allocates the next id from the sequence key then stores the book.
func (rs *redisBookStorage) Add(ctx context.Context, book Book) (Book, error) {
	id, err := rs.client.Incr(ctx, KBooksSeq).Result()
	if err != nil {
		return Book{}, err
	}
	book.ID = id
	bookBytes, err := json.Marshal(book)
	if err != nil {
		return Book{}, err
	}
	if err = rs.client.HSet(ctx, HBooks, strconv.FormatInt(id, 10), bookBytes).Err(); err != nil {
		return Book{}, err
	}
	return book, nil
}

// GetOne retrieves a book record based on its ID.
func (rs *redisBookStorage) GetOne(ctx context.Context, id int64) (Book, error) {
	var book Book
	bookJSONString, err := rs.client.HGet(ctx, HBooks, strconv.FormatInt(id, 10)).Result()
	if err == redis.Nil {
		return book, ErrBookNotFound
	}
	if err != nil {
		return book, err
	}
	err = json.Unmarshal([]byte(bookJSONString), &book)
	return book, err
}

// toggleScript flips is_available of the book stored under ARGV[1] and
// returns the updated record, or nil when the book does not exist.
var toggleScript = redis.NewScript(`
local raw = redis.call("HGET", KEYS[1], ARGV[1])
if not raw then
	return false
end
local book = cjson.decode(raw)
book.is_available = not book.is_available
local updated = cjson.encode(book)
redis.call("HSET", KEYS[1], ARGV[1], updated)
return updated
`)

// ToggleAvailability flips the availability in a single server side script,
// so concurrent writes on other books never abort it.
func (rs *redisBookStorage) ToggleAvailability(ctx context.Context, id int64) (Book, error) {
	var book Book
	bookJSONString, err := toggleScript.Run(ctx, rs.client, []string{HBooks}, strconv.FormatInt(id, 10)).Text()
	if errors.Is(err, redis.Nil) {
		return book, ErrBookNotFound
	}
	if err != nil {
		return book, fmt.Errorf("redis: toggle of book %d: %w", id, err)
	}
	err = json.Unmarshal([]byte(bookJSONString), &book)
	return book, err
}

// GetAll retrieves all books stored in the redis database ordered by id.
func (rs *redisBookStorage) GetAll(ctx context.Context) ([]Book, error) {
	values, err := rs.client.HVals(ctx, HBooks).Result()
	if err != nil {
		return nil, err
	}
	books := make([]Book, 0, len(values))
	for _, bookJSONString := range values {
		var book Book
		if err = json.Unmarshal([]byte(bookJSONString), &book); err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	sort.Slice(books, func(i, j int) bool { return books[i].ID < books[j].ID })
	return books, nil
}
