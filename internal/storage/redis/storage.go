package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/relaygate/internal/model"
	"github.com/mcoot/relaygate/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func (s *Storage) SaveUserEntry(ctx context.Context, entry *model.UserEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, userEntryKey(entry.AccountID), data, s.cfg.UserEntryTTL)
	pipe.SAdd(ctx, userIndexKey(), int64(entry.AccountID))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) GetUserEntry(ctx context.Context, accountID model.AccountID) (*model.UserEntry, error) {
	data, err := s.client.Get(ctx, userEntryKey(accountID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrUserNotFound
		}
		return nil, err
	}

	var entry model.UserEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	if entry.UserRoles == nil {
		entry.UserRoles = []string{}
	}
	return &entry, nil
}

func (s *Storage) DeleteUserEntry(ctx context.Context, accountID model.AccountID) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, userEntryKey(accountID))
	pipe.SRem(ctx, userIndexKey(), int64(accountID))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Storage) ListUserEntries(ctx context.Context) ([]*model.UserEntry, error) {
	members, err := s.client.SMembers(ctx, userIndexKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return []*model.UserEntry{}, nil
	}

	keys := make([]string, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 32)
		if err != nil {
			continue
		}
		keys = append(keys, userEntryKey(model.AccountID(id)))
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]*model.UserEntry, 0, len(values))
	for _, v := range values {
		// expired entries leave a stale index member behind
		str, ok := v.(string)
		if !ok {
			continue
		}
		var entry model.UserEntry
		if err := json.Unmarshal([]byte(str), &entry); err != nil {
			return nil, err
		}
		if entry.UserRoles == nil {
			entry.UserRoles = []string{}
		}
		entries = append(entries, &entry)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].AccountID < entries[j].AccountID })
	return entries, nil
}
