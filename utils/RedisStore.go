package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/motongxue/fileTransferKit/models"
)

const (
	FILE_RECORD_KEY     = "ft:file:"
	SESSION_FILES_KEY   = "ft:session:"
	recordTTL           = 24 * time.Hour
	defaultStoreTimeout = 2 * time.Second
)

// ErrRecordNotFound 记录不存在或已过期
var ErrRecordNotFound = errors.New("file record not found")

// TransferStore 保存并查询接收完成的文件记录，可跨进程保留过去会话的记录
type TransferStore interface {
	SaveRecord(ctx context.Context, record models.FileRecord) error
	GetRecord(ctx context.Context, sessionID, name string) (models.FileRecord, error)
	SessionFiles(ctx context.Context, sessionID string) ([]string, error)
}

// RedisStore 记录以 JSON 存于 FILE_RECORD_KEY+会话+文件名，会话的文件名集合存于 SESSION_FILES_KEY+会话
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore 连接并 Ping
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(ctx, defaultStoreTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", cfg.Addr, err)
	}
	return &RedisStore{client: client}, nil
}

func recordKey(sessionID, name string) string {
	return FILE_RECORD_KEY + sessionID + ":" + name
}

func (s *RedisStore) SaveRecord(ctx context.Context, record models.FileRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, recordKey(record.SessionID, record.Name), data, recordTTL)
	pipe.SAdd(ctx, SESSION_FILES_KEY+record.SessionID, record.Name)
	pipe.Expire(ctx, SESSION_FILES_KEY+record.SessionID, recordTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// GetRecord 读取一条记录，不存在时返回 ErrRecordNotFound
func (s *RedisStore) GetRecord(ctx context.Context, sessionID, name string) (models.FileRecord, error) {
	var record models.FileRecord
	val, err := s.client.Get(ctx, recordKey(sessionID, name)).Result()
	if errors.Is(err, redis.Nil) {
		return record, ErrRecordNotFound
	}
	if err != nil {
		return record, err
	}
	err = json.Unmarshal([]byte(val), &record)
	return record, err
}

// SessionFiles 会话中接收的文件名
func (s *RedisStore) SessionFiles(ctx context.Context, sessionID string) ([]string, error) {
	return s.client.SMembers(ctx, SESSION_FILES_KEY+sessionID).Result()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
