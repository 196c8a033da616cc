package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/knu-deptqa/server/internal/agent/model"
	errx "github.com/knu-deptqa/server/internal/core/error"
	logx "github.com/knu-deptqa/server/pkg/logger"
)

const threadsKey = "threads"

// RedisStateRepository stores each thread's state as one JSON value and keeps
// an index of thread ids in a set.
type RedisStateRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisStateRepository(rdb redis.Cmdable, ttl time.Duration) *RedisStateRepository {
	return &RedisStateRepository{rdb: rdb, ttl: ttl}
}

func (r *RedisStateRepository) stateKey(threadID string) string {
	return fmt.Sprintf("thread:%s:state", threadID)
}

func (r *RedisStateRepository) Load(ctx context.Context, threadID string) (*model.ConversationState, error) {
	key := r.stateKey(threadID)
	raw, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrThreadNotFound
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load thread state from redis")
		return nil, errx.WrapRedis(err)
	}

	var state model.ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		logx.Error().Err(err).Str("thread_id", threadID).Msg("failed to unmarshal thread state")
		return nil, errx.Invariant("unmarshal state of thread %s: %w", threadID, err)
	}
	return &state, nil
}

func (r *RedisStateRepository) Save(ctx context.Context, state *model.ConversationState) error {
	if state == nil || state.ThreadID == "" {
		return errx.Invariant("cannot save a state without thread id")
	}
	b, err := json.Marshal(state)
	if err != nil {
		logx.Error().Err(err).Str("thread_id", state.ThreadID).Msg("failed to marshal thread state")
		return fmt.Errorf("marshal thread state: %w", err)
	}

	key := r.stateKey(state.ThreadID)
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, b, r.ttl)
		pipe.SAdd(ctx, threadsKey, state.ThreadID)
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to save thread state to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

// List returns the threads newest first. Ids whose state expired are pruned
// from the index.
func (r *RedisStateRepository) List(ctx context.Context) ([]model.ThreadSummary, error) {
	ids, err := r.rdb.SMembers(ctx, threadsKey).Result()
	if err != nil {
		logx.Error().Err(err).Msg("failed to list threads from redis")
		return nil, errx.WrapRedis(err)
	}

	out := make([]model.ThreadSummary, 0, len(ids))
	for _, id := range ids {
		state, err := r.Load(ctx, id)
		if errors.Is(err, model.ErrThreadNotFound) {
			if err := r.rdb.SRem(ctx, threadsKey, id).Err(); err != nil {
				logx.Warn().Err(err).Str("thread_id", id).Msg("failed to prune expired thread")
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, state.Summary())
	}
	sortSummaries(out)
	return out, nil
}

func (r *RedisStateRepository) Delete(ctx context.Context, threadID string) error {
	key := r.stateKey(threadID)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.SRem(ctx, threadsKey, threadID)
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete thread state from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func sortSummaries(s []model.ThreadSummary) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].UpdatedAt.Equal(s[j].UpdatedAt) {
			return s[i].ThreadID < s[j].ThreadID
		}
		return s[i].UpdatedAt.After(s[j].UpdatedAt)
	})
}

var _ model.StateRepository = (*RedisStateRepository)(nil)
