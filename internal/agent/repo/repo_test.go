package repo

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knu-deptqa/server/internal/agent/model"
	errx "github.com/knu-deptqa/server/internal/core/error"
)

func setupRedis(t *testing.T, ttl time.Duration) (*RedisStateRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStateRepository(client, ttl), mr
}

func sampleState(id string, updated time.Time) *model.ConversationState {
	s := model.NewConversationState(id)
	s.Messages = append(s.Messages,
		model.NewMessage(model.RoleUser, "소프트웨어학과 수강신청 언제야"),
		model.NewMessage(model.RoleAssistant, "2월 20일부터입니다."),
	)
	s.Documents = []model.Document{{
		Content:  "수강신청 안내",
		Metadata: model.DocumentMetadata{FileName: "수강신청", Department: "소프트웨어학과", URL: "https://sw.kongju.ac.kr/1", Date: "2024-02-01"},
	}}
	s.QuestionAppropriate = model.Bool(true)
	s.CurrentDepartment = "소프트웨어학과"
	s.FollowUpChain = []string{"소프트웨어학과 수강신청 언제야"}
	s.Summarization = "수강신청 일정 문의"
	s.UpdatedAt = updated
	return s
}

func repositories(t *testing.T) map[string]model.StateRepository {
	r, _ := setupRedis(t, time.Hour)
	return map[string]model.StateRepository{
		"redis":  r,
		"memory": NewMemoryStateRepository(),
	}
}

func TestRepositoryRoundTrip(t *testing.T) {
	for name, r := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := r.Load(ctx, "missing")
			assert.ErrorIs(t, err, model.ErrThreadNotFound)

			want := sampleState("t1", time.Now().UTC().Truncate(time.Second))
			require.NoError(t, r.Save(ctx, want))

			got, err := r.Load(ctx, "t1")
			require.NoError(t, err)
			assert.Equal(t, want.Messages[1].Content, got.Messages[1].Content)
			assert.Equal(t, want.Documents, got.Documents)
			assert.Equal(t, "소프트웨어학과", got.CurrentDepartment)
			assert.Equal(t, "수강신청 일정 문의", got.Summarization)
			require.NotNil(t, got.QuestionAppropriate)
			assert.True(t, *got.QuestionAppropriate)
			assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt))

			require.NoError(t, r.Delete(ctx, "t1"))
			_, err = r.Load(ctx, "t1")
			assert.ErrorIs(t, err, model.ErrThreadNotFound)
		})
	}
}

func TestRepositoryList(t *testing.T) {
	for name, r := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC()
			require.NoError(t, r.Save(ctx, sampleState("old", now.Add(-time.Hour))))
			require.NoError(t, r.Save(ctx, sampleState("new", now)))

			list, err := r.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "new", list[0].ThreadID)
			assert.Equal(t, "old", list[1].ThreadID)
			assert.Equal(t, 2, list[0].MessageCount)
			assert.Equal(t, "2월 20일부터입니다.", list[0].LastMessage)
		})
	}
}

func TestRepositoryRejectsMissingThreadID(t *testing.T) {
	for name, r := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			err := r.Save(context.Background(), model.NewConversationState(""))
			assert.Equal(t, errx.InvariantMessage, errx.SafeMessage(err))
		})
	}
}

func TestMemoryRepositoryIsolatesCopies(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryStateRepository()
	s := sampleState("t1", time.Now())
	require.NoError(t, r.Save(ctx, s))

	s.Messages[0].Content = "changed"
	got, err := r.Load(ctx, "t1")
	require.NoError(t, err)
	assert.NotEqual(t, "changed", got.Messages[0].Content)

	got.Messages = nil
	again, err := r.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, again.Messages, 2)
}

func TestRedisRepositoryTTLAndPruning(t *testing.T) {
	ctx := context.Background()
	r, mr := setupRedis(t, time.Minute)
	require.NoError(t, r.Save(ctx, sampleState("t1", time.Now())))
	assert.Equal(t, time.Minute, mr.TTL("thread:t1:state"))

	mr.FastForward(2 * time.Minute)
	_, err := r.Load(ctx, "t1")
	assert.ErrorIs(t, err, model.ErrThreadNotFound)

	require.NoError(t, r.Save(ctx, sampleState("t2", time.Now())))
	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "t2", list[0].ThreadID)
	members, err := mr.Members(threadsKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"t2"}, members)

	mr.FastForward(2 * time.Minute)
	list, err = r.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.False(t, mr.Exists(threadsKey), "pruning the last thread removes the index")
}

func TestRedisRepositoryErrors(t *testing.T) {
	ctx := context.Background()
	r, mr := setupRedis(t, 0)
	require.NoError(t, mr.Set("thread:bad:state", "{not json"))
	_, err := r.Load(ctx, "bad")
	require.Error(t, err)
	assert.Equal(t, errx.InvariantMessage, errx.SafeMessage(err))

	mr.Close()
	_, err = r.Load(ctx, "t1")
	require.Error(t, err)
	assert.Equal(t, errx.RedisErrorMessage, errx.SafeMessage(err))
	assert.Equal(t, errx.RedisErrorMessage, errx.SafeMessage(r.Save(ctx, sampleState("t1", time.Now()))))
}
