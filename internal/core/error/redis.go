package errx

import (
	"context"
	"errors"
	"net/http"

	"github.com/redis/go-redis/v9"
)

// RedisTimeoutMessage describes a checkpoint read or write that ran out of time.
const RedisTimeoutMessage = "redis operation timed out"

// WrapRedis classifies a checkpoint store error. A missing key is 404,
// an exhausted deadline 504, a lost optimistic transaction 409, anything else 502.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, redis.Nil):
		return New(err, http.StatusNotFound, RedisNotFoundMessage)
	case errors.Is(err, context.DeadlineExceeded):
		return New(err, http.StatusGatewayTimeout, RedisTimeoutMessage)
	case errors.Is(err, redis.TxFailedErr):
		return New(err, http.StatusConflict, RedisErrorMessage)
	}
	return New(err, http.StatusBadGateway, RedisErrorMessage)
}
