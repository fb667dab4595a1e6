package queue

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestEnqueueDequeueRetry(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	q := NewQueue(client, nil)

	id, err := q.EnqueueOptimizerRun(ctx, OptimizerRunPayload{Day: "2026-10-01", Force: true})
	require.NoError(err)

	job, err := q.Dequeue(ctx)
	require.NoError(err)
	require.NotNil(job)
	require.Equal(id, job.ID)
	require.Equal(JobTypeOptimizerRun, job.Type)

	var p OptimizerRunPayload
	require.NoError(json.Unmarshal(job.Payload, &p))
	require.Equal("2026-10-01", p.Day)
	require.True(p.Force)

	for i := 0; i < MaxRetries; i++ {
		require.NoError(q.Retry(ctx, job))
		if i < MaxRetries-1 {
			job, err = q.Dequeue(ctx)
			require.NoError(err)
			require.NotNil(job)
		}
	}
	n, err := client.LLen(ctx, QueueDLQ).Result()
	require.NoError(err)
	require.EqualValues(1, n)
}
