package adapter

import (
	"testing"
	"time"

	"go-stranger/internal/infrastructure/queue/port"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func optionTypes(opts []asynq.Option) []asynq.OptionType {
	out := make([]asynq.OptionType, len(opts))
	for i, o := range opts {
		out[i] = o.Type()
	}
	return out
}

func TestToAsynqOptions(t *testing.T) {
	assert.Nil(t, toAsynqOptions(nil))

	opts := toAsynqOptions([]port.EnqueueOption{{
		Queue:     "maintenance",
		ProcessIn: time.Second,
		MaxRetry:  1,
		Timeout:   5 * time.Second,
		UniqueTTL: 10 * time.Second,
	}})
	assert.Equal(t, []asynq.OptionType{
		asynq.ProcessInOpt, asynq.QueueOpt, asynq.MaxRetryOpt, asynq.TimeoutOpt, asynq.UniqueOpt,
	}, optionTypes(opts))
}

func TestToAsynqOptionsProcessAtWins(t *testing.T) {
	opts := toAsynqOptions([]port.EnqueueOption{{ProcessAt: time.Now().Add(time.Minute), ProcessIn: time.Second}})
	require.Len(t, opts, 1)
	assert.Equal(t, asynq.ProcessAtOpt, opts[0].Type())
}

func TestConstructorsRequireRedisURL(t *testing.T) {
	_, err := NewAsynqClient("")
	assert.Error(t, err)
	_, err = NewAsynqServer("", ServerConfig{}, nil)
	assert.Error(t, err)
	_, err = NewAsynqScheduler("", nil)
	assert.Error(t, err)
	_, err = NewAsynqClient("mysql://nope")
	assert.Error(t, err)
}
