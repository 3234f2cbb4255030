package sink

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/miku/oaipoll"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCodec(t *testing.T) {
	var tests = []struct {
		s     string
		codec Codec
		err   error
	}{
		{"", JSON, nil},
		{"json", JSON, nil},
		{"msgpack", MsgPack, nil},
		{"gob", "", ErrBadCodec},
	}
	for _, test := range tests {
		c, err := ParseCodec(test.s)
		if !errors.Is(err, test.err) {
			t.Errorf("ParseCodec(%q) got %v, want %v", test.s, err, test.err)
		}
		if c != test.codec {
			t.Errorf("ParseCodec(%q) got %v, want %v", test.s, c, test.codec)
		}
	}
}

func TestNewRedisClient(t *testing.T) {
	_, err := NewRedisClient(RedisConfig{})
	assert.Equal(t, ErrEmptyAddress, err)

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	client, err := NewRedisClient(RedisConfig{Address: addr})
	require.NoError(t, err)
	defer client.Close()

	mr.Close()
	_, err = NewRedisClient(RedisConfig{Address: addr})
	assert.Error(t, err)
}

func TestRedisEmit(t *testing.T) {
	for _, codec := range []Codec{JSON, MsgPack} {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		s := NewRedis(client, RedisConfig{Codec: codec})
		ctx := context.Background()

		require.NoError(t, s.Emit(ctx, testRecord))
		second := testRecord
		second.Identifier = "oai:x:2"
		second.Deleted = true
		require.NoError(t, s.Emit(ctx, second))

		entries, err := client.XRange(ctx, DefaultStream, "-", "+").Result()
		require.NoError(t, err)
		require.Len(t, entries, 2)

		v := entries[1].Values
		assert.Equal(t, "http://example.com/oai", v["endpoint"])
		assert.Equal(t, "oai:x:2", v["identifier"])
		assert.Equal(t, string(codec), v["codec"])
		_, err = uuid.Parse(v["event_id"].(string))
		assert.NoError(t, err)

		var r oaipoll.Record
		require.NoError(t, codec.Unmarshal([]byte(v["record"].(string)), &r))
		assert.Equal(t, second, r)
		client.Close()
	}
}

func TestRedisMaxLen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	s := NewRedis(client, RedisConfig{Stream: "harvest", MaxLen: 2})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Emit(ctx, testRecord))
	}
	n, err := client.XLen(ctx, "harvest").Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, n, int64(5))
	assert.GreaterOrEqual(t, n, int64(2))
}

func TestRedisEmitError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	s := NewRedis(client, RedisConfig{})
	mr.Close()
	err := s.Emit(context.Background(), testRecord)
	assert.Error(t, err)
}
