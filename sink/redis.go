package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/miku/oaipoll"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultStream is the stream records are appended to.
const DefaultStream = "oaipoll:records"

// connectionTimeout is the timeout for verifying the Redis connection.
const connectionTimeout = 5 * time.Second

var (
	ErrEmptyAddress = errors.New("redis address is required")
	ErrBadCodec     = errors.New("unknown codec")
)

// Codec names the encoding of the record field of a stream entry.
type Codec string

const (
	JSON    Codec = "json"
	MsgPack Codec = "msgpack"
)

// ParseCodec returns a codec by name, empty is JSON.
func ParseCodec(s string) (Codec, error) {
	switch Codec(s) {
	case "", JSON:
		return JSON, nil
	case MsgPack:
		return MsgPack, nil
	}
	return "", fmt.Errorf("%w: %s", ErrBadCodec, s)
}

func (c Codec) marshal(r oaipoll.Record) ([]byte, error) {
	if c == MsgPack {
		return msgpack.Marshal(r)
	}
	return json.Marshal(r)
}

// Unmarshal decodes the record field of a stream entry.
func (c Codec) Unmarshal(b []byte, r *oaipoll.Record) error {
	if c == MsgPack {
		return msgpack.Unmarshal(b, r)
	}
	return json.Unmarshal(b, r)
}

// RedisConfig holds Redis connection and stream settings.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Stream   string
	// MaxLen trims the stream approximately, zero keeps everything.
	MaxLen int64
	Codec  Codec
}

// NewRedisClient creates a client and verifies the connection.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Redis appends records to a Redis stream. Each entry carries an event id,
// the endpoint, the codec and the encoded record.
type Redis struct {
	client redis.Cmdable
	stream string
	maxLen int64
	codec  Codec
}

// NewRedis creates a stream sink on an existing client.
func NewRedis(client redis.Cmdable, cfg RedisConfig) *Redis {
	s := &Redis{client: client, stream: cfg.Stream, maxLen: cfg.MaxLen, codec: cfg.Codec}
	if s.stream == "" {
		s.stream = DefaultStream
	}
	if s.codec == "" {
		s.codec = JSON
	}
	return s
}

// Emit adds a single stream entry.
func (s *Redis) Emit(ctx context.Context, r oaipoll.Record) error {
	payload, err := s.codec.marshal(r)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"event_id":   uuid.New().String(),
			"endpoint":   r.Endpoint,
			"identifier": r.Identifier,
			"codec":      string(s.codec),
			"record":     payload,
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("publish to stream: %w", err)
	}
	return nil
}
