package publish

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/strefethen/anthem-hub-go/internal/events"
)

// redisCmdable is the subset of *redis.Client the shadow uses.
type redisCmdable interface {
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Close() error
}

// RedisShadow mirrors the latest receiver and zone state into Redis
// hashes:
//
//	<prefix>:shadow:<device>           connection, inputs, last fault
//	<prefix>:shadow:<device>:zone:<n>  zone state fields
type RedisShadow struct {
	client redisCmdable
	prefix string
	ttl    time.Duration
	logger *log.Logger
}

// ConnectRedis parses a redis:// URL and pings the server.
func ConnectRedis(ctx context.Context, url, prefix string, ttl time.Duration, logger *log.Logger) (*RedisShadow, error) {
	if logger == nil {
		logger = log.Default()
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Printf("REDIS: Connected to %s", opts.Addr)
	return NewRedisShadow(client, prefix, ttl, logger), nil
}

// NewRedisShadow wraps an existing client.
func NewRedisShadow(client redisCmdable, prefix string, ttl time.Duration, logger *log.Logger) *RedisShadow {
	if logger == nil {
		logger = log.Default()
	}
	if prefix == "" {
		prefix = "anthem"
	}
	return &RedisShadow{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

// DeviceKey returns the receiver-level hash key.
func (r *RedisShadow) DeviceKey(deviceID string) string {
	return fmt.Sprintf("%s:shadow:%s", r.prefix, deviceID)
}

// ZoneKey returns the hash key of one zone.
func (r *RedisShadow) ZoneKey(deviceID string, zone int) string {
	return fmt.Sprintf("%s:shadow:%s:zone:%d", r.prefix, deviceID, zone)
}

func (r *RedisShadow) Publish(ctx context.Context, env events.Envelope) error {
	ts := strconv.FormatInt(env.Timestamp.Unix(), 10)

	switch data := env.Data.(type) {
	case events.ZoneChangedData:
		return r.write(ctx, r.ZoneKey(env.DeviceID, data.Zone), zoneFields(data.State), "ts", ts)
	case events.ConnectionChangedData:
		return r.write(ctx, r.DeviceKey(env.DeviceID), nil, "connection", data.State, "ts", ts)
	case events.InputsDiscoveredData:
		return r.write(ctx, r.DeviceKey(env.DeviceID), nil,
			"inputs", strings.Join(data.Inputs, "|"),
			"input_count", strconv.Itoa(len(data.Inputs)),
			"ts", ts)
	case events.DeviceFaultData:
		return r.write(ctx, r.DeviceKey(env.DeviceID), nil, "last_fault", data.Line, "ts", ts)
	}
	return nil
}

func (r *RedisShadow) write(ctx context.Context, key string, fields []any, extra ...any) error {
	values := append(fields, extra...)
	if err := r.client.HSet(ctx, key, values...).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	if r.ttl > 0 {
		if err := r.client.Expire(ctx, key, r.ttl).Err(); err != nil {
			return fmt.Errorf("expire %s: %w", key, err)
		}
	}
	return nil
}

func (r *RedisShadow) Close() error {
	return r.client.Close()
}

func zoneFields(zone events.ZonePayload) []any {
	return []any{
		"power", strconv.FormatBool(zone.Power),
		"volume_db", strconv.Itoa(zone.VolumeDB),
		"volume_percent", strconv.Itoa(zone.VolumePercent),
		"muted", strconv.FormatBool(zone.Muted),
		"input_number", strconv.Itoa(zone.InputNumber),
		"input_name", zone.InputName,
		"listening_mode", zone.ListeningMode,
		"listening_mode_number", strconv.Itoa(zone.ListeningModeNumber),
		"audio_format", zone.AudioFormat,
		"audio_channels", zone.AudioChannels,
		"video_resolution", zone.VideoResolution,
		"sample_rate_info", zone.SampleRateInfo,
		"sample_rate_khz", strconv.Itoa(zone.SampleRateKHz),
		"bit_depth", strconv.Itoa(zone.BitDepth),
	}
}
