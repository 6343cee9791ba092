package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/anthem-hub-go/internal/anthem/session"
	"github.com/strefethen/anthem-hub-go/internal/anthem/state"
	"github.com/strefethen/anthem-hub-go/internal/events"
)

type published struct {
	subject string
	data    []byte
}

type fakeNATS struct {
	messages []published
	err      error
	drained  bool
}

func (f *fakeNATS) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, published{subject: subject, data: data})
	return nil
}

func (f *fakeNATS) Drain() error {
	f.drained = true
	return nil
}

type fakeRedis struct {
	hashes  map[string]map[string]string
	expires map[string]time.Duration
	closed  bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{hashes: map[string]map[string]string{}, expires: map[string]time.Duration{}}
}

func (f *fakeRedis) HSet(_ context.Context, key string, values ...any) *redis.IntCmd {
	hash := f.hashes[key]
	if hash == nil {
		hash = map[string]string{}
		f.hashes[key] = hash
	}
	for i := 0; i+1 < len(values); i += 2 {
		hash[values[i].(string)] = values[i+1].(string)
	}
	return redis.NewIntResult(int64(len(values)/2), nil)
}

func (f *fakeRedis) Expire(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	f.expires[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

func envelope(t *testing.T, deviceID string, ev session.Event) events.Envelope {
	t.Helper()
	env, ok := events.NewEnvelope(deviceID, ev, time.Unix(1700000000, 0))
	require.True(t, ok)
	return env
}

func TestNATSPublisher_Subjects(t *testing.T) {
	conn := &fakeNATS{}
	publisher := NewNATSPublisher(conn, "home", nil)

	env := envelope(t, "den", session.ConnectionChanged{State: session.StateReady})
	require.NoError(t, publisher.Publish(context.Background(), env))

	require.Len(t, conn.messages, 2)
	require.Equal(t, "home.den.connection_changed", conn.messages[0].subject)
	require.Equal(t, "home.all", conn.messages[1].subject)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(conn.messages[0].data, &decoded))
	require.Equal(t, "den", decoded["device_id"])
	require.Equal(t, "ready", decoded["data"].(map[string]any)["state"])

	require.NoError(t, publisher.Close())
	require.True(t, conn.drained)
}

func TestNATSPublisher_SanitizesDeviceID(t *testing.T) {
	publisher := NewNATSPublisher(&fakeNATS{}, "", nil)
	env := envelope(t, "living.room", session.DeviceFault{Code: "!I", Line: "!IZ1VOL"})
	require.Equal(t, "anthem.living_room.device_fault", publisher.Subject(env))
}

func TestNATSPublisher_WrapsErrors(t *testing.T) {
	boom := errors.New("boom")
	publisher := NewNATSPublisher(&fakeNATS{err: boom}, "anthem", nil)
	err := publisher.Publish(context.Background(), envelope(t, "den", session.ConnectionChanged{}))
	require.ErrorIs(t, err, boom)
}

func TestRedisShadow_ZoneAndDeviceHashes(t *testing.T) {
	client := newFakeRedis()
	shadow := NewRedisShadow(client, "anthem", time.Hour, nil)
	ctx := context.Background()

	require.NoError(t, shadow.Publish(ctx, envelope(t, "den", session.ZoneChanged{
		Zone:    2,
		Changed: []state.Attribute{state.AttrPower},
		State:   state.ZoneState{Zone: 2, Power: true, VolumeDB: -40, InputName: "Phono"},
	})))
	require.NoError(t, shadow.Publish(ctx, envelope(t, "den", session.ConnectionChanged{State: session.StateReady})))
	require.NoError(t, shadow.Publish(ctx, envelope(t, "den", session.InputsDiscovered{Inputs: []string{"A", "B"}})))

	zone := client.hashes["anthem:shadow:den:zone:2"]
	require.Equal(t, "true", zone["power"])
	require.Equal(t, "-40", zone["volume_db"])
	require.Equal(t, "Phono", zone["input_name"])
	require.Equal(t, "1700000000", zone["ts"])

	device := client.hashes["anthem:shadow:den"]
	require.Equal(t, "ready", device["connection"])
	require.Equal(t, "A|B", device["inputs"])
	require.Equal(t, "2", device["input_count"])

	require.Equal(t, time.Hour, client.expires["anthem:shadow:den"])
	require.Equal(t, time.Hour, client.expires["anthem:shadow:den:zone:2"])

	require.NoError(t, shadow.Close())
	require.True(t, client.closed)
}

func TestRedisShadow_ZoneHashMatchesStreamPayload(t *testing.T) {
	client := newFakeRedis()
	shadow := NewRedisShadow(client, "anthem", 0, nil)

	zoneState := state.ZoneState{
		Zone:                1,
		ListeningMode:       "Dolby Surround",
		ListeningModeNumber: 4,
		SampleRateInfo:      "48 kHz",
	}
	require.NoError(t, shadow.Publish(context.Background(), envelope(t, "den", session.ZoneChanged{
		Zone:    1,
		Changed: []state.Attribute{state.AttrListeningMode},
		State:   zoneState,
	})))

	raw, err := json.Marshal(events.NewZonePayload(zoneState))
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))

	hash := client.hashes["anthem:shadow:den:zone:1"]
	for key := range payload {
		if key == "zone" {
			continue
		}
		require.Contains(t, hash, key)
	}
	require.Equal(t, "4", hash["listening_mode_number"])
	require.Equal(t, "48 kHz", hash["sample_rate_info"])
}

func TestRedisShadow_NoTTL(t *testing.T) {
	client := newFakeRedis()
	shadow := NewRedisShadow(client, "anthem", 0, nil)
	require.NoError(t, shadow.Publish(context.Background(), envelope(t, "den", session.DeviceFault{Code: "!E", Line: "!EZ1XYZ"})))
	require.Equal(t, "!EZ1XYZ", client.hashes["anthem:shadow:den"]["last_fault"])
	require.Empty(t, client.expires)
}
