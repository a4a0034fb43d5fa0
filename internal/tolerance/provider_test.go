package tolerance_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/plantops/telemetry-pipeline/internal/protocol"
	"github.com/plantops/telemetry-pipeline/internal/tolerance"
)

func newRedisProvider(t *testing.T) (*tolerance.Provider, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	source := tolerance.NewRedisSource(client, "tolerance")
	return tolerance.NewProvider(nil, source, zap.NewNop()), mr
}

func TestProvider_DefaultsWithoutSource(t *testing.T) {
	p := tolerance.NewProvider(nil, nil, zap.NewNop())
	p.Refresh(context.Background(), "esp32_02")

	require.Equal(t, 0.5, p.Resolve("esp32_02", protocol.ParamTemperature))
	require.Equal(t, 2.0, p.Resolve("esp32_02", protocol.ParamHumidity))
	require.Equal(t, 1.0, p.Resolve("esp32_02", protocol.ParamOilLevel))
}

func TestProvider_OverrideFromRedis(t *testing.T) {
	p, mr := newRedisProvider(t)

	mr.Set("tolerance:esp32_02:temperature", "1.5")
	p.Refresh(context.Background(), "esp32_02")

	require.Equal(t, 1.5, p.Resolve("esp32_02", protocol.ParamTemperature))
	// Other parameters keep their defaults.
	require.Equal(t, 2.0, p.Resolve("esp32_02", protocol.ParamHumidity))
	// Other devices are unaffected.
	require.Equal(t, 0.5, p.Resolve("esp32_01", protocol.ParamTemperature))
}

func TestProvider_OverrideRemovedOnNextRefresh(t *testing.T) {
	p, mr := newRedisProvider(t)

	mr.Set("tolerance:esp32_02:temperature", "1.5")
	p.Refresh(context.Background(), "esp32_02")
	require.Equal(t, 1.5, p.Resolve("esp32_02", protocol.ParamTemperature))

	// Operator deletes the override; next event's refresh restores the
	// default without a restart.
	mr.Del("tolerance:esp32_02:temperature")
	p.Refresh(context.Background(), "esp32_02")
	require.Equal(t, 0.5, p.Resolve("esp32_02", protocol.ParamTemperature))
}

func TestProvider_MalformedOverrideFallsBack(t *testing.T) {
	p, mr := newRedisProvider(t)

	mr.Set("tolerance:esp32_02:temperature", "not-a-number")
	p.Refresh(context.Background(), "esp32_02")

	require.Equal(t, 0.5, p.Resolve("esp32_02", protocol.ParamTemperature))
}

func TestProvider_NonPositiveOverrideIgnored(t *testing.T) {
	p, mr := newRedisProvider(t)

	mr.Set("tolerance:esp32_02:temperature", "-2")
	p.Refresh(context.Background(), "esp32_02")

	require.Equal(t, 0.5, p.Resolve("esp32_02", protocol.ParamTemperature))
}

func TestProvider_SourceDownFallsBack(t *testing.T) {
	p, mr := newRedisProvider(t)

	mr.Set("tolerance:esp32_02:temperature", "1.5")
	p.Refresh(context.Background(), "esp32_02")
	require.Equal(t, 1.5, p.Resolve("esp32_02", protocol.ParamTemperature))

	// Source outage: the refresh must not abort processing, and the last
	// known override stays in effect.
	mr.Close()
	p.Refresh(context.Background(), "esp32_02")
	require.Equal(t, 1.5, p.Resolve("esp32_02", protocol.ParamTemperature))
}
