package tolerance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/plantops/telemetry-pipeline/internal/protocol"
)

// Source is an external store of per-device tolerance overrides.
type Source interface {
	// Lookup returns the override for (deviceID, parameter). The second
	// return value is false when no override exists.
	Lookup(ctx context.Context, deviceID, parameter string) (float64, bool, error)
}

// Provider resolves the significance threshold for a device parameter.
// Overrides are refreshed once per event per device so operators can retune
// sensitivity without a restart; lookup failures fall back to the compiled-in
// defaults and never abort event processing.
type Provider struct {
	mu        sync.RWMutex
	defaults  map[string]float64
	overrides map[string]float64
	source    Source
	logger    *zap.Logger
}

// Defaults returns the compiled-in tolerance table.
func Defaults() map[string]float64 {
	return map[string]float64{
		protocol.ParamTemperature: 0.5,
		protocol.ParamHumidity:    2.0,
		protocol.ParamOilLevel:    1.0,
	}
}

func NewProvider(defaults map[string]float64, source Source, logger *zap.Logger) *Provider {
	if defaults == nil {
		defaults = Defaults()
	}
	return &Provider{
		defaults:  defaults,
		overrides: make(map[string]float64),
		source:    source,
		logger:    logger,
	}
}

// Refresh pulls the current overrides for one device. Concurrent refreshes
// for the same device may race; last writer wins, which is acceptable since
// individual key writes are atomic and stale values are tolerated.
func (p *Provider) Refresh(ctx context.Context, deviceID string) {
	if p.source == nil {
		return
	}

	for _, param := range protocol.TrackedParams {
		value, ok, err := p.source.Lookup(ctx, deviceID, param)
		key := overrideKey(deviceID, param)

		p.mu.Lock()
		switch {
		case err != nil:
			// Keep whatever we had; the default still applies below it.
			p.logger.Debug("tolerance lookup failed, keeping default",
				zap.String("device_id", deviceID),
				zap.String("parameter", param),
				zap.Error(err),
			)
		case !ok:
			delete(p.overrides, key)
		case value > 0:
			p.overrides[key] = value
		default:
			// Non-positive overrides are malformed; ignore them.
			delete(p.overrides, key)
		}
		p.mu.Unlock()
	}
}

// Resolve returns the threshold for (deviceID, parameter), preferring a
// refreshed override over the default. It never fails.
func (p *Provider) Resolve(deviceID, parameter string) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if v, ok := p.overrides[overrideKey(deviceID, parameter)]; ok {
		return v
	}
	return p.defaults[parameter]
}

func overrideKey(deviceID, parameter string) string {
	return deviceID + ":" + parameter
}

// RedisSource reads tolerance overrides from Redis keys of the form
// <prefix>:<deviceId>:<parameter>.
type RedisSource struct {
	client *redis.Client
	prefix string
}

func NewRedisSource(client *redis.Client, prefix string) *RedisSource {
	if prefix == "" {
		prefix = "tolerance"
	}
	return &RedisSource{client: client, prefix: prefix}
}

func (s *RedisSource) Lookup(ctx context.Context, deviceID, parameter string) (float64, bool, error) {
	key := fmt.Sprintf("%s:%s:%s", s.prefix, deviceID, parameter)

	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read tolerance %s: %w", key, err)
	}

	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false, fmt.Errorf("malformed tolerance %s=%q: %w", key, val, err)
	}
	return f, true, nil
}
