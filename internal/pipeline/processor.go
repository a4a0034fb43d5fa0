package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plantops/telemetry-pipeline/internal/alarm"
	"github.com/plantops/telemetry-pipeline/internal/database"
	"github.com/plantops/telemetry-pipeline/internal/delta"
	"github.com/plantops/telemetry-pipeline/internal/devstate"
	"github.com/plantops/telemetry-pipeline/internal/protocol"
	"github.com/plantops/telemetry-pipeline/internal/tolerance"
	"github.com/plantops/telemetry-pipeline/pkg/config"
)

// Store is the durable telemetry/alarm store.
type Store interface {
	InsertTelemetry(ctx context.Context, record *database.TelemetryRecord) error
	InsertAlarm(ctx context.Context, record *database.AlarmRecord) error
}

// Publisher is the real-time broadcast transport.
type Publisher interface {
	PublishTelemetry(payload []byte) error
	PublishAlarm(payload []byte) error
}

// NotificationProducer carries outbound alarm notifications. Satisfied by
// queue.Producer.
type NotificationProducer interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Processor is the stateful decision pipeline: per-device delta detection,
// threshold alarm evaluation, alarm rate limiting, and the storage/publish
// decision. Safe for concurrent batches; events within one batch run
// sequentially to preserve per-device ordering.
type Processor struct {
	cfg        config.PipelineConfig
	registry   config.Registry
	tolerances *tolerance.Provider
	states     *devstate.Store
	detector   *delta.Detector
	rules      *alarm.Rules
	dedup      *alarm.Deduplicator
	store      Store
	publisher  Publisher
	notifier   NotificationProducer
	logger     *zap.Logger
}

func NewProcessor(
	cfg config.PipelineConfig,
	registry config.Registry,
	tolerances *tolerance.Provider,
	states *devstate.Store,
	store Store,
	publisher Publisher,
	notifier NotificationProducer,
	logger *zap.Logger,
) *Processor {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 5 * time.Second
	}
	if cfg.PlaceholderOil <= 0 {
		cfg.PlaceholderOil = alarm.OilHalfLimit
	}
	return &Processor{
		cfg:        cfg,
		registry:   registry,
		tolerances: tolerances,
		states:     states,
		detector:   delta.NewDetector(states, tolerances),
		rules:      alarm.NewRules(tolerances),
		dedup:      alarm.NewDeduplicator(cfg.DedupWindow),
		store:      store,
		publisher:  publisher,
		notifier:   notifier,
		logger:     logger,
	}
}

// ProcessBatch runs the pipeline over one batch of raw events. No error in
// the pipeline is fatal: malformed events are skipped, downstream outages are
// logged and the remaining events continue.
func (p *Processor) ProcessBatch(ctx context.Context, events [][]byte) {
	seen := make(map[string]bool)

	for _, raw := range events {
		p.processEvent(ctx, raw, seen)
	}

	p.reconcile(ctx, seen)
}

func (p *Processor) processEvent(ctx context.Context, raw []byte, seen map[string]bool) {
	reading, err := protocol.NormalizeReading(raw, time.Now())
	if err != nil {
		p.logger.Warn("skipping malformed event", zap.Error(err))
		return
	}

	plant, ok := p.registry.Plants[reading.DeviceID]
	if !ok {
		p.logger.Warn("skipping event from unknown device",
			zap.String("device_id", reading.DeviceID),
		)
		return
	}

	seen[reading.DeviceID] = true

	// Refresh tolerance overrides before the delta check so retuned
	// sensitivity applies without a restart.
	refreshCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	p.tolerances.Refresh(refreshCtx, reading.DeviceID)
	cancel()

	// All shared state mutation for this event happens here, atomically,
	// before any external call is issued.
	result := p.detector.Evaluate(reading)
	if !result.Significant {
		return
	}

	for _, event := range p.rules.Evaluate(reading, result, plant, time.Now()) {
		p.emitAlarm(ctx, event, reading.Raw)
	}

	p.publishTelemetry(reading, plant)

	if result.RelevantChanged || result.FirstSighting {
		p.storeTelemetry(ctx, reading)
	}
}

// publishTelemetry broadcasts every significant event; dashboards see raw
// telemetry regardless of the persistence policy.
func (p *Processor) publishTelemetry(reading *protocol.Reading, plant string) {
	payload, err := protocol.EncodeTelemetryPublish(reading, plant)
	if err != nil {
		p.logger.Error("failed to encode telemetry publish",
			zap.String("device_id", reading.DeviceID),
			zap.Error(err),
		)
		return
	}

	if err := p.publisher.PublishTelemetry(payload); err != nil {
		p.logger.Error("failed to publish telemetry",
			zap.String("device_id", reading.DeviceID),
			zap.Error(err),
		)
	}
}

func (p *Processor) storeTelemetry(ctx context.Context, reading *protocol.Reading) {
	record := &database.TelemetryRecord{
		DeviceName:  reading.DeviceID,
		Timestamp:   reading.EnqueuedAt,
		Raw:         reading.Raw,
		MonthBucket: database.MonthBucket(reading.EnqueuedAt),
		OpenAlerts:  reading.OpenAlerts(),
	}
	if v, ok := reading.Param(protocol.ParamTemperature); ok {
		record.Temperature = &v
	}
	if v, ok := reading.Param(protocol.ParamHumidity); ok {
		record.Humidity = &v
	}
	if v, ok := reading.Param(protocol.ParamOilLevel); ok {
		record.OilLevel = &v
	}

	storeCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()

	if err := p.store.InsertTelemetry(storeCtx, record); err != nil {
		p.logger.Error("failed to store telemetry record",
			zap.String("device_id", reading.DeviceID),
			zap.Error(err),
		)
	}
}

// emitAlarm stores the alarm, then publishes and notifies unless the
// deduplicator rejects the (device, code) key. Storage is never gated by
// rate limiting; alarms are rarer and higher-value than telemetry points.
func (p *Processor) emitAlarm(ctx context.Context, event alarm.Event, raw []byte) {
	admitted := p.dedup.Admit(event.DeviceID, event.Code)

	record := &database.AlarmRecord{
		AlarmID:        p.alarmCodeID(event.Code),
		DeviceID:       p.registry.DeviceIDs[event.DeviceID],
		Value:          event.Value,
		Active:         event.Active,
		CreatedAt:      event.CreatedAt,
		UpdatedAt:      event.CreatedAt,
		TelemetryKeyID: event.Parameter,
		RootCauseID:    event.RootCauseID,
		DeviceName:     event.DeviceID,
		PlantName:      event.Plant,
		Raw:            raw,
	}

	storeCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	if err := p.store.InsertAlarm(storeCtx, record); err != nil {
		p.logger.Error("failed to store alarm record",
			zap.String("device_id", event.DeviceID),
			zap.String("alarm_code", event.Code),
			zap.Error(err),
		)
	}
	cancel()

	if !admitted {
		p.logger.Debug("alarm publish suppressed by rate limit",
			zap.String("device_id", event.DeviceID),
			zap.String("alarm_code", event.Code),
		)
		return
	}

	publish := &protocol.AlarmPublish{
		ID:               uuid.NewString(),
		DeviceID:         event.DeviceID,
		DeviceName:       event.DeviceID,
		AlarmCode:        event.Code,
		AlarmDescription: event.Description,
		AlarmValue:       event.Value,
		PlantName:        event.Plant,
		CreatedTimestamp: event.CreatedAt,
		IsActive:         event.Active,
		TelemetryKeyID:   event.Parameter,
		AlarmRootCauseID: event.RootCauseID,
	}

	payload, err := protocol.EncodeAlarmPublish(publish)
	if err != nil {
		p.logger.Error("failed to encode alarm publish", zap.Error(err))
		return
	}
	if err := p.publisher.PublishAlarm(payload); err != nil {
		p.logger.Error("failed to publish alarm",
			zap.String("device_id", event.DeviceID),
			zap.String("alarm_code", event.Code),
			zap.Error(err),
		)
	}

	if event.Notify {
		p.notifyAlarm(ctx, event)
	}
}

func (p *Processor) notifyAlarm(ctx context.Context, event alarm.Event) {
	notification := &protocol.AlarmNotification{
		Type:             protocol.NotificationTypeTriggered,
		DeviceID:         event.DeviceID,
		DeviceName:       event.DeviceID,
		PlantName:        event.Plant,
		AlarmCode:        event.Code,
		AlarmDescription: event.Description,
		AlarmValue:       event.Value,
		CreatedTimestamp: event.CreatedAt,
	}

	data, err := protocol.EncodeAlarmNotification(notification)
	if err != nil {
		p.logger.Error("failed to encode notification", zap.Error(err))
		return
	}

	notifyCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()

	if err := p.notifier.Publish(notifyCtx, event.DeviceID, data); err != nil {
		p.logger.Error("failed to send notification",
			zap.String("device_id", event.DeviceID),
			zap.String("alarm_code", event.Code),
			zap.Error(err),
		)
	}
}

// reconcile synthesizes a placeholder low-severity alarm for every known
// device absent from the batch, so dashboards never show a device without
// recent alarm history just because no data arrived. It never writes a
// placeholder telemetry record.
func (p *Processor) reconcile(ctx context.Context, seen map[string]bool) {
	now := time.Now()

	for _, deviceID := range p.states.Known() {
		if seen[deviceID] {
			continue
		}

		event := alarm.EvaluateOilLevel(p.cfg.PlaceholderOil)
		if event == nil {
			continue
		}
		event.DeviceID = deviceID
		event.Plant = p.registry.Plants[deviceID]
		event.CreatedAt = now
		event.Active = true

		raw, err := json.Marshal(map[string]interface{}{
			"deviceId":    deviceID,
			"placeholder": true,
		})
		if err != nil {
			continue
		}

		p.logger.Info("device absent from batch, recording placeholder alarm",
			zap.String("device_id", deviceID),
		)
		p.emitAlarm(ctx, *event, raw)
	}
}

func (p *Processor) alarmCodeID(code string) int {
	if id, ok := p.registry.AlarmCodeID[code]; ok {
		return id
	}
	// Unmapped codes fall back on the family split used downstream.
	if strings.HasPrefix(code, "TEMP") || strings.HasPrefix(code, "HUM") {
		return 14
	}
	return 15
}
