package mqtt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/ingest"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/models"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/service"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/utils"
)

// DedupWindow is how long a msg_id is remembered for QoS 1 redelivery
const DedupWindow = 5 * time.Minute

// Ingestor accepts one device payload
type Ingestor interface {
	Ingest(ctx context.Context, deviceID string, raw map[string]interface{}, source string) (*service.IngestionResult, error)
}

// Subscriber is the part of Client the consumer needs
type Subscriber interface {
	Subscribe(topic string, qos byte, handler MessageHandler) error
}

// Consumer turns broker messages into ingested readings
type Consumer struct {
	ingestor Ingestor
	pattern  string
	dedup    *utils.Deduplicator
	timeout  time.Duration
	log      *zap.Logger
}

// NewConsumer creates a Consumer for topics matching pattern, e.g. devices/+/sensor
func NewConsumer(ingestor Ingestor, pattern string, log *zap.Logger) *Consumer {
	return &Consumer{
		ingestor: ingestor,
		pattern:  pattern,
		dedup:    utils.NewDeduplicator(DedupWindow),
		timeout:  10 * time.Second,
		log:      log,
	}
}

// Start subscribes to the consumer's topic pattern with QoS 1
func (c *Consumer) Start(sub Subscriber) error {
	return sub.Subscribe(c.pattern, 1, c.HandleMessage)
}

// HandleMessage ingests one payload. The device id comes from the topic, or the payload when
// the topic carries none.
func (c *Consumer) HandleMessage(topic string, payload []byte) error {
	var raw map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("invalid JSON payload: %w", err)
	}

	if msgID, _ := raw["msg_id"].(string); c.dedup.IsDuplicate(msgID) {
		c.log.Debug("duplicate mqtt message dropped", zap.String("topic", topic), zap.String("msg_id", msgID))
		return nil
	}

	deviceID := DeviceIDFromTopic(c.pattern, topic)
	if deviceID == "" {
		deviceID = ingest.DeviceIDFrom(raw)
	}
	if deviceID == "" {
		return fmt.Errorf("no device id in topic %q or payload", topic)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	res, err := c.ingestor.Ingest(ctx, deviceID, raw, models.SourceMQTT)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", deviceID, err)
	}
	c.log.Debug("mqtt reading stored",
		zap.String("device_id", deviceID),
		zap.String("data_id", res.Reading.DataID),
		zap.Int("alerts", len(res.Alerts)))
	return nil
}

// DeviceIDFromTopic returns the topic segment matched by the first "+" in pattern,
// or "" when topic does not match pattern.
func DeviceIDFromTopic(pattern, topic string) string {
	pp := strings.Split(pattern, "/")
	tp := strings.Split(topic, "/")
	id, found := "", false
	for i, seg := range pp {
		if seg == "#" {
			return id
		}
		if i >= len(tp) {
			return ""
		}
		switch seg {
		case "+":
			if !found {
				id, found = strings.TrimSpace(tp[i]), true
			}
		default:
			if seg != tp[i] {
				return ""
			}
		}
	}
	if len(tp) != len(pp) {
		return ""
	}
	return id
}
