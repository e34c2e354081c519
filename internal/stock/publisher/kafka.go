package publisher

import (
	"context"
	"encoding/json"

	"github.com/nutree/stock-service/internal/stock/dto"
	"github.com/nutree/stock-service/pkg/broker"
)

// KafkaPublisher emits stock change events keyed by record id, so all
// events for one record land on one partition in commit order.
type KafkaPublisher struct {
	producer *broker.KafkaProducer
}

func NewKafkaPublisher(producer *broker.KafkaProducer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

func (p *KafkaPublisher) PublishStockChanged(ctx context.Context, ev *dto.StockEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.producer.Publish(ctx, []byte(ev.StockRecordID), value)
}
