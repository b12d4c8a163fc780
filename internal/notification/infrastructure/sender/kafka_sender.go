package sender

import (
	"context"

	"github.com/wyfcoding/executioncore/internal/notification/domain"
	"github.com/wyfcoding/executioncore/pkg/mq"
)

// KafkaSender 将通知发布到 Kafka，由下游消费者（短信/邮件适配器等）执行实际触达。
type KafkaSender struct {
	producer *mq.KafkaProducer
	topic    string
}

// NewKafkaSender 创建 Kafka 发送器。
func NewKafkaSender(producer *mq.KafkaProducer, topic string) domain.Sender {
	return &KafkaSender{producer: producer, topic: topic}
}

// Send 以订单 ID 为 Key，保证同一订单的通知有序。
func (s *KafkaSender) Send(ctx context.Context, n *domain.Notification) error {
	return s.producer.SendMessage(ctx, s.topic, n.OrderID, n)
}
