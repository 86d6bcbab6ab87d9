package queue

import "github.com/ThreeDotsLabs/watermill/message"

// PublishClassificationCompleted 发布 hs.classification.completed 事件.
func PublishClassificationCompleted(pub message.Publisher, payload ClassificationPayload, opts ...HeaderOption) error {
	return publish(pub, TopicClassificationCompleted, payload, opts...)
}

// PublishClassificationFailed 发布 hs.classification.failed 事件.
func PublishClassificationFailed(pub message.Publisher, payload ClassificationPayload, opts ...HeaderOption) error {
	return publish(pub, TopicClassificationFailed, payload, opts...)
}

// ParseClassification 将 Watermill 消息解析为强类型 Envelope.
func ParseClassification(msg *message.Message) (Message[ClassificationPayload], error) {
	return ParseWatermillMessage[ClassificationPayload](msg)
}

func publish(pub message.Publisher, topic string, payload ClassificationPayload, opts ...HeaderOption) error {
	if pub == nil {
		return ErrNoPublisher
	}

	msg, err := NewWatermillMessage(topic, payload, opts...)
	if err != nil {
		return err
	}

	return pub.Publish(topic, msg)
}
