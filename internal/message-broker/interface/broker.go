package message_broker

import "context"

type MessageBrokerInterface interface {
	PublishObject(exchange string, data interface{}, priority int, ctx context.Context) error
	ListenForMessages(exchange string, priority int, callback func([]byte, context.Context)) error
	Close()
}
