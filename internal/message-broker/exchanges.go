package message_broker

import "fmt"

const (
	priority1 = "p1"
	priority2 = "p2"
	priority3 = "p3"

	calls_exchange = "contract_calls"
)

// CallsExchange is the exchange call requests flow through.
const CallsExchange = calls_exchange

type Exchange struct {
	exchangeName string
	routingKeys  []string
}

type Exchanges struct {
	Exchanges []*Exchange
}

func InitExchanges() *Exchanges {
	return &Exchanges{
		Exchanges: []*Exchange{
			NewExchange(calls_exchange, []string{priority1, priority2, priority3}),
		},
	}
}

func (exs *Exchanges) GetExchange(exchange string) (Exchange, error) {
	for _, ex := range exs.Exchanges {
		if ex.exchangeName == exchange {
			return *ex, nil
		}
	}
	return Exchange{}, fmt.Errorf("exchange not found")
}

func NewExchange(exchangeName string, routingKeys []string) *Exchange {
	return &Exchange{
		exchangeName: exchangeName,
		routingKeys:  routingKeys,
	}
}

func (e *Exchange) RoutingKey(priority int) (string, error) {
	switch priority {
	case 1:
		return priority1, nil
	case 2:
		return priority2, nil
	case 3:
		return priority3, nil
	default:
		return "", fmt.Errorf("invalid priority %d", priority)
	}
}

// QueueName returns the durable queue bound for the given priority.
func (e *Exchange) QueueName(priority int) (string, error) {
	rk, err := e.RoutingKey(priority)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_%s", e.exchangeName, rk), nil
}
