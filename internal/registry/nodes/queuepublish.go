package nodes

import (
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/gorax/workflow-core/internal/registry"
	"github.com/gorax/workflow-core/internal/value"
)

// QueuePublishConfig is a RabbitMQ connection scoped to a single
// publish-target queue.
type QueuePublishConfig struct {
	AMQPURL string `json:"amqpUrl"`
	Queue string `json:"queue"`
}

type queuePublishNode struct {
	cfg QueuePublishConfig
}

func NewQueuePublishNode() registry.Constructor {
	return func(config map[string]any) (registry.Executable, error) {
		raw, err := json.Marshal(config)
		if err != nil {
			return nil, fmt.Errorf("queue publish node: marshal config: %w", err)
		}
		var cfg QueuePublishConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("queue publish node: parse config: %w", err)
		}
		if cfg.AMQPURL == "" || cfg.Queue == "" {
			return nil, fmt.Errorf("queue publish node: amqpUrl and queue are required")
		}
		return &queuePublishNode{cfg: cfg}, nil
	}
}

func (n *queuePublishNode) Execute(nctx *registry.NodeContext) (registry.Result, error) {
	var body []byte
	if v, ok := nctx.Inputs.Get("message"); ok {
		raw, err := json.Marshal(renderValue(v))
		if err != nil {
			return registry.Errored(fmt.Sprintf("queue publish node: encode message: %v", err), 0), nil
		}
		body = raw
	}

	conn, err := amqp.Dial(n.cfg.AMQPURL)
	if err != nil {
		return registry.Errored(fmt.Sprintf("queue publish node: connect failed: %v", err), 1), nil
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return registry.Errored(fmt.Sprintf("queue publish node: open channel failed: %v", err), 1), nil
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(n.cfg.Queue, true, false, false, false, nil); err != nil {
		return registry.Errored(fmt.Sprintf("queue publish node: declare queue failed: %v", err), 1), nil
	}

	err = ch.PublishWithContext(nctx.Context, "", n.cfg.Queue, false, false, amqp.Publishing{
			ContentType: "application/json",
			Body: body,
	})
	if err != nil {
		return registry.Errored(fmt.Sprintf("queue publish node: publish failed: %v", err), 1), nil
	}

	return registry.Completed(value.NodeRuntimeValues{}, 1), nil
}

func QueuePublishMeta() registry.NodeTypeMeta {
	return registry.NodeTypeMeta{
		ID: "action:queue_publish",
		Tags: []string{"action", "messaging"},
		Inputs: []value.ParameterSpec{
			{Name: "message", Type: value.TypeJSON, Required: true},
		},
		Usage: 1,
		Documentation: "Publishes a JSON message to a RabbitMQ queue.",
	}
}
