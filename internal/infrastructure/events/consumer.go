// Package events consumes transaction events published by the transaction
// indexing service and turns them into metadata download tasks.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ethereum/go-ethereum/common"

	"github.com/safeutils/safe-decoder-service/internal/decoder"
	"github.com/safeutils/safe-decoder-service/internal/domain"
	"github.com/safeutils/safe-decoder-service/shared/logging"
	"github.com/safeutils/safe-decoder-service/shared/messaging"
	"github.com/safeutils/safe-decoder-service/shared/monitoring"
)

const (
	// executedMultisigTransaction is the only event type the consumer
	// acts on.
	executedMultisigTransaction = "EXECUTED_MULTISIG_TRANSACTION"

	consumerTag = "safe-decoder-service-consumer"
)

var hexDataPattern = regexp.MustCompile(`^0x[0-9a-f]*$`)

// TransactionEvent is the subset of the published event the consumer
// validates and uses.
type TransactionEvent struct {
	Type    string  `json:"type"`
	ChainID string  `json:"chainId"`
	To      string  `json:"to"`
	Data    *string `json:"data"`
}

// MultiSendParser extracts the inner transactions of a MultiSend batch.
type MultiSendParser interface {
	ParseMultiSendCalldata(data []byte) ([]decoder.MultisendTx, error)
}

// ConsumerConfig names the broker entities the consumer binds to.
type ConsumerConfig struct {
	Exchange  string
	QueueName string
}

// Consumer reads executed transaction events from the fan-out exchange
// and enqueues a metadata download for every contract address a
// transaction touches.
type Consumer struct {
	rabbitmq  *messaging.RabbitMQ
	config    ConsumerConfig
	enqueuer  domain.TaskEnqueuer
	multisend MultiSendParser
	logger    *logging.Logger
	metrics   *monitoring.Metrics
	done      chan struct{}
}

// NewConsumer creates an event consumer over an established broker
// connection.
func NewConsumer(
	rabbitmq *messaging.RabbitMQ,
	config ConsumerConfig,
	enqueuer domain.TaskEnqueuer,
	multisend MultiSendParser,
	logger *logging.Logger,
	metrics *monitoring.Metrics,
) *Consumer {
	return &Consumer{
		rabbitmq:  rabbitmq,
		config:    config,
		enqueuer:  enqueuer,
		multisend: multisend,
		logger:    logger,
		metrics:   metrics,
		done:      make(chan struct{}),
	}
}

// Start declares the fan-out exchange and the durable queue, binds them
// and consumes until the context is cancelled. Messages are acked on
// receipt: losing one costs nothing permanent because the nightly rescan
// will pick the contract up again.
func (c *Consumer) Start(ctx context.Context) error {
	err := c.rabbitmq.DeclareExchange(messaging.ExchangeConfig{
		Name:    c.config.Exchange,
		Type:    "fanout",
		Durable: true,
	})
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := c.rabbitmq.DeclareQueue(messaging.QueueConfig{
		Name:    c.config.QueueName,
		Durable: true,
	}); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := c.rabbitmq.BindQueue(c.config.QueueName, "", c.config.Exchange); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	deliveries, err := c.rabbitmq.Consume(c.config.QueueName, consumerTag)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	c.logger.WithFields(map[string]any{
		"exchange": c.config.Exchange,
		"queue":    c.config.QueueName,
	}).Info("Event consumer started")

	go c.loop(ctx, deliveries)
	return nil
}

func (c *Consumer) loop(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("Event delivery channel closed")
				return
			}
			if err := delivery.Ack(false); err != nil {
				c.logger.WithError(err).Warn("Could not ack event")
			}
			c.handle(ctx, delivery.Body)
		}
	}
}

// Stop cancels the consumer and waits for the loop to drain.
func (c *Consumer) Stop() {
	if err := c.rabbitmq.CancelConsumer(consumerTag); err != nil {
		c.logger.WithError(err).Warn("Could not cancel event consumer")
	}
	<-c.done
	c.logger.Info("Event consumer stopped")
}

func (c *Consumer) handle(ctx context.Context, body []byte) {
	event, err := parseEvent(body)
	if err != nil {
		c.metrics.EventsConsumed.WithLabelValues("invalid").Inc()
		c.logger.WithError(err).Debug("Dropping invalid event")
		return
	}
	if event == nil {
		c.metrics.EventsConsumed.WithLabelValues("ignored").Inc()
		return
	}

	chainID, err := strconv.ParseInt(event.ChainID, 10, 64)
	if err != nil {
		c.metrics.EventsConsumed.WithLabelValues("invalid").Inc()
		c.logger.WithError(err).Debug("Dropping event with out-of-range chainId")
		return
	}
	for _, address := range c.addressesToProcess(event) {
		if err := c.enqueuer.EnqueueProcessMetadata(ctx, address, chainID, false); err != nil {
			c.logger.WithError(err).WithFields(map[string]any{
				"address":  address,
				"chain_id": chainID,
			}).Error("Could not enqueue metadata download")
		}
	}
	c.metrics.EventsConsumed.WithLabelValues("processed").Inc()
}

// parseEvent validates the message. Returns (nil, nil) for well formed
// events of types the service does not care about.
func parseEvent(body []byte) (*TransactionEvent, error) {
	var event TransactionEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("malformed event json: %w", err)
	}
	if event.Type != executedMultisigTransaction {
		return nil, nil
	}
	if event.ChainID == "" || !isDigits(event.ChainID) {
		return nil, fmt.Errorf("chainId %q is not a base-10 string", event.ChainID)
	}
	if !isChecksumAddress(event.To) {
		return nil, fmt.Errorf("to %q is not a checksummed address", event.To)
	}
	if event.Data != nil && !hexDataPattern.MatchString(*event.Data) {
		return nil, fmt.Errorf("data is not a hex string")
	}
	return &event, nil
}

// addressesToProcess returns the transaction target plus, for MultiSend
// calls, every inner transaction target.
func (c *Consumer) addressesToProcess(event *TransactionEvent) []string {
	seen := map[string]bool{event.To: true}
	addresses := []string{event.To}

	if event.Data == nil {
		return addresses
	}
	data := common.FromHex(*event.Data)
	if len(data) < 4 {
		return addresses
	}
	txs, err := c.multisend.ParseMultiSendCalldata(data)
	if err != nil {
		// Not a MultiSend call, or a malformed batch. Either way only the
		// outer target is of interest.
		return addresses
	}
	for _, tx := range txs {
		address := tx.To.Hex()
		if !seen[address] {
			seen[address] = true
			addresses = append(addresses, address)
		}
	}
	return addresses
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// isChecksumAddress reports whether s is a canonically EIP-55 checksummed
// address.
func isChecksumAddress(s string) bool {
	return common.IsHexAddress(s) && common.HexToAddress(s).Hex() == s
}
