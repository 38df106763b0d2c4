// Package intake consumes application events from NSQ and hands them to the
// fan-out router. Producers publish events to a topic instead of calling the
// HTTP publish route; both paths converge on the same Deliver call.
package intake

import (
	"context"
	"encoding/json"

	"github.com/nsqio/go-nsq"

	"github.com/driftmarket/hookline/internal/delivery"
	"github.com/driftmarket/hookline/internal/logging"
	"github.com/driftmarket/hookline/internal/tracing"
)

// Event is the wire shape producers publish. TraceHeaders carries W3C trace
// context across the queue hop.
type Event struct {
	EventType    string            `json:"event_type"`
	Data         json.RawMessage   `json:"data"`
	TraceHeaders map[string]string `json:"trace_headers,omitempty"`
}

type Config struct {
	NsqdTCPAddr    string
	LookupHTTPAddr string
	Topic          string
	Channel        string
	MaxInFlight    int
}

type Consumer struct {
	consumer *nsq.Consumer
	router   *delivery.Router
	log      *logging.Logger
}

func NewConsumer(cfg Config, router *delivery.Router, log *logging.Logger) (*Consumer, error) {
	conf := nsq.NewConfig()
	if cfg.MaxInFlight > 0 {
		conf.MaxInFlight = cfg.MaxInFlight
	}
	consumer, err := nsq.NewConsumer(cfg.Topic, cfg.Channel, conf)
	if err != nil {
		return nil, err
	}

	c := &Consumer{consumer: consumer, router: router, log: log}
	consumer.AddHandler(nsq.HandlerFunc(c.handle))

	// Connecting directly to nsqd forces channel creation instead of waiting
	// for the first publish to create it lazily.
	if err := consumer.ConnectToNSQD(cfg.NsqdTCPAddr); err != nil {
		return nil, err
	}
	if cfg.LookupHTTPAddr != "" {
		if err := consumer.ConnectToNSQLookupd(cfg.LookupHTTPAddr); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Consumer) handle(m *nsq.Message) error {
	var ev Event
	if err := json.Unmarshal(m.Body, &ev); err != nil {
		// Terminal: a malformed payload will never parse on requeue.
		c.log.Plain().WithError(err).Error("bad event payload")
		m.Finish()
		return nil
	}
	if ev.EventType == "" || ev.Data == nil {
		c.log.Plain().Error("event missing event_type or data")
		m.Finish()
		return nil
	}

	ctx := tracing.ExtractCarrier(context.Background(), ev.TraceHeaders)
	c.router.Deliver(ctx, ev.EventType, ev.Data)
	m.Finish()
	return nil
}

// Stop drains in-flight handlers and blocks until the consumer has exited.
func (c *Consumer) Stop() {
	c.consumer.Stop()
	<-c.consumer.StopChan
}
