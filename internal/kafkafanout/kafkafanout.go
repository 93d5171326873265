// Package kafkafanout is an optional durable send-client kind alongside
// the core socket/queue kinds (§3.5): matched datapoints are produced onto
// a Kafka topic instead of (or in addition to) a direct socket. Each send
// runs through a circuit breaker; a send that returns an error, or is
// refused while the breaker is open, is routed to a dead-letter queue
// instead of being silently dropped. The production send hands the message
// to sarama's asynchronous producer and always returns nil: asynchronous
// produce errors are only logged by drainErrors, so they neither trip the
// breaker nor reach the dead-letter queue.
package kafkafanout

import (
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"github.com/sheinberglab/dserv/internal/metrics"
	"github.com/sheinberglab/dserv/pkg/circuit_breaker"
	"github.com/sheinberglab/dserv/pkg/dlq"
	"github.com/sheinberglab/dserv/pkg/dpoint"
	"github.com/sheinberglab/dserv/pkg/match"
)

type Config struct {
	Brokers  []string
	Topic    string
	DLQDir   string
	MaxFails int64
}

// Sink implements orchestrator.NotifyFanout, publishing every datapoint
// matching Matches onto a Kafka topic. The actual produce call is held
// behind the send field so the breaker/DLQ routing logic can be exercised
// without a live broker.
type Sink struct {
	cfg      Config
	log      *logrus.Logger
	producer sarama.AsyncProducer
	breaker  *circuit_breaker.Breaker
	dlq      *dlq.Queue
	send     func(dp dpoint.Datapoint) error

	Matches *match.MatchDict
}

func New(cfg Config, log *logrus.Logger) (*Sink, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.Return.Successes = false
	saramaCfg.Producer.Return.Errors = true
	saramaCfg.Producer.RequiredAcks = sarama.WaitForLocal

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, err
	}

	dq, err := dlq.New(dlq.Config{Directory: cfg.DLQDir}, log)
	if err != nil {
		return nil, err
	}

	s := &Sink{
		cfg:      cfg,
		log:      log,
		producer: producer,
		breaker:  circuit_breaker.New(circuit_breaker.Config{MaxFailures: cfg.MaxFails, ResetTimeout: 30 * time.Second}),
		dlq:      dq,
		Matches:  match.NewMatchDict(),
	}
	s.send = s.produce
	go s.drainErrors()
	return s, nil
}

func (s *Sink) produce(dp dpoint.Datapoint) error {
	s.producer.Input() <- &sarama.ProducerMessage{
		Topic: s.cfg.Topic,
		Key:   sarama.StringEncoder(dp.Varname),
		Value: sarama.StringEncoder(dp.JSON()),
	}
	return nil
}

func (s *Sink) drainErrors() {
	for perr := range s.producer.Errors() {
		s.log.WithError(perr.Err).Warn("kafka produce failed")
	}
}

// Publish implements orchestrator.NotifyFanout (§4.8 analog): a matching
// datapoint is produced through the circuit breaker; while the breaker is
// open, the datapoint is recorded to the dead-letter queue instead.
func (s *Sink) Publish(dp dpoint.Datapoint) {
	if !s.Matches.IsMatch(dp.Varname) {
		return
	}
	if err := s.breaker.Execute(func() error { return s.send(dp) }); err != nil {
		s.dlq.Put(dp, err.Error())
		metrics.KafkaDroppedTotal.Inc()
		return
	}
	metrics.KafkaProducedTotal.Inc()
}

func (s *Sink) Close() error {
	s.dlq.Close()
	return s.producer.Close()
}
