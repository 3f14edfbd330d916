package aggregator

import (
	"context"
	"errors"
	"fmt"

	"github.com/StrathCole/fee-oracle/pkg/fees"
	"github.com/StrathCole/fee-oracle/pkg/logging"
	"github.com/StrathCole/fee-oracle/pkg/metrics"
)

// NamedNotifier is a Notifier with a label for metrics.
type NamedNotifier interface {
	Notifier
	Name() string
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n fees.Notification) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, n fees.Notification) error {
	return f(ctx, n)
}

// ChannelNotifier forwards notifications to a channel without blocking.
// A full channel drops the notification.
type ChannelNotifier struct {
	ch     chan<- fees.Notification
	logger *logging.Logger
}

// NewChannelNotifier creates a notifier writing to ch.
func NewChannelNotifier(ch chan<- fees.Notification, logger *logging.Logger) *ChannelNotifier {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &ChannelNotifier{ch: ch, logger: logger}
}

// Name implements NamedNotifier.
func (c *ChannelNotifier) Name() string { return "channel" }

// Notify implements Notifier.
func (c *ChannelNotifier) Notify(_ context.Context, n fees.Notification) error {
	select {
	case c.ch <- n:
		return nil
	default:
		c.logger.Warn("Notification channel full, dropping", "symbol", n.Symbol)
		return fmt.Errorf("notification channel full")
	}
}

// MultiNotifier fans a notification out to several sinks. A failing sink
// does not stop delivery to the others.
type MultiNotifier struct {
	sinks []Notifier
}

// NewMultiNotifier combines sinks, skipping nil entries.
func NewMultiNotifier(sinks ...Notifier) *MultiNotifier {
	m := &MultiNotifier{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Len returns the number of sinks.
func (m *MultiNotifier) Len() int { return len(m.sinks) }

// Notify implements Notifier.
func (m *MultiNotifier) Notify(ctx context.Context, n fees.Notification) error {
	var errs []error
	for _, s := range m.sinks {
		err := s.Notify(ctx, n)
		metrics.RecordNotification(sinkName(s), err == nil)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sinkName(s), err))
		}
	}
	return errors.Join(errs...)
}

func sinkName(n Notifier) string {
	if named, ok := n.(NamedNotifier); ok {
		return named.Name()
	}
	return "func"
}

var (
	_ Notifier      = NotifierFunc(nil)
	_ NamedNotifier = (*ChannelNotifier)(nil)
	_ Notifier      = (*MultiNotifier)(nil)
)
