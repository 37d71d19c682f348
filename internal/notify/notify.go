// Package notify delivers result_published events to interested parties
// (the email module, parent portal, ...). Delivery is fire-and-forget: the
// composer hands the event over and moves on; a slow or failing consumer
// can never block or fail a result computation.
package notify

import (
	"go.uber.org/zap"
)

// Event is one published-result notification.
type Event struct {
	StudentID    int64
	AcademicYear string
	Term         string
}

// Consumer receives events from the dispatcher. Implementations run on the
// dispatcher goroutine and should hand off long work themselves.
type Consumer interface {
	Consume(ev Event)
}

// Dispatcher fans events out to consumers asynchronously. Its buffer
// absorbs bursts; when the buffer is full events are dropped with a log
// line rather than blocking the composer.
type Dispatcher struct {
	ch        chan Event
	consumers []Consumer
	log       *zap.Logger
	done      chan struct{}
}

func NewDispatcher(buffer int, log *zap.Logger, consumers ...Consumer) *Dispatcher {
	if buffer <= 0 {
		buffer = 64
	}
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{
		ch:        make(chan Event, buffer),
		consumers: consumers,
		log:       log,
		done:      make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.ch {
		for _, c := range d.consumers {
			c.Consume(ev)
		}
	}
}

// ResultPublished implements engine.Notifier.
func (d *Dispatcher) ResultPublished(studentID int64, academicYear, term string) {
	ev := Event{StudentID: studentID, AcademicYear: academicYear, Term: term}
	select {
	case d.ch <- ev:
	default:
		d.log.Warn("notification buffer full, dropping event",
			zap.Int64("student_id", studentID),
			zap.String("term", term))
	}
}

// Close stops the dispatcher after draining buffered events.
func (d *Dispatcher) Close() {
	close(d.ch)
	<-d.done
}

// LogConsumer writes each event to the log; it stands in for the external
// email module in local and test setups.
type LogConsumer struct {
	Log *zap.Logger
}

func (c *LogConsumer) Consume(ev Event) {
	c.Log.Info("result published",
		zap.Int64("student_id", ev.StudentID),
		zap.String("academic_year", ev.AcademicYear),
		zap.String("term", ev.Term))
}
