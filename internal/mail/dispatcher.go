package mail

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrStopped — диспетчер остановлен и не принимает письма.
var ErrStopped = errors.New("диспетчер писем остановлен")

// sendTimeout — предельное время доставки одного письма.
const sendTimeout = 30 * time.Second

// Prometheus-метрики доставки писем.
var (
	mailSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "md_mail_sent_total",
		Help: "Количество доставленных писем.",
	})
	mailFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "md_mail_failed_total",
		Help: "Количество писем, доставка которых завершилась ошибкой.",
	})
	mailDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "md_mail_dropped_total",
		Help: "Количество писем, отброшенных из-за переполненной очереди.",
	})
	mailQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "md_mail_queue_length",
		Help: "Текущая длина очереди писем.",
	})
)

// Dispatcher рендерит письма в запросе и доставляет их
// фиксированным пулом воркеров через ограниченную очередь.
// Результат доставки вызывающему не сообщается.
type Dispatcher struct {
	renderer *Renderer
	sender   Sender
	workers  int
	queue    chan *Message
	logger   *slog.Logger

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewDispatcher создаёт диспетчер с workers воркерами и очередью queueSize.
func NewDispatcher(renderer *Renderer, sender Sender, workers, queueSize int, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		renderer: renderer,
		sender:   sender,
		workers:  workers,
		queue:    make(chan *Message, queueSize),
		logger:   logger.With(slog.String("component", "mail")),
	}
}

// Start запускает воркеры. ctx передаёт значения в отправку,
// но его отмена не прерывает доставку очереди: для этого служит Stop.
func (d *Dispatcher) Start(ctx context.Context) {
	base := context.WithoutCancel(ctx)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(base)
	}
	d.logger.Info("Диспетчер писем запущен",
		slog.Int("workers", d.workers),
		slog.Int("queue_size", cap(d.queue)),
	)
}

// Stop закрывает очередь и ждёт доставки оставшихся писем.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("Диспетчер писем остановлен")
}

// Send рендерит письмо и ставит его в очередь.
// Ошибки шаблона возвращаются сразу. При переполненной очереди
// письмо отбрасывается с записью в лог, ошибка не возвращается.
func (d *Dispatcher) Send(_ context.Context, to, subject, templateID string, data Data) error {
	msg, err := d.renderer.Render(to, subject, templateID, data)
	if err != nil {
		return err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrStopped
	}

	select {
	case d.queue <- msg:
		mailQueueLength.Inc()
	default:
		mailDroppedTotal.Inc()
		d.logger.Warn("Очередь писем переполнена, письмо отброшено",
			slog.String("to", to),
			slog.String("template", templateID),
		)
	}
	return nil
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for msg := range d.queue {
		mailQueueLength.Dec()
		d.deliver(ctx, msg)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, msg *Message) {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	start := time.Now()
	if err := d.sender.Send(ctx, msg); err != nil {
		mailFailedTotal.Inc()
		d.logger.Error("Ошибка доставки письма",
			slog.String("to", msg.To),
			slog.String("subject", msg.Subject),
			slog.String("error", err.Error()),
		)
		return
	}

	mailSentTotal.Inc()
	d.logger.Debug("Письмо доставлено",
		slog.String("to", msg.To),
		slog.Duration("duration", time.Since(start)),
	)
}
