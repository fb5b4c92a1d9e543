package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/marketplace-backend/internal/goroutine"
	"github.com/ignatzorin/marketplace-backend/internal/logger"
	"github.com/ignatzorin/marketplace-backend/internal/metrics"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
	"github.com/ignatzorin/marketplace-backend/internal/service"
)

const dueBatchSize = 100

// Scheduler опрашивает таблицу отложенных операций и исполняет просроченные.
// Операции переживают рестарт процесса: упавший инстанс ничего не теряет,
// следующий тик подберёт хвост. Исполнение идемпотентно, поэтому гонка двух
// инстансов за одну операцию безопасна.
type Scheduler struct {
	schedule   *repository.ScheduleRepository
	settlement *service.SettlementService
	metrics    *metrics.Metrics
	interval   time.Duration
	stop       chan struct{}
	done       chan struct{}
}

func New(schedule *repository.ScheduleRepository, settlement *service.SettlementService, interval time.Duration) *Scheduler {
	return &Scheduler{
		schedule:   schedule,
		settlement: settlement,
		interval:   interval,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// SetMetrics устанавливает счётчики Prometheus.
func (s *Scheduler) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Start запускает цикл опроса в фоновой горутине.
func (s *Scheduler) Start() {
	goroutine.SafeGo(func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		logger.Log.Infof("Планировщик запущен, интервал %s", s.interval)
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.runDue(context.Background())
			}
		}
	})
}

// Stop останавливает цикл и дожидается завершения текущего тика.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) runDue(ctx context.Context) {
	ops, err := s.schedule.Due(ctx, time.Now(), dueBatchSize)
	if err != nil {
		logger.Log.Errorf("Планировщик: выборка операций не удалась: %v", err)
		return
	}

	for _, op := range ops {
		if err := s.execute(ctx, op); err != nil {
			s.countRun("error")
			logger.Log.WithField("order_id", op.OrderID).WithField("kind", op.Kind).
				Errorf("Планировщик: операция не исполнена: %v", err)
			continue
		}
		s.countRun("ok")
		if err := s.schedule.MarkExecuted(ctx, op.ID); err != nil {
			logger.Log.Errorf("Планировщик: не удалось пометить операцию %d: %v", op.ID, err)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, op models.ScheduledOperation) error {
	switch op.Kind {
	case models.ScheduledOpAutoConfirm:
		idemKey := op.OrderID.String() + ":auto_confirm"
		_, err := s.settlement.ConfirmDelivery(ctx, op.OrderID, uuid.Nil, true, idemKey)
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil
		}
		return err
	default:
		return fmt.Errorf("scheduler: unknown operation kind %q", op.Kind)
	}
}

func (s *Scheduler) countRun(result string) {
	if s.metrics != nil {
		s.metrics.ScheduledOpsRun.WithLabelValues(result).Inc()
	}
}
