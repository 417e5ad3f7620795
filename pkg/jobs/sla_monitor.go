package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/jordanlanch/leaddesk/pkg/enquiries"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/metrics"
	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/jordanlanch/leaddesk/pkg/notify"
)

// scanBatch bounds one pass over breaching enquiries.
const scanBatch = 200

// BreachStore finds and flags enquiries past their response due date.
type BreachStore interface {
	Breaching(ctx context.Context, statuses []models.Status, now time.Time, limit int) ([]*models.Enquiry, error)
	MarkBreached(ctx context.Context, id string, now time.Time) (bool, error)
}

// SLAMonitor flags enquiries that missed their first response.
type SLAMonitor struct {
	store    BreachStore
	notifier notify.Notifier
	metrics  *metrics.Metrics
	logger   logger.Logger
	now      func() time.Time
}

// NewSLAMonitor creates a new SLA monitor instance
func NewSLAMonitor(store BreachStore, notifier notify.Notifier, m *metrics.Metrics, log logger.Logger) *SLAMonitor {
	if log == nil {
		log = logger.Nop()
	}
	return &SLAMonitor{
		store:    store,
		notifier: notifier,
		metrics:  m,
		logger:   log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Scan flags every enquiry still awaiting a response after its due date and notifies the
// owner. Each enquiry is flagged once. It returns how many were newly flagged.
func (m *SLAMonitor) Scan(ctx context.Context) (int, error) {
	now := m.now().Truncate(time.Microsecond)
	flagged := 0

	for {
		batch, err := m.store.Breaching(ctx, enquiries.AwaitingResponse, now, scanBatch)
		if err != nil {
			return flagged, fmt.Errorf("failed to query breaching enquiries: %w", err)
		}

		progressed := false
		for _, e := range batch {
			ok, err := m.store.MarkBreached(ctx, e.ID, now)
			if err != nil {
				m.metrics.RecordSLABreaches(flagged)
				return flagged, err
			}
			if !ok {
				continue
			}
			progressed = true
			flagged++
			m.notify(ctx, e, now)
		}

		if len(batch) < scanBatch || !progressed {
			break
		}
	}

	m.metrics.RecordSLABreaches(flagged)
	if flagged > 0 {
		m.logger.Warn("SLA response breaches flagged", "count", flagged)
	}
	return flagged, nil
}

func (m *SLAMonitor) notify(ctx context.Context, e *models.Enquiry, now time.Time) {
	if m.notifier == nil || !e.IsAssigned() {
		return
	}
	n := notify.Notification{
		RecipientID: *e.AssignedTo,
		Title:       fmt.Sprintf("Enquiry %s missed its response SLA", e.Code),
		Message: fmt.Sprintf("%s (%s) was due a response by %s and is overdue by %s.",
			e.CustomerName, e.Priority, e.ResponseDue.Format(time.RFC1123), now.Sub(e.ResponseDue).Round(time.Minute)),
		Priority: notify.PriorityHigh,
	}
	if err := m.notifier.Send(ctx, n); err != nil {
		m.metrics.RecordSideEffectFailure("notify_sla_breach")
		m.logger.Warn("SLA breach notification failed", "enquiry_id", e.ID, "error", err)
	}
}
