package production

import "time"

type CompleteReason string

const (
	ReasonManual        CompleteReason = "manual"
	ReasonTargetReached CompleteReason = "quantity-target-reached"
	ReasonQualityGated  CompleteReason = "quality-gated"
)

// Batch — партия выработки внутри заказа. Поля qc_approved_qty и
// dispatched_qty — наследие старой схемы: читаются резолвером как
// fallback, новыми записями не пополняются.
type Batch struct {
	ID          int64
	WorkOrderID int64
	Seq         int
	Machine     string
	TargetQty   int64 // 0 = без автозакрытия
	ProducedQty int64

	QCApprovedQty int64 // legacy
	QCRejectedQty int64
	DispatchedQty int64 // legacy

	IsComplete     bool
	CompletedQty   int64
	CompleteReason CompleteReason
	CompletedBy    int64
	CompleteNote   string
	ClosedAt       *time.Time
	CreatedAt      time.Time
}

func (b *Batch) Open() bool { return b.ClosedAt == nil }

func ParseReason(s string) (CompleteReason, bool) {
	switch CompleteReason(s) {
	case ReasonManual, ReasonTargetReached, ReasonQualityGated:
		return CompleteReason(s), true
	}
	return "", false
}
