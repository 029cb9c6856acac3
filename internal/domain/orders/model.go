package orders

import "time"

type ReleaseStatus string

const (
	StatusDraft    ReleaseStatus = "draft"
	StatusReleased ReleaseStatus = "released"
)

type WorkOrder struct {
	ID         int64
	Code       string
	OrderedQty int64 // фиксируется при выпуске заказа в работу
	Status     ReleaseStatus
	CreatedAt  time.Time
}

func (w WorkOrder) Released() bool { return w.Status == StatusReleased }
