package inspection

import "time"

// ApprovalBatch — канонический пул принятого ОТК количества.
// Инвариант: ConsumedQty <= ApprovedQty, consumed растёт монотонно.
type ApprovalBatch struct {
	ID          int64
	WorkOrderID int64
	BatchID     *int64 // ссылка на партию выработки, если известна
	ApprovedQty int64
	ConsumedQty int64
	CreatedBy   int64
	CreatedAt   time.Time
}

func (a ApprovalBatch) Available() int64 { return a.ApprovedQty - a.ConsumedQty }

// Allocation — кусок одного approval-пула, выданный под упаковку.
type Allocation struct {
	ApprovalID int64
	Qty        int64
}
