package packing

import "time"

// Carton — запись упаковки. Только добавление; уменьшение — исключительно
// явным реверсом (строка с отрицательным количеством).
type Carton struct {
	ID          int64
	WorkOrderID int64
	ApprovalID  *int64 // из какого approval-пула взято количество
	Qty         int64  // отрицательное у реверса
	Reversed    bool
	ReversalOf  *int64
	CreatedBy   int64
	CreatedAt   time.Time
}
