package dispatch

import "time"

// Record — отгрузка по заказу. Канонический источник отгруженного
// количества; упаковочные флаги резолвер не читает никогда.
type Record struct {
	ID          int64
	WorkOrderID int64
	Qty         int64
	CreatedBy   int64
	CreatedAt   time.Time
}
