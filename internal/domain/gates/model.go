package gates

import "time"

type Type string

const (
	Material   Type = "material"
	FirstPiece Type = "first_piece"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusWaived  Status = "waived"
)

// Complete — гейт пройден (или снят разрешением), дальше можно.
func (s Status) Complete() bool { return s == StatusPassed || s == StatusWaived }

type Gate struct {
	WorkOrderID int64
	Type        Type
	Status      Status
	ApprovedBy  int64
	ApprovedAt  *time.Time
	Remarks     string
}

// Pair — состояние обоих гейтов заказа.
type Pair struct {
	Material   Gate
	FirstPiece Gate
}

func (p Pair) AllComplete() bool {
	return p.Material.Status.Complete() && p.FirstPiece.Status.Complete()
}

func ParseType(s string) (Type, bool) {
	switch Type(s) {
	case Material, FirstPiece:
		return Type(s), true
	}
	return "", false
}

func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusPassed, StatusFailed, StatusWaived:
		return Status(s), true
	}
	return "", false
}
