package resolver

// ProductionSums — агрегаты по партиям выработки одного заказа.
type ProductionSums struct {
	Produced       int64
	LegacyApproved int64 // production_batches.qc_approved_qty
	Rejected       int64
}

type stageAgg struct {
	prod              ProductionSums
	canonicalApproved int64 // inspection_approval_batches.approved_qty
	packed            int64
	dispatched        int64
}

// qtySource — один кандидат в цепочке источников количества.
type qtySource struct {
	name    string
	extract func(stageAgg) int64
}

// Цепочка для qcApproved: канонический пул ОТК, затем legacy-поле партии.
// Как только канонические записи есть (сумма > 0), legacy игнорируется
// целиком — двойного счёта быть не может.
var qcApprovedChain = []qtySource{
	{name: "inspection_approval_batches", extract: func(a stageAgg) int64 { return a.canonicalApproved }},
	{name: "production_batches.qc_approved_qty", extract: func(a stageAgg) int64 { return a.prod.LegacyApproved }},
}

// resolveChain идёт по цепочке сверху вниз и берёт первый источник
// с ненулевым значением.
func resolveChain(chain []qtySource, a stageAgg) (int64, string) {
	for _, s := range chain {
		if v := s.extract(a); v > 0 {
			return v, s.name
		}
	}
	return 0, ""
}
