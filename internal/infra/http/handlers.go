package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/izzyftw1/rvi-sub004/internal/domain/errs"
	"github.com/izzyftw1/rvi-sub004/internal/domain/gates"
	"github.com/izzyftw1/rvi-sub004/internal/domain/production"
	"github.com/izzyftw1/rvi-sub004/internal/engine"
)

type handler struct {
	eng *engine.Engine
	log *slog.Logger
}

func (h *handler) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/orders", h.createOrder)
	mux.HandleFunc("POST /api/orders/{id}/release", h.releaseOrder)
	mux.HandleFunc("GET /api/orders/{id}/stages", h.getStages)
	mux.HandleFunc("POST /api/orders/stages", h.getStagesBatch)
	mux.HandleFunc("GET /api/orders/{id}/gates", h.getGates)
	mux.HandleFunc("POST /api/orders/{id}/gates/{gate}", h.updateGate)
	mux.HandleFunc("POST /api/orders/{id}/production", h.logProduction)
	mux.HandleFunc("GET /api/orders/{id}/batches", h.listBatches)
	mux.HandleFunc("POST /api/orders/{id}/approvals", h.recordApproval)
	mux.HandleFunc("POST /api/orders/{id}/cartons", h.pack)
	mux.HandleFunc("POST /api/cartons/{id}/reverse", h.reverseCarton)
	mux.HandleFunc("POST /api/orders/{id}/dispatch", h.recordDispatch)
	mux.HandleFunc("POST /api/batches/{id}/complete", h.completeBatch)
	mux.HandleFunc("POST /api/batches/{id}/reopen", h.reopenBatch)
	mux.HandleFunc("POST /api/orders/{id}/refresh", h.forceRefresh)
}

/* helpers */

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// ошибки мутаций отдаются как есть, без обобщённого глотания
func jsonErr(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, errs.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, errs.ErrGateSequence),
		errors.Is(err, errs.ErrGateBlocked),
		errors.Is(err, errs.ErrInvalidTransition):
		code = http.StatusConflict
	case errors.Is(err, errs.ErrPermissionDenied):
		code = http.StatusForbidden
	case errors.Is(err, errs.ErrSourceUnavailable):
		code = http.StatusServiceUnavailable
	}
	jsonResp(w, code, map[string]string{"error": err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	jsonResp(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

// актор приходит заголовком; сама аутентификация — вне этого сервиса
func actorID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	return id
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

/* заказы */

func (h *handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code       string `json:"code"`
		OrderedQty int64  `json:"ordered_qty"`
	}
	if err := decodeBody(r, &req); err != nil || req.Code == "" {
		badRequest(w, "invalid body")
		return
	}
	wo, err := h.eng.CreateOrder(r.Context(), req.Code, req.OrderedQty)
	if err != nil {
		jsonErr(w, err)
		return
	}
	jsonResp(w, http.StatusCreated, wo)
}

func (h *handler) releaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid order id")
		return
	}
	wo, err := h.eng.ReleaseOrder(r.Context(), id)
	if err != nil {
		jsonErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, wo)
}

/* сводки */

func (h *handler) getStages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid order id")
		return
	}
	snap, err := h.eng.GetStageQuantities(r.Context(), id)
	if err != nil {
		jsonErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, snap)
}

func (h *handler) getStagesBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []int64 `json:"ids"`
	}
	if err := decodeBody(r, &req); err != nil || len(req.IDs) == 0 {
		badRequest(w, "invalid body")
		return
	}
	m, err := h.eng.GetStageQuantitiesBatch(r.Context(), req.IDs)
	if err != nil {
		jsonErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, m)
}

func (h *handler) forceRefresh(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid order id")
		return
	}
	snap, err := h.eng.ForceRefresh(r.Context(), id)
	if err != nil {
		jsonErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, snap)
}

/* гейты */

func (h *handler) getGates(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid order id")
		return
	}
	pair, err := h.eng.GetGateState(r.Context(), id)
	if err != nil {
		jsonErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, map[string]gates.Gate{
		"material":    pair.Material,
		"first_piece": pair.FirstPiece,
	})
}

func (h *handler) updateGate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid order id")
		return
	}
	gt, ok := gates.ParseType(r.PathValue("gate"))
	if !ok {
		badRequest(w, "unknown gate")
		return
	}
	var req struct {
		Status  string `json:"status"`
		Remarks string `json:"remarks"`
	}
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid body")
		return
	}
	st, ok := gates.ParseStatus(req.Status)
	if !ok {
		badRequest(w, "unknown status")
		return
	}
	g, err := h.eng.UpdateGate(r.Context(), id, gt, st, actorID(r), req.Remarks)
	if err != nil {
		jsonErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, g)
}

/* выработка и партии */

func (h *handler) logProduction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid order id")
		return
	}
	var req struct {
		Machine   string `json:"machine"`
		Qty       int64  `json:"qty"`
		TargetQty int64  `json:"target_qty"`
	}
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid body")
		return
	}
	b, err := h.eng.LogProduction(r.Context(), id, req.Machine, req.Qty, req.TargetQty, actorID(r))
	if err != nil {
		jsonErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, b)
}

func (h *handler) listBatches(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid order id")
		return
	}
	bs, err := h.eng.ListBatches(r.Context(), id)
	if err != nil {
		jsonErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, bs)
}

func (h *handler) completeBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid batch id")
		return
	}
	var req struct {
		Reason string `json:"reason"`
		Note   string `json:"note"`
	}
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid body")
		return
	}
	reason := production.ReasonManual
	if req.Reason != "" {
		var ok bool
		if reason, ok = production.ParseReason(req.Reason); !ok {
			badRequest(w, "unknown reason")
			return
		}
	}
	b, err := h.eng.CompleteBatch(r.Context(), id, reason, actorID(r), req.Note)
	if err != nil {
		jsonErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, b)
}

func (h *handler) reopenBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid batch id")
		return
	}
	b, err := h.eng.ReopenBatch(r.Context(), id, actorID(r))
	if err != nil {
		jsonErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, b)
}

/* ОТК, упаковка, отгрузка */

func (h *handler) recordApproval(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid order id")
		return
	}
	var req struct {
		BatchID     *int64 `json:"batch_id"`
		ApprovedQty int64  `json:"approved_qty"`
	}
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid body")
		return
	}
	a, err := h.eng.RecordApproval(r.Context(), id, req.BatchID, req.ApprovedQty, actorID(r))
	if err != nil {
		jsonErr(w, err)
		return
	}
	jsonResp(w, http.StatusCreated, a)
}

func (h *handler) pack(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid order id")
		return
	}
	var req struct {
		Qty int64 `json:"qty"`
	}
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid body")
		return
	}
	cs, err := h.eng.Pack(r.Context(), id, req.Qty, actorID(r))
	if err != nil {
		jsonErr(w, err)
		return
	}
	jsonResp(w, http.StatusCreated, cs)
}

func (h *handler) reverseCarton(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid carton id")
		return
	}
	c, err := h.eng.ReverseCarton(r.Context(), id, actorID(r))
	if err != nil {
		jsonErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, c)
}

func (h *handler) recordDispatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid order id")
		return
	}
	var req struct {
		Qty int64 `json:"qty"`
	}
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid body")
		return
	}
	d, err := h.eng.RecordDispatch(r.Context(), id, req.Qty, actorID(r))
	if err != nil {
		jsonErr(w, err)
		return
	}
	jsonResp(w, http.StatusCreated, d)
}
