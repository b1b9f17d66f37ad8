package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"sales/internal/core"
	"sales/internal/log"
)

type variantDTO struct {
	Key         string     `json:"key"`
	Label       string     `json:"label"`
	DisplayName string     `json:"display_name"`
	Price       core.Money `json:"price"`
}

type productDTO struct {
	Key      string       `json:"key"`
	Name     string       `json:"name"`
	Price    *core.Money  `json:"price,omitempty"`
	Variants []variantDTO `json:"variants,omitempty"`
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	cat := s.ledger.Catalog()
	products := cat.Products()
	out := make([]productDTO, 0, len(products))
	for _, p := range products {
		dto := productDTO{Key: p.Key, Name: p.Name}
		if len(p.Variants) == 0 {
			price := p.Price
			dto.Price = &price
		}
		for _, v := range p.Variants {
			dto.Variants = append(dto.Variants, variantDTO{
				Key:         v.Key,
				Label:       v.Label,
				DisplayName: cat.DisplayName(v.Key),
				Price:       v.Price,
			})
		}
		out = append(out, dto)
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": out})
}

type sessionRequest struct {
	OperatorID int64  `json:"operator_id"`
	Username   string `json:"username"`
	FullName   string `json:"full_name"`
}

type sessionResponse struct {
	OperatorID string           `json:"operator_id"`
	Username   string           `json:"username"`
	FullName   string           `json:"full_name"`
	Role       string           `json:"role"`
	StartedAt  *time.Time       `json:"started_at,omitempty"`
	Tally      map[string]int64 `json:"tally,omitempty"`
	Total      int64            `json:"total"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}

	ident, err := s.sessions.Establish(r.Context(), core.Operator{
		ID:       core.OperatorID(req.OperatorID),
		Username: req.Username,
		FullName: req.FullName,
	})
	if err != nil {
		s.writeError(w, r, err, log.OpRecord)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{
		OperatorID: ident.ID.String(),
		Username:   ident.Username,
		FullName:   ident.FullName,
		Role:       string(ident.Role),
	})
}

// handleGetSession shows a session to its owner or to a head.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	viewer, err := operatorFromHeader(r)
	if err != nil {
		s.writeError(w, r, err, log.OpRead)
		return
	}
	id, err := core.ParseOperatorID(chi.URLParam(r, "operatorID"))
	if err != nil {
		s.writeError(w, r, err, log.OpRead)
		return
	}
	if _, err := s.ledger.Scope(viewer, &id); err != nil {
		s.writeError(w, r, err, log.OpRead)
		return
	}

	snap, err := s.sessions.Snapshot(id)
	if err != nil {
		s.writeError(w, r, err, log.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		OperatorID: snap.ID.String(),
		Username:   snap.Username,
		FullName:   snap.FullName,
		Role:       string(snap.Role),
		StartedAt:  &snap.StartedAt,
		Tally:      snap.Tally,
		Total:      snap.Total,
	})
}

// handleEndSession lets an operator end their own session; heads may end anyone's.
func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	viewer, err := operatorFromHeader(r)
	if err != nil {
		s.writeError(w, r, err, log.OpReset)
		return
	}
	id, err := core.ParseOperatorID(chi.URLParam(r, "operatorID"))
	if err != nil {
		s.writeError(w, r, err, log.OpReset)
		return
	}
	if _, err := s.ledger.Scope(viewer, &id); err != nil {
		s.writeError(w, r, err, log.OpReset)
		return
	}
	s.sessions.End(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

type saleRequest struct {
	Key     string `json:"key"`
	Product string `json:"product"`
	Variant string `json:"variant"`
}

func (s *Server) handleRecordSale(w http.ResponseWriter, r *http.Request) {
	id, err := operatorFromHeader(r)
	if err != nil {
		s.writeError(w, r, err, log.OpRecord)
		return
	}
	var req saleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}

	var receipt core.Receipt
	if req.Product != "" {
		receipt, err = s.ledger.RecordProductSale(r.Context(), id, req.Product, req.Variant)
	} else {
		receipt, err = s.ledger.RecordSale(r.Context(), id, req.Key)
	}
	if err != nil {
		s.writeError(w, r, err, log.OpRecord)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	g, label, filter, ok := s.readRequest(w, r)
	if !ok {
		return
	}
	report, err := s.ledger.PeriodReport(r.Context(), g, label, filter)
	if err != nil {
		s.writeError(w, r, err, log.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleIncome(w http.ResponseWriter, r *http.Request) {
	g, label, filter, ok := s.readRequest(w, r)
	if !ok {
		return
	}
	income, err := s.ledger.Income(r.Context(), g, label, filter)
	if err != nil {
		s.writeError(w, r, err, log.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, income)
}

// readRequest resolves the viewer, the period and the operator filter the
// viewer is allowed to see. It writes the error response itself.
func (s *Server) readRequest(w http.ResponseWriter, r *http.Request) (core.Granularity, string, *core.OperatorID, bool) {
	viewer, err := operatorFromHeader(r)
	if err != nil {
		s.writeError(w, r, err, log.OpRead)
		return "", "", nil, false
	}
	g, label, err := s.periodParams(r)
	if err != nil {
		s.writeError(w, r, err, log.OpRead)
		return "", "", nil, false
	}
	requested, err := operatorQuery(r)
	if err != nil {
		s.writeError(w, r, err, log.OpRead)
		return "", "", nil, false
	}
	filter, err := s.ledger.Scope(viewer, requested)
	if err != nil {
		s.writeError(w, r, err, log.OpRead)
		return "", "", nil, false
	}
	return g, label, filter, true
}

func (s *Server) handlePeriods(w http.ResponseWriter, r *http.Request) {
	viewer, err := operatorFromHeader(r)
	if err != nil {
		s.writeError(w, r, err, log.OpList)
		return
	}
	if _, err := s.sessions.Get(viewer); err != nil {
		s.writeError(w, r, err, log.OpList)
		return
	}
	g, err := core.ParseGranularity(chi.URLParam(r, "granularity"))
	if err != nil {
		s.writeError(w, r, err, log.OpList)
		return
	}
	labels, err := s.ledger.Periods(g)
	if err != nil {
		s.writeError(w, r, err, log.OpList)
		return
	}
	if labels == nil {
		labels = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"granularity": g,
		"current":     s.ledger.Label(g),
		"periods":     labels,
	})
}

func (s *Server) handleResetPeriod(w http.ResponseWriter, r *http.Request) {
	viewer, err := operatorFromHeader(r)
	if err != nil {
		s.writeError(w, r, err, log.OpReset)
		return
	}
	head, err := s.ledger.RequireHead(viewer)
	if err != nil {
		s.writeError(w, r, err, log.OpReset)
		return
	}
	g, label, err := s.periodParams(r)
	if err != nil {
		s.writeError(w, r, err, log.OpReset)
		return
	}
	target, err := operatorQuery(r)
	if err != nil {
		s.writeError(w, r, err, log.OpReset)
		return
	}

	if err := s.ledger.ResetPeriod(r.Context(), g, label, target); err != nil {
		s.writeError(w, r, err, log.OpReset)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Period reset requested",
		log.FieldOperatorID, head.ID.String(),
		log.FieldGranularity, string(g),
		log.FieldPeriod, label)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	viewer, err := operatorFromHeader(r)
	if err != nil {
		s.writeError(w, r, err, log.OpExport)
		return
	}
	if _, err := s.ledger.RequireHead(viewer); err != nil {
		s.writeError(w, r, err, log.OpExport)
		return
	}
	g, label, err := s.periodParams(r)
	if err != nil {
		s.writeError(w, r, err, log.OpExport)
		return
	}

	rows, err := s.ledger.ExportPeriod(r.Context(), g, label)
	if err != nil {
		s.writeError(w, r, err, log.OpExport)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"title": fmt.Sprintf("sales_%s", label),
		"rows":  rows,
	})
}
