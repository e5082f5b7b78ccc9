package http

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"fintrack/internal/analytics"
	"fintrack/internal/chat"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
)

// recentLimit is how many transactions the dashboard lists.
const recentLimit = 10

type summaryRow struct {
	analytics.Group
	// Width is the bar length in percent of the largest absolute total.
	Width    int
	Negative bool
}

type summaryView struct {
	GroupBy        analytics.GroupBy
	From, To       string
	Options        []analytics.GroupBy
	Result         analytics.Result
	Rows           []summaryRow
	Recent         []core.Transaction
	Version        uint64
	Error          string
	ValidationErr  string
	CurrencySymbol string
}

type summaryResponse struct {
	Version uint64            `json:"version"`
	GroupBy analytics.GroupBy `json:"group_by"`
	From    string            `json:"from,omitempty"`
	To      string            `json:"to,omitempty"`
	Result  analytics.Result  `json:"result"`
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, "dashboard.html", s.buildSummaryView(r))
}

// handleSummaryPartial renders only the summary section. The dashboard
// reloads it when the grouping changes or the ledger is updated.
func (s *Server) handleSummaryPartial(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, "summary", s.buildSummaryView(r))
}

func (s *Server) handleSummaryAPI(w http.ResponseWriter, r *http.Request) {
	q, err := ParseSummaryQuery(r.URL.Query())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	ledger := s.controller.Ledger()
	res, err := ledger.Summary(r.Context(), q)
	if err != nil {
		s.logSummaryError(r.Context(), err, q)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: chat.UserMessage(err)})
		return
	}

	resp := summaryResponse{Version: ledger.Version(), GroupBy: res.GroupBy, Result: res}
	if !q.From.IsZero() {
		resp.From = q.From.String()
	}
	if !q.To.IsZero() {
		resp.To = q.To.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) buildSummaryView(r *http.Request) summaryView {
	view := summaryView{
		GroupBy:        analytics.ByCategory,
		Options:        analytics.GroupByValues(),
		From:           r.URL.Query().Get("from"),
		To:             r.URL.Query().Get("to"),
		CurrencySymbol: s.controller.CurrencySymbol(),
	}

	q, err := ParseSummaryQuery(r.URL.Query())
	if err != nil {
		view.ValidationErr = err.Error()
		q = analytics.Query{GroupBy: analytics.ByCategory}
	}
	view.GroupBy = q.GroupBy

	ledger := s.controller.Ledger()
	res, err := ledger.Summary(r.Context(), q)
	if err != nil {
		s.logSummaryError(r.Context(), err, q)
		view.Error = chat.UserMessage(err)
		return view
	}
	view.Result = res
	view.Rows = summaryRows(res.Groups)
	view.Version = ledger.Version()

	if recent, err := ledger.Recent(r.Context(), recentLimit); err == nil {
		view.Recent = recent
	}
	return view
}

// summaryRows scales each group against the largest absolute total so the
// template can draw bars.
func summaryRows(groups []analytics.Group) []summaryRow {
	maxAbs := decimal.Zero
	for _, g := range groups {
		if a := g.Total.Abs(); a.GreaterThan(maxAbs) {
			maxAbs = a
		}
	}

	rows := make([]summaryRow, 0, len(groups))
	hundred := decimal.NewFromInt(100)
	for _, g := range groups {
		row := summaryRow{Group: g, Negative: g.Total.IsNegative()}
		if maxAbs.IsPositive() {
			row.Width = int(g.Total.Abs().Mul(hundred).Div(maxAbs).Round(0).IntPart())
			// keep tiny values visible
			if row.Width < 2 && !g.Total.IsZero() {
				row.Width = 2
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func (s *Server) logSummaryError(ctx context.Context, err error, q analytics.Query) {
	applog.NewStructuredLogger(applog.FromContext(ctx)).LogError(ctx, "Summary failed", err,
		applog.ComponentLedger, applog.OpSummary, applog.LogFields{"group_by": q.GroupBy})
}
