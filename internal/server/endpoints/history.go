package endpoints

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/ocrion/internal/api"
	"github.com/jackzampolin/ocrion/internal/history"
	"github.com/jackzampolin/ocrion/internal/region"
	"github.com/jackzampolin/ocrion/internal/svcctx"
)

// HistoryResponse contains a page of recorded backend calls.
type HistoryResponse struct {
	Calls  []history.Call `json:"calls"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// HistoryCallResponse contains a single recorded call.
type HistoryCallResponse struct {
	Call *history.Call `json:"call"`
}

type historyFilter struct {
	requestID, provider, model, outcome string
	limit, offset                       int
	after, before                       *time.Time
}

func (f historyFilter) toQuery() history.QueryFilter {
	return history.QueryFilter{
		RequestID: f.requestID,
		Provider:  f.provider,
		Model:     f.model,
		Outcome:   region.Outcome(f.outcome),
		After:     f.after,
		Before:    f.before,
		Limit:     f.limit,
		Offset:    f.offset,
	}
}

// ListHistoryEndpoint handles GET /history.
type ListHistoryEndpoint struct{}

func (e *ListHistoryEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/history", e.handler
}

func (e *ListHistoryEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		List backend calls
//	@Description	Get recorded backend attempts, newest first
//	@Tags			history
//	@Produce		json
//	@Param			request_id	query		string	false	"Filter by request ID"
//	@Param			provider	query		string	false	"Filter by provider"
//	@Param			model		query		string	false	"Filter by model"
//	@Param			outcome		query		string	false	"Filter by outcome (parsed, unparseable, not_object, transport_error, canceled)"
//	@Param			limit		query		int		false	"Max results (default 50, max 1000)"
//	@Param			offset		query		int		false	"Result offset"
//	@Param			after		query		string	false	"Filter calls after this RFC3339 timestamp"
//	@Param			before		query		string	false	"Filter calls before this RFC3339 timestamp"
//	@Success		200			{object}	HistoryResponse
//	@Failure		400			{object}	ErrorResponse
//	@Failure		500			{object}	ErrorResponse
//	@Failure		503			{object}	ErrorResponse
//	@Router			/history [get]
func (e *ListHistoryEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	store := svcctx.HistoryFrom(r.Context())
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "call history is disabled")
		return
	}

	q := r.URL.Query()
	f := historyFilter{
		requestID: q.Get("request_id"),
		provider:  q.Get("provider"),
		model:     q.Get("model"),
		outcome:   q.Get("outcome"),
	}

	for name, dst := range map[string]*int{"limit": &f.limit, "offset": &f.offset} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s: %q must be a non-negative integer", name, v))
				return
			}
			*dst = n
		}
	}
	for name, dst := range map[string]**time.Time{"after": &f.after, "before": &f.before} {
		if v := q.Get(name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s time: %q must be RFC3339 format (e.g., 2024-01-15T00:00:00Z)", name, v))
				return
			}
			*dst = &t
		}
	}

	filter := f.toQuery()
	calls, err := store.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := store.Count(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if calls == nil {
		calls = []history.Call{}
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = history.DefaultLimit
	}
	writeJSON(w, http.StatusOK, HistoryResponse{
		Calls:  calls,
		Total:  total,
		Limit:  min(limit, history.MaxLimit),
		Offset: filter.Offset,
	})
}

func (e *ListHistoryEndpoint) Command(getServerURL func() string) *cobra.Command {
	var requestID, provider, model, outcome string
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded backend calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := url.Values{}
			if requestID != "" {
				params.Set("request_id", requestID)
			}
			if provider != "" {
				params.Set("provider", provider)
			}
			if model != "" {
				params.Set("model", model)
			}
			if outcome != "" {
				params.Set("outcome", outcome)
			}
			if limit > 0 {
				params.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				params.Set("offset", strconv.Itoa(offset))
			}

			path := "/history"
			if len(params) > 0 {
				path += "?" + params.Encode()
			}

			client := api.NewClient(getServerURL())
			var resp HistoryResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&requestID, "request-id", "", "Filter by request ID")
	cmd.Flags().StringVar(&provider, "provider", "", "Filter by provider")
	cmd.Flags().StringVar(&model, "model", "", "Filter by model")
	cmd.Flags().StringVar(&outcome, "outcome", "", "Filter by outcome")
	cmd.Flags().IntVar(&limit, "limit", history.DefaultLimit, "Max results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Result offset")
	return cmd
}

// GetHistoryEndpoint handles GET /history/{id}.
type GetHistoryEndpoint struct{}

func (e *GetHistoryEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/history/{id}", e.handler
}

func (e *GetHistoryEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Get a backend call
//	@Description	Get a single recorded backend attempt by ID
//	@Tags			history
//	@Produce		json
//	@Param			id	path		string	true	"Call ID"
//	@Success		200	{object}	HistoryCallResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/history/{id} [get]
func (e *GetHistoryEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id required")
		return
	}

	store := svcctx.HistoryFrom(r.Context())
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "call history is disabled")
		return
	}

	call, err := store.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if call == nil {
		writeError(w, http.StatusNotFound, "call not found")
		return
	}

	writeJSON(w, http.StatusOK, HistoryCallResponse{Call: call})
}

func (e *GetHistoryEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get a recorded backend call by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp HistoryCallResponse
			if err := client.Get(cmd.Context(), "/history/"+url.PathEscape(args[0]), &resp); err != nil {
				return err
			}
			return api.Output(resp.Call)
		},
	}
}
