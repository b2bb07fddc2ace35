package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/index"
	apperrors "github.com/utafrali/searchsync/pkg/errors"
	"github.com/utafrali/searchsync/pkg/httputil"
)

const filterParamPrefix = "filter."

// Searcher runs read queries against an index.
type Searcher interface {
	Search(ctx context.Context, t domain.IndexType, params index.SearchParams) (*index.SearchResult, error)
}

// SearchHandler handles HTTP requests for search endpoints.
type SearchHandler struct {
	searcher Searcher
	logger   *slog.Logger
}

// NewSearchHandler creates a new search HTTP handler.
func NewSearchHandler(s Searcher, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		searcher: s,
		logger:   logger,
	}
}

// Search handles GET /api/v1/search/{index}
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	t, err := domain.ParseIndexType(chi.URLParam(r, "index"))
	if err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput(err.Error()), h.logger)
		return
	}

	params, err := parseSearchParams(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	result, err := h.searcher.Search(r.Context(), t, params)
	if err != nil {
		httputil.WriteError(w, r, indexError(err), h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

func parseSearchParams(r *http.Request) (index.SearchParams, error) {
	q := r.URL.Query()
	params := index.SearchParams{
		Query:   strings.TrimSpace(q.Get("q")),
		PerPage: index.DefaultPerPage,
	}

	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 0 {
			return params, apperrors.InvalidInput("page must be a non-negative integer")
		}
		params.Page = page
	}
	if v := q.Get("per_page"); v != "" {
		perPage, err := strconv.Atoi(v)
		if err != nil || perPage < 1 || perPage > index.MaxPerPage {
			return params, apperrors.InvalidInput("per_page must be between 1 and " + strconv.Itoa(index.MaxPerPage))
		}
		params.PerPage = perPage
	}
	if v := q.Get("facets"); v != "" {
		for _, f := range strings.Split(v, ",") {
			if f = strings.TrimSpace(f); f != "" {
				params.Facets = append(params.Facets, f)
			}
		}
	}

	for key, values := range q {
		attr, ok := strings.CutPrefix(key, filterParamPrefix)
		if !ok || attr == "" || len(values) == 0 {
			continue
		}
		if params.Filters == nil {
			params.Filters = make(map[string]string)
		}
		params.Filters[attr] = values[0]
	}

	return params, nil
}
