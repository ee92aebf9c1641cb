package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// ParseUUIDParam reads a required UUID route parameter.
func ParseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, key))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "route parameter is required").WithDetails(map[string]any{"field": key})
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "route parameter must be a uuid").WithDetails(map[string]any{"field": key})
	}
	return id, nil
}

// ParsePageParams reads the limit and cursor query parameters.
func ParsePageParams(r *http.Request) (pagination.Params, error) {
	params := pagination.Params{
		Limit:  pagination.DefaultLimit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}
	limit, err := ParseOptionalQuery(r, "limit", strconv.Atoi)
	if err != nil || limit == nil {
		return params, err
	}
	if *limit < 1 || *limit > pagination.MaxLimit {
		return pagination.Params{}, pkgerrors.New(pkgerrors.CodeValidation, "limit out of range").
			WithDetails(map[string]any{"field": "limit", "min": 1, "max": pagination.MaxLimit})
	}
	params.Limit = *limit
	return params, nil
}

// ParseOptionalQuery parses key with parse when present and returns nil when absent.
func ParseOptionalQuery[T any](r *http.Request, key string, parse func(string) (T, error)) (*T, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	value, err := parse(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid query parameter").WithDetails(map[string]any{"field": key})
	}
	return &value, nil
}
