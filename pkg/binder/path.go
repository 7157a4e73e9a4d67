package binder

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Path binds chi URL parameters to fields tagged `path:"name"`.
func Path() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		rctx := chi.RouteContext(r.Context())
		if rctx == nil || len(rctx.URLParams.Keys) == 0 {
			return ErrBinderNotApplicable
		}

		values := make(map[string][]string, len(rctx.URLParams.Keys))
		for i, key := range rctx.URLParams.Keys {
			if i < len(rctx.URLParams.Values) && key != "*" {
				values[key] = []string{rctx.URLParams.Values[i]}
			}
		}
		return bindToStruct(v, "path", values, ErrFailedToParsePath)
	}
}

// Query binds URL query values to fields tagged `query:"name"`.
func Query() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		q := r.URL.Query()
		if len(q) == 0 {
			return ErrBinderNotApplicable
		}
		return bindToStruct(v, "query", q, ErrFailedToParseQuery)
	}
}
