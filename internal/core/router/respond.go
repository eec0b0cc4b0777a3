package router

import (
	"encoding/json"
	"errors"
	"maps"
	"net/http"

	"github.com/prefeitura-rio/api-dados-rio/internal/core/apperr"
)

// GenericError is the only failure detail clients ever see for a 500.
const GenericError = "Something went wrong. Try again later."

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps validation failures to 400 with their message and
// everything else to the generic 500.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ve.Msg})
		return
	}
	h.d.Log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: GenericError})
}

// annotate attaches a soft-failure warning. Objects get an "error" field on
// a copy; anything else is wrapped as {data, error}.
func annotate(v any, warning string) any {
	if warning == "" {
		return v
	}
	if m, ok := v.(map[string]any); ok {
		out := make(map[string]any, len(m)+1)
		maps.Copy(out, m)
		out["error"] = warning
		return out
	}
	return map[string]any{"data": v, "error": warning}
}
