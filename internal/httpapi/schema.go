package httpapi

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/invopop/jsonschema"

	"github.com/ent0n29/cfdbot/internal/pressure"
	"github.com/ent0n29/cfdbot/internal/protocol"
)

// schemaTypes maps the public schema names to the payloads they describe.
var schemaTypes = map[string]func() *jsonschema.Schema{
	"generate-request":  reflectSchema[GenerateRequest],
	"analysis-response": reflectSchema[pressure.Report],
	"client-prompt":     reflectSchema[protocol.ClientPrompt],
	"error-response":    reflectSchema[errorResponse],
}

func reflectSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	build, ok := schemaTypes[name]
	if !ok {
		names := make([]string, 0, len(schemaTypes))
		for n := range schemaTypes {
			names = append(names, n)
		}
		sort.Strings(names)
		respondJSON(w, http.StatusNotFound, map[string]any{
			"error":     "unknown schema " + name,
			"code":      "schema_not_found",
			"available": names,
		})
		return
	}
	w.Header().Set("Content-Type", "application/schema+json")
	w.WriteHeader(http.StatusOK)
	_ = jsonEncode(w, build())
}
