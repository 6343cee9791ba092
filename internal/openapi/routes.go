package openapi

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	"github.com/strefethen/anthem-hub-go/internal/api"
	"github.com/strefethen/anthem-hub-go/internal/apperrors"
)

// Default paths to search for the OpenAPI document, relative to the
// working directory.
var defaultSpecPaths = []string{
	"assets/openapi/anthem-hub.v1.yaml",
	"../assets/openapi/anthem-hub.v1.yaml",
	"../../assets/openapi/anthem-hub.v1.yaml",
}

// RegisterRoutes wires OpenAPI routes to the router.
func RegisterRoutes(router chi.Router) {
	router.Method(http.MethodGet, "/v1/openapi", api.Handler(serveOpenAPIYAML()))
	router.Method(http.MethodGet, "/v1/openapi.json", api.Handler(serveOpenAPIJSON()))
}

// findSpecPath locates the OpenAPI document. OPENAPI_SPEC_PATH wins.
func findSpecPath() string {
	if envPath := os.Getenv("OPENAPI_SPEC_PATH"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range defaultSpecPaths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			continue
		}
		if _, err := os.Stat(absPath); err == nil {
			return absPath
		}
	}

	return ""
}

func readSpec() ([]byte, error) {
	specPath := findSpecPath()
	if specPath == "" {
		return nil, apperrors.NewNotFoundError("OpenAPI document not found", nil)
	}
	spec, err := os.ReadFile(specPath)
	if err != nil {
		return nil, apperrors.NewInternalError("Failed to read OpenAPI document")
	}
	return spec, nil
}

func serveOpenAPIYAML() func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		spec, err := readSpec()
		if err != nil {
			return err
		}

		w.Header().Set("Content-Type", "text/yaml; charset=utf-8")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(spec)
		return nil
	}
}

func serveOpenAPIJSON() func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		spec, err := readSpec()
		if err != nil {
			return err
		}

		var parsed any
		if err := yaml.Unmarshal(spec, &parsed); err != nil {
			return apperrors.NewInternalError("Failed to parse OpenAPI document")
		}

		w.Header().Set("Access-Control-Allow-Origin", "*")
		return api.WriteJSON(w, http.StatusOK, parsed)
	}
}
