package routes

import (
	"github.com/danielgtaylor/huma/v2"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor"

	"github.com/janisto/profile-api/internal/http/health"
	"github.com/janisto/profile-api/internal/http/v1/profile"
	profilesvc "github.com/janisto/profile-api/internal/service/profile"
)

// DocsPath serves the interactive API documentation.
const DocsPath = "/api-docs"

// Config returns the huma configuration shared by the server and tests.
func Config(title, version string) huma.Config {
	cfg := huma.DefaultConfig(title, version)
	cfg.DocsPath = DocsPath
	// Error and profile bodies carry only their documented keys.
	cfg.CreateHooks = nil
	cfg.OnAddOperation = append(cfg.OnAddOperation, advertiseCBOR)
	return cfg
}

// advertiseCBOR lists application/cbor wherever an operation accepts or
// returns JSON.
func advertiseCBOR(_ *huma.OpenAPI, op *huma.Operation) {
	if op.RequestBody != nil && op.RequestBody.Content != nil {
		if jsonContent, ok := op.RequestBody.Content["application/json"]; ok {
			op.RequestBody.Content["application/cbor"] = jsonContent
		}
	}
	for _, resp := range op.Responses {
		if resp.Content == nil {
			continue
		}
		if jsonContent, ok := resp.Content["application/json"]; ok {
			resp.Content["application/cbor"] = jsonContent
		}
	}
}

// Register wires all HTTP routes into the provided API router.
func Register(api huma.API, profileService profilesvc.Service) {
	health.Register(api)
	profile.Register(api, profileService)
}
