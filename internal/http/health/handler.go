package health

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

const statusHealthy = "healthy"

// Response is the payload for the health endpoint.
type Response struct {
	Status string `json:"status" doc:"Service status" example:"healthy"`
}

// Output wraps Response for huma.
type Output struct {
	Body Response
}

// Register adds GET /health. It never touches the profile backend.
func Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"Health"},
	}, func(context.Context, *struct{}) (*Output, error) {
		return &Output{Body: Response{Status: statusHealthy}}, nil
	})
}
