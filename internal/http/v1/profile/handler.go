package profile

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	applog "github.com/janisto/profile-api/internal/platform/logging"
	"github.com/janisto/profile-api/internal/platform/timeutil"
	profilesvc "github.com/janisto/profile-api/internal/service/profile"
)

// Messages returned to clients.
const (
	msgDeleted    = "Perfil eliminado correctamente"
	msgNotFound   = "Perfil no encontrado"
	msgEmailInUse = "El email ya está en uso"
	msgStorage    = "Error de almacenamiento: "
	msgInternal   = "Error interno del servidor"
)

const basePath = "/profiles"

// Register registers profile endpoints.
func Register(api huma.API, svc profilesvc.Service) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-profile",
		Method:        http.MethodPost,
		Path:          basePath,
		Summary:       "Create profile",
		Description:   "Creates a profile with default preferences and an empty history. The email must not be in use.",
		Tags:          []string{"Profile"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *ProfileCreateInput) (*ProfileCreateOutput, error) {
		p, err := svc.Create(ctx, profilesvc.CreateParams{
			Name:  input.Body.Name,
			Email: input.Body.Email,
			Age:   input.Body.Age,
		})
		if err != nil {
			return nil, mapServiceError(ctx, err)
		}
		return &ProfileCreateOutput{
			Location: basePath + "/" + p.ID,
			Body:     toHTTPProfile(p),
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-profiles",
		Method:      http.MethodGet,
		Path:        basePath,
		Summary:     "List profiles",
		Description: "Lists profiles, optionally filtered by an inclusive age range and a case-insensitive name substring. Profiles without an age are excluded when an age bound is given.",
		Tags:        []string{"Profile"},
	}, func(ctx context.Context, input *ProfileListInput) (*ProfileListOutput, error) {
		profiles, err := svc.List(ctx, profilesvc.Filter{
			MinAge:       input.MinAge.ptr(),
			MaxAge:       input.MaxAge.ptr(),
			NameContains: input.NameContains,
		})
		if err != nil {
			return nil, mapServiceError(ctx, err)
		}
		out := make([]Profile, len(profiles))
		for i := range profiles {
			out[i] = toHTTPProfile(&profiles[i])
		}
		return &ProfileListOutput{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-profile",
		Method:      http.MethodGet,
		Path:        basePath + "/{id}",
		Summary:     "Get profile",
		Description: "Retrieves a profile by ID.",
		Tags:        []string{"Profile"},
	}, func(ctx context.Context, input *ProfileGetInput) (*ProfileGetOutput, error) {
		p, err := svc.Get(ctx, input.ID)
		if err != nil {
			return nil, mapServiceError(ctx, err)
		}
		return &ProfileGetOutput{Body: toHTTPProfile(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-profile",
		Method:      http.MethodPut,
		Path:        basePath + "/{id}",
		Summary:     "Update profile",
		Description: "Updates the fields present in the body. Absent fields keep their value; edad may be set to null to clear it.",
		Tags:        []string{"Profile"},
	}, func(ctx context.Context, input *ProfileUpdateInput) (*ProfileUpdateOutput, error) {
		p, err := svc.Update(ctx, input.ID, toUpdateParams(input))
		if err != nil {
			return nil, mapServiceError(ctx, err)
		}
		return &ProfileUpdateOutput{Body: toHTTPProfile(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-profile",
		Method:      http.MethodDelete,
		Path:        basePath + "/{id}",
		Summary:     "Delete profile",
		Description: "Permanently deletes a profile and returns it as it was before deletion.",
		Tags:        []string{"Profile"},
	}, func(ctx context.Context, input *ProfileDeleteInput) (*ProfileDeleteOutput, error) {
		p, err := svc.Delete(ctx, input.ID)
		if err != nil {
			return nil, mapServiceError(ctx, err)
		}
		return &ProfileDeleteOutput{
			Body: DeleteResult{Message: msgDeleted, Profile: toHTTPProfile(p)},
		}, nil
	})
}

func toUpdateParams(input *ProfileUpdateInput) profilesvc.UpdateParams {
	body := input.Body
	params := profilesvc.UpdateParams{
		Name:    body.Name,
		Email:   body.Email,
		History: body.History,
	}
	if body.Age.IsSpecified() {
		params.Age.Set = true
		if age, err := body.Age.Get(); err == nil {
			params.Age.Value = &age
		}
	}
	if prefs := body.Preferences; prefs != nil {
		params.Preferences = &profilesvc.PreferencesUpdate{
			Length:    prefs.Length,
			Uppercase: prefs.Uppercase,
			Lowercase: prefs.Lowercase,
			Numbers:   prefs.Numbers,
			Symbols:   prefs.Symbols,
		}
	}
	return params
}

func mapServiceError(ctx context.Context, err error) error {
	var (
		ve *profilesvc.ValidationError
		se *profilesvc.StorageError
	)
	switch {
	case errors.As(err, &ve):
		return huma.Error400BadRequest(ve.Message)
	case errors.Is(err, profilesvc.ErrNotFound):
		return huma.Error404NotFound(msgNotFound)
	case errors.Is(err, profilesvc.ErrEmailInUse):
		return huma.Error409Conflict(msgEmailInUse)
	case errors.As(err, &se):
		return huma.Error500InternalServerError(msgStorage + se.Err.Error())
	default:
		applog.LogError(ctx, "unexpected profile service error", err)
		return huma.Error500InternalServerError(msgInternal)
	}
}

func toHTTPProfile(p *profilesvc.Profile) Profile {
	history := p.History
	if history == nil {
		history = []any{}
	}
	return Profile{
		ID:    p.ID,
		Name:  p.Name,
		Email: p.Email,
		Age:   p.Age,
		Preferences: Preferences{
			Length:    p.Preferences.Length,
			Uppercase: p.Preferences.Uppercase,
			Lowercase: p.Preferences.Lowercase,
			Numbers:   p.Preferences.Numbers,
			Symbols:   p.Preferences.Symbols,
		},
		History:   history,
		CreatedAt: timeutil.Time{Time: p.CreatedAt},
		UpdatedAt: timeutil.Time{Time: p.UpdatedAt},
	}
}
