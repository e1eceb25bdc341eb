package profile

import (
	"github.com/janisto/profile-api/internal/platform/timeutil"
)

// Preferences are the password-generation settings of a profile.
type Preferences struct {
	Length    int  `json:"length"    doc:"Generated password length" example:"16"`
	Uppercase bool `json:"uppercase" doc:"Include uppercase letters" example:"true"`
	Lowercase bool `json:"lowercase" doc:"Include lowercase letters" example:"true"`
	Numbers   bool `json:"numbers"   doc:"Include digits"            example:"true"`
	Symbols   bool `json:"symbols"   doc:"Include symbols"           example:"true"`
}

// Profile represents a profile response.
type Profile struct {
	ID          string        `json:"id"            doc:"Unique identifier"     example:"3f9a7c1e-2b4d-4e8f-9a6b-1c2d3e4f5a6b"`
	Name        string        `json:"nombre_perfil" doc:"Profile name"          example:"Ana"`
	Email       string        `json:"email"         doc:"Email address"         example:"ana@example.com"`
	Age         *int          `json:"edad"          doc:"Age in years"          example:"31" nullable:"true"`
	Preferences Preferences   `json:"preferencias"  doc:"Preference settings"`
	History     []any         `json:"historial"     doc:"Opaque history entries"`
	CreatedAt   timeutil.Time `json:"createdAt"     doc:"Creation timestamp"    example:"2024-01-15T10:30:00.000000Z"`
	UpdatedAt   timeutil.Time `json:"updatedAt"     doc:"Last update timestamp" example:"2024-01-15T10:30:00.000000Z"`
}

// DeleteResult is returned by DELETE /profiles/{id}.
type DeleteResult struct {
	Message string  `json:"message" doc:"Confirmation message" example:"Perfil eliminado"`
	Profile Profile `json:"perfil"  doc:"Profile as it was before deletion"`
}
