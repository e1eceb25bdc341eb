package profile

import (
	"reflect"

	"github.com/danielgtaylor/huma/v2"
	"github.com/fxamacker/cbor/v2"
	"github.com/oapi-codegen/nullable"
)

// OptionalParam is a query parameter that remembers whether it was sent, so
// that a bound of 0 is still applied.
type OptionalParam[T any] struct {
	Value T
	IsSet bool
}

// Schema returns the schema of the wrapped value.
func (o OptionalParam[T]) Schema(r huma.Registry) *huma.Schema {
	return huma.SchemaFromType(r, reflect.TypeOf(o.Value))
}

// Receiver points huma's parser at Value.
func (o *OptionalParam[T]) Receiver() reflect.Value {
	return reflect.ValueOf(o).Elem().Field(0)
}

// OnParamSet records whether the parameter was present.
func (o *OptionalParam[T]) OnParamSet(isSet bool, _ any) {
	o.IsSet = isSet
}

func (o OptionalParam[T]) ptr() *T {
	if !o.IsSet {
		return nil
	}
	v := o.Value
	return &v
}

// NullableInt tells an absent field apart from an explicit null.
type NullableInt struct {
	nullable.Nullable[int]
}

// Schema documents the field as a nullable integer.
func (NullableInt) Schema(huma.Registry) *huma.Schema {
	return &huma.Schema{
		Type:        huma.TypeInteger,
		Format:      "int64",
		Nullable:    true,
		Description: "Age in years. Send null to clear it.",
		Examples:    []any{31},
	}
}

// UnmarshalCBOR mirrors the JSON decoding of nullable.Nullable.
func (n *NullableInt) UnmarshalCBOR(data []byte) error {
	var v *int
	if err := cbor.Unmarshal(data, &v); err != nil {
		return err
	}
	if v == nil {
		n.SetNull()
		return nil
	}
	n.Set(*v)
	return nil
}

// PreferencesInput carries the preference keys to change.
type PreferencesInput struct {
	Length    *int  `json:"length,omitempty"    doc:"Generated password length"  example:"24"`
	Uppercase *bool `json:"uppercase,omitempty" doc:"Include uppercase letters"  example:"true"`
	Lowercase *bool `json:"lowercase,omitempty" doc:"Include lowercase letters"  example:"true"`
	Numbers   *bool `json:"numbers,omitempty"   doc:"Include digits"             example:"false"`
	Symbols   *bool `json:"symbols,omitempty"   doc:"Include symbols"            example:"true"`
}

// ProfileCreateInput for POST /profiles. Missing fields are reported by the
// service with a 400, so nothing is marked required here.
type ProfileCreateInput struct {
	Body struct {
		Name  string `json:"nombre_perfil,omitempty" maxLength:"200" doc:"Profile name"  example:"Ana"`
		Email string `json:"email,omitempty"         maxLength:"320" doc:"Email address" example:"ana@example.com"`
		Age   *int   `json:"edad,omitempty"          nullable:"true" doc:"Age in years"  example:"31"`
	} `required:"false"`
}

// ProfileListInput for GET /profiles
type ProfileListInput struct {
	MinAge       OptionalParam[int] `query:"min_age"       doc:"Minimum age, inclusive" example:"30"`
	MaxAge       OptionalParam[int] `query:"max_age"       doc:"Maximum age, inclusive" example:"40"`
	NameContains string             `query:"name_contains" doc:"Case-insensitive substring of the name" example:"an" maxLength:"200"`
}

// ProfileGetInput for GET /profiles/{id}
type ProfileGetInput struct {
	ID string `path:"id" doc:"Profile ID" example:"3f9a7c1e-2b4d-4e8f-9a6b-1c2d3e4f5a6b"`
}

// ProfileUpdateInput for PUT /profiles/{id}. Only the fields sent are changed.
type ProfileUpdateInput struct {
	ID   string `path:"id" doc:"Profile ID" example:"3f9a7c1e-2b4d-4e8f-9a6b-1c2d3e4f5a6b"`
	Body struct {
		Name        *string           `json:"nombre_perfil,omitempty" maxLength:"200" doc:"Profile name"      example:"Ana"`
		Email       *string           `json:"email,omitempty"         maxLength:"320" doc:"Email address"     example:"ana@example.com"`
		Age         NullableInt       `json:"edad,omitempty"`
		Preferences *PreferencesInput `json:"preferencias,omitempty"                  doc:"Preference keys to change"`
		History     *[]any            `json:"historial,omitempty"                     doc:"Replacement history"`
	} `required:"false"`
}

// ProfileDeleteInput for DELETE /profiles/{id}
type ProfileDeleteInput struct {
	ID string `path:"id" doc:"Profile ID" example:"3f9a7c1e-2b4d-4e8f-9a6b-1c2d3e4f5a6b"`
}
