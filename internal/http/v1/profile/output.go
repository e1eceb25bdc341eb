package profile

// ProfileCreateOutput for POST /profiles (201 Created)
type ProfileCreateOutput struct {
	Location string `header:"Location" doc:"URL of created profile"`
	Body     Profile
}

// ProfileListOutput for GET /profiles
type ProfileListOutput struct {
	Body []Profile
}

// ProfileGetOutput for GET /profiles/{id}
type ProfileGetOutput struct {
	Body Profile
}

// ProfileUpdateOutput for PUT /profiles/{id}
type ProfileUpdateOutput struct {
	Body Profile
}

// ProfileDeleteOutput for DELETE /profiles/{id}
type ProfileDeleteOutput struct {
	Body DeleteResult
}
