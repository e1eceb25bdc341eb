// Package firebase bootstraps the Firestore client through the Firebase Admin SDK.
package firebase

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

// Config holds Firebase configuration.
type Config struct {
	ProjectID string `env:"FIREBASE_PROJECT_ID"`
	// Path to a service account JSON. Empty uses application default credentials.
	GoogleApplicationCredentials string `env:"GOOGLE_APPLICATION_CREDENTIALS"`
}

// ClientOptions builds the credential options for cfg.
func ClientOptions(cfg Config) ([]option.ClientOption, error) {
	if cfg.GoogleApplicationCredentials == "" {
		return nil, nil
	}
	creds, err := os.ReadFile(cfg.GoogleApplicationCredentials)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	return []option.ClientOption{option.WithCredentialsJSON(creds)}, nil
}

// NewFirestore initializes the Firebase app and returns its Firestore client.
// When FIRESTORE_EMULATOR_HOST is set the client talks to the emulator.
func NewFirestore(ctx context.Context, cfg Config) (*firestore.Client, error) {
	opts, err := ClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return client, nil
}
