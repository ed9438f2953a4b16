package instance

import "github.com/flagit/flagit-backend/pkg/env"

// GetID names this process in startup logs. An explicit FLAGIT_INSTANCE_ID
// wins, then the Cloud Run revision, then a Heroku-style DYNO.
func GetID() string {
	return env.First("local", "FLAGIT_INSTANCE_ID", "K_REVISION", "DYNO")
}
