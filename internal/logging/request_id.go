package logging

import "github.com/google/uuid"

// GenerateRequestID returns a random (version 4) UUID string used to tag
// every log line of one operation.
func GenerateRequestID() string {
	return uuid.NewString()
}
