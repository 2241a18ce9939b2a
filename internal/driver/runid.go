package driver

import "github.com/google/uuid"

// newRunID generates a random identifier used to correlate every log line
// emitted during one driver invocation (one offline pass, or one online
// session between Start and Stop).
func newRunID() string {
	id, err := uuid.NewRandom()
	if err != nil {
		return "unknown"
	}
	return id.String()
}
