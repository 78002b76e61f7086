package ids

import "github.com/google/uuid"

// NewDeviceID returns a random (v4) UUID string.
func NewDeviceID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
