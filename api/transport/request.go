package transport

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"

	"github.com/fastygo/floorplan/domain"
)

var validate = validator.New()

// EnrollRequest is sent once on login.
type EnrollRequest struct {
	Name string `json:"name" validate:"max=200"`
}

type CreateRoomRequest struct {
	Name     string `json:"name" validate:"required,max=200"`
	Type     string `json:"type" validate:"required,max=100"`
	Capacity int    `json:"capacity"`
}

// UpdateRoomRequest carries a partial update. LastSeenVersion is the floor
// version the caller's edit was based on; restricted writers must send it.
type UpdateRoomRequest struct {
	Updates         domain.RoomUpdate `json:"updates"`
	Force           bool              `json:"force"`
	LastSeenVersion int64             `json:"last_seen_version,omitempty" validate:"gte=0"`
}

type BookRequest struct {
	Participants int `json:"participants"`
}

// Decode unmarshals body into dst and runs its validation tags. Any failure
// is reported as an INVALID domain error.
func Decode(body []byte, dst interface{}) error {
	if len(body) == 0 {
		return domain.ErrInvalidPayload
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return domain.WrapError(domain.ErrCodeInvalid, "invalid payload", err)
	}
	if err := validate.Struct(dst); err != nil {
		return domain.WrapError(domain.ErrCodeInvalid, "invalid payload", err)
	}
	return nil
}
