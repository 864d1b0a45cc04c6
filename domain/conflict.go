package domain

// FieldConflict is the payload of a field-level write conflict. ServerFields and
// ClientFields share keys: one per conflicting field.
//
// Only flat room fields are compared; nested structures are never diffed.
type FieldConflict struct {
	ServerFields   map[string]interface{} `json:"server_fields"`
	ClientFields   map[string]interface{} `json:"client_fields"`
	ServerRoom     *Room                  `json:"server_room,omitempty"`
	CurrentVersion int64                  `json:"current_version"`
}

// Fields returns the names of the conflicting fields.
func (c *FieldConflict) Fields() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.ServerFields))
	for k := range c.ServerFields {
		out = append(out, k)
	}
	return out
}

// OccupiedDetails accompanies occupied/unavailable conflicts.
type OccupiedDetails struct {
	RoomID         string `json:"room_id"`
	IsBooked       bool   `json:"is_booked"`
	CurrentVersion int64  `json:"current_version"`
}

// GoneDetails tells the caller which version to resynchronise to.
type GoneDetails struct {
	RoomID         string `json:"room_id"`
	RoomDeleted    bool   `json:"room_deleted"`
	CurrentVersion int64  `json:"current_version"`
}
