package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/floorplan/domain"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestPolicyFor(t *testing.T) {
	p, err := PolicyFor(domain.RoleSuperAdmin)
	require.NoError(t, err)
	assert.IsType(t, unrestrictedPolicy{}, p)

	p, err = PolicyFor(domain.RoleAdmin)
	require.NoError(t, err)
	assert.IsType(t, restrictedPolicy{}, p)

	_, err = PolicyFor(domain.RoleEmployee)
	assert.ErrorIs(t, err, domain.ErrNoWriteAuthority)
}

func TestRestrictedValidate(t *testing.T) {
	p := restrictedPolicy{}
	booked := domain.RoomActive

	tests := []struct {
		name string
		in   UpdateInput
		want error
	}{
		{"empty", UpdateInput{LastSeenVersion: 1}, domain.ErrEmptyUpdate},
		{"capacity", UpdateInput{Updates: domain.RoomUpdate{Capacity: intPtr(3)}, LastSeenVersion: 1}, domain.ErrRestrictedField},
		{"status", UpdateInput{Updates: domain.RoomUpdate{Status: &booked}, LastSeenVersion: 1}, domain.ErrRestrictedField},
		{"no last seen", UpdateInput{Updates: domain.RoomUpdate{Name: strPtr("A")}}, domain.ErrLastSeenRequired},
		{"ok", UpdateInput{Updates: domain.RoomUpdate{Name: strPtr("A")}, LastSeenVersion: 1}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Validate(tt.in)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUnrestrictedValidate(t *testing.T) {
	p := unrestrictedPolicy{}
	booked := domain.RoomBooked
	unknown := domain.RoomStatus("CLOSED")

	assert.ErrorIs(t, p.Validate(UpdateInput{Updates: domain.RoomUpdate{Status: &booked}}), domain.ErrBookedStatusWrite)
	assert.True(t, domain.IsDomainError(p.Validate(UpdateInput{Updates: domain.RoomUpdate{Status: &unknown}}), domain.ErrCodeInvalid))
	assert.ErrorIs(t, p.Validate(UpdateInput{Updates: domain.RoomUpdate{Capacity: intPtr(0)}}), domain.ErrInvalidCapacity)
	assert.True(t, domain.IsDomainError(p.Validate(UpdateInput{Updates: domain.RoomUpdate{Name: strPtr("")}}), domain.ErrCodeInvalid))
	assert.NoError(t, p.Validate(UpdateInput{Updates: domain.RoomUpdate{Capacity: intPtr(8)}}))
}

func TestDiffFields(t *testing.T) {
	current := &domain.Room{ID: "r1", Name: "Server", Type: "meeting", Capacity: 6}
	original := &domain.RoomView{ID: "r1", Name: "Original", Type: "meeting", Capacity: 6}

	t.Run("untouched field auto-merges", func(t *testing.T) {
		server, client := DiffFields(current, original, domain.RoomUpdate{Type: strPtr("focus")})
		assert.Empty(t, server)
		assert.Empty(t, client)
	})

	t.Run("concurrently changed field conflicts", func(t *testing.T) {
		server, client := DiffFields(current, original, domain.RoomUpdate{Name: strPtr("Mine"), Type: strPtr("focus")})
		assert.Equal(t, map[string]interface{}{"name": "Server"}, server)
		assert.Equal(t, map[string]interface{}{"name": "Mine"}, client)
	})

	t.Run("same intended value is not a conflict", func(t *testing.T) {
		server, _ := DiffFields(current, original, domain.RoomUpdate{Name: strPtr("Server")})
		assert.Empty(t, server)
	})

	t.Run("room unseen conflicts on every differing field", func(t *testing.T) {
		server, _ := DiffFields(current, nil, domain.RoomUpdate{Name: strPtr("Mine"), Type: strPtr("meeting")})
		assert.Equal(t, map[string]interface{}{"name": "Server"}, server)
	})
}
