package booking

import (
	"context"
	"sort"

	"github.com/fastygo/floorplan/domain"
)

const (
	capacityBase        = 100
	historyWeight       = 5
	defaultRequiredSeat = 1
)

// Recommendations scores the ACTIVE rooms that fit requiredCapacity for userID.
// It always reads the store so the history counts are current.
func (uc *UseCase) Recommendations(ctx context.Context, userID string, requiredCapacity int) ([]domain.Recommendation, error) {
	if requiredCapacity < 0 {
		return nil, domain.NewError(domain.ErrCodeInvalid, "required capacity must be at least 1")
	}
	if requiredCapacity == 0 {
		requiredCapacity = defaultRequiredSeat
	}
	usage, err := uc.floor.RoomUsage(ctx, userID)
	if err != nil {
		return nil, err
	}
	return Score(usage, requiredCapacity), nil
}

// Score ranks candidates by (100 - spare seats) + 5 * past bookings, highest
// first. Rooms that are not ACTIVE or too small are skipped; ties keep input order.
func Score(candidates []domain.RoomUsage, requiredCapacity int) []domain.Recommendation {
	out := make([]domain.Recommendation, 0, len(candidates))
	for _, c := range candidates {
		if c.Room.Status != domain.RoomActive || c.Room.Capacity < requiredCapacity {
			continue
		}
		capacityScore := capacityBase - (c.Room.Capacity - requiredCapacity)
		historyScore := c.PastBookingsCount * historyWeight
		out = append(out, domain.Recommendation{
			ID:                c.Room.ID,
			Name:              c.Room.Name,
			Type:              c.Room.Type,
			Capacity:          c.Room.Capacity,
			Status:            c.Room.Status,
			CapacityScore:     capacityScore,
			HistoryScore:      historyScore,
			TotalScore:        capacityScore + historyScore,
			PastBookingsCount: c.PastBookingsCount,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalScore > out[j].TotalScore
	})
	return out
}
