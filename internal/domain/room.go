package domain

import (
	"fmt"
	"slices"

	apperrors "github.com/sonic7adarsh/bharatapp/pkg/errors"
)

// DefaultMaxPerRoom is the occupancy cap used when a policy leaves it unset.
const DefaultMaxPerRoom = 3

// RoomPolicy is the property's occupancy rule. MaxRooms of 0 means no limit.
type RoomPolicy struct {
	MaxPerRoom           int  `json:"perRoomMax"`
	ExtraMattressAllowed bool `json:"extraMattressAllowed"`
	MaxRooms             int  `json:"maxRooms,omitempty"`
}

func (p RoomPolicy) maxPerRoom() int {
	if p.MaxPerRoom < 1 {
		return DefaultMaxPerRoom
	}
	return p.MaxPerRoom
}

// RoomAllocation is a validated guest-per-room assignment.
type RoomAllocation struct {
	GuestsPerRoom        []int `json:"roomsGuests"`
	MaxPerRoom           int   `json:"perRoomMax"`
	ExtraMattressAllowed bool  `json:"extraMattressAllowed"`
	ExtraMattressCount   int   `json:"extraMattressCount"`
}

// Rooms is the number of rooms booked.
func (a RoomAllocation) Rooms() int { return len(a.GuestsPerRoom) }

// Guests is the total headcount.
func (a RoomAllocation) Guests() int {
	n := 0
	for _, g := range a.GuestsPerRoom {
		n += g
	}
	return n
}

// AllocateRooms validates a per-room guest assignment against policy. A room
// filled to exactly MaxPerRoom needs an extra mattress, which is counted when
// the policy allows it and refused with CAPACITY_EXCEEDED otherwise.
func AllocateRooms(requested []int, policy RoomPolicy) (RoomAllocation, error) {
	limit := policy.maxPerRoom()
	if len(requested) == 0 {
		return RoomAllocation{}, apperrors.Validation("at least one guest and one room are required").WithField("roomsGuests")
	}

	full := 0
	for i, g := range requested {
		switch {
		case g < 1:
			return RoomAllocation{}, apperrors.Validation(fmt.Sprintf("room %d needs at least one guest", i+1)).WithField("roomsGuests")
		case g > limit:
			return RoomAllocation{}, apperrors.CapacityExceeded(fmt.Sprintf("room %d has %d guests; the limit is %d per room", i+1, g, limit))
		case g == limit:
			full++
		}
	}

	if policy.MaxRooms > 0 && len(requested) > policy.MaxRooms {
		return RoomAllocation{}, apperrors.CapacityExceeded(fmt.Sprintf("at most %d rooms can be booked together", policy.MaxRooms))
	}
	if full > 0 && !policy.ExtraMattressAllowed {
		return RoomAllocation{}, apperrors.CapacityExceeded(
			fmt.Sprintf("%d guests in one room needs an extra mattress, which this property does not offer", limit))
	}

	alloc := RoomAllocation{
		GuestsPerRoom:        slices.Clone(requested),
		MaxPerRoom:           limit,
		ExtraMattressAllowed: policy.ExtraMattressAllowed,
	}
	if policy.ExtraMattressAllowed {
		alloc.ExtraMattressCount = full
	}
	return alloc, nil
}

// AllocateGuests packs total guests greedily and validates the result.
func AllocateGuests(total int, policy RoomPolicy) (RoomAllocation, error) {
	return AllocateRooms(PackGuests(total, policy.maxPerRoom()), policy)
}

// PackGuests fills rooms to maxPerRoom in order: 7, 3 → [3 3 1].
func PackGuests(total, maxPerRoom int) []int {
	if total <= 0 {
		return []int{}
	}
	if maxPerRoom < 1 {
		maxPerRoom = DefaultMaxPerRoom
	}
	rooms := make([]int, 0, (total+maxPerRoom-1)/maxPerRoom)
	for total > 0 {
		n := min(total, maxPerRoom)
		rooms = append(rooms, n)
		total -= n
	}
	return rooms
}

// IncrementRoomGuests adds a guest to room idx. A full last room overflows
// into a new room with one guest; any other full room is left as is.
func IncrementRoomGuests(rooms []int, idx, maxPerRoom int) []int {
	out := slices.Clone(rooms)
	if idx < 0 || idx >= len(out) {
		return out
	}
	if maxPerRoom < 1 {
		maxPerRoom = DefaultMaxPerRoom
	}
	switch {
	case out[idx] < maxPerRoom:
		out[idx]++
	case idx == len(out)-1:
		out = append(out, 1)
	}
	return out
}

// DecrementRoomGuests removes a guest from room idx. A room that empties is
// dropped unless it is the only one, which keeps one guest.
func DecrementRoomGuests(rooms []int, idx int) []int {
	out := slices.Clone(rooms)
	if idx < 0 || idx >= len(out) {
		return out
	}
	switch {
	case out[idx] > 1:
		out[idx]--
	case len(out) > 1:
		out = slices.Delete(out, idx, idx+1)
	default:
		out[idx] = 1
	}
	return out
}

// NormalizeRooms repairs a guest list from storage or a remote response:
// empty rooms are dropped and, if any room exceeds maxPerRoom, the guests
// are repacked. An empty result becomes a single room with one guest.
func NormalizeRooms(rooms []int, maxPerRoom int) []int {
	if maxPerRoom < 1 {
		maxPerRoom = DefaultMaxPerRoom
	}
	out := make([]int, 0, len(rooms))
	total, overfull := 0, false
	for _, g := range rooms {
		if g < 1 {
			continue
		}
		if g > maxPerRoom {
			overfull = true
		}
		total += g
		out = append(out, g)
	}
	if len(out) == 0 {
		return []int{1}
	}
	if overfull {
		return PackGuests(total, maxPerRoom)
	}
	return out
}
