package domain

import "github.com/google/uuid"

// DesktopDescriptor describes a virtual desktop at the moment it was queried.
// It is never persisted.
type DesktopDescriptor struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	IsCurrent bool      `json:"isCurrent"`
}

// Direction for adjacent desktop lookups, matching the native enum values
type Direction int

const (
	DirectionLeft  Direction = 3
	DirectionRight Direction = 4
)

func (d Direction) String() string {
	switch d {
	case DirectionLeft:
		return "left"
	case DirectionRight:
		return "right"
	default:
		return "unknown"
	}
}

// TempDesktopPrefix marks desktops created for a relocated window
const TempDesktopPrefix = "[MVD] "
