package sourceform

import (
	"errors"

	"sourcectl/internal/domain"
)

// IconPhase is the state of the icon for the current edit cycle.
type IconPhase int

const (
	IconNone IconPhase = iota
	IconExisting
	IconMarkedForClear
	IconNewFile
)

func (p IconPhase) String() string {
	switch p {
	case IconExisting:
		return "existing"
	case IconMarkedForClear:
		return "marked-for-clear"
	case IconNewFile:
		return "new-file"
	}
	return "none"
}

var (
	// ErrIconConflict is returned when a new file and the clear flag are
	// both requested in the same cycle.
	ErrIconConflict = errors.New("icon: cannot upload a new icon and clear it at once")
	// ErrNoIconToClear is returned when clearing while no icon is set.
	ErrNoIconToClear = errors.New("icon: no icon to clear")
)

// IconState tracks the icon of the source being edited. It is reset by
// loading an instance and decided once per submit.
type IconState struct {
	phase   IconPhase
	current string
	hadIcon bool
	file    *domain.IconUpload
}

// Reset starts a new cycle for a source whose stored icon is current.
func (s *IconState) Reset(current string) {
	*s = IconState{current: current, hadIcon: current != ""}
	if s.hadIcon {
		s.phase = IconExisting
	}
}

// Phase returns the current phase.
func (s *IconState) Phase() IconPhase { return s.phase }

// Current returns the stored icon reference, if any.
func (s *IconState) Current() string { return s.current }

// Clear reports whether the clear flag is set.
func (s *IconState) Clear() bool { return s.phase == IconMarkedForClear }

// File returns the chosen upload, if any.
func (s *IconState) File() *domain.IconUpload { return s.file }

// SetClear toggles the clear flag.
func (s *IconState) SetClear(clear bool) error {
	if !clear {
		if s.phase == IconMarkedForClear {
			s.phase = IconExisting
		}
		return nil
	}
	switch s.phase {
	case IconNewFile:
		return ErrIconConflict
	case IconNone:
		return ErrNoIconToClear
	}
	s.phase = IconMarkedForClear
	return nil
}

// ChooseFile selects a new icon to upload. A nil file deselects it.
func (s *IconState) ChooseFile(file *domain.IconUpload) error {
	if file == nil {
		if s.phase == IconNewFile {
			s.file = nil
			s.phase = IconNone
			if s.hadIcon {
				s.phase = IconExisting
			}
		}
		return nil
	}
	if s.phase == IconMarkedForClear {
		return ErrIconConflict
	}
	s.file = file
	s.phase = IconNewFile
	return nil
}
