package sourceform

import (
	"errors"
	"testing"

	"sourcectl/internal/domain"
)

func TestIconState_Transitions(t *testing.T) {
	var s IconState
	s.Reset("")
	if s.Phase() != IconNone {
		t.Fatalf("phase = %v", s.Phase())
	}
	if err := s.SetClear(true); !errors.Is(err, ErrNoIconToClear) {
		t.Errorf("clear without icon: %v", err)
	}

	s.Reset("/media/a.png")
	if s.Phase() != IconExisting || s.Current() != "/media/a.png" {
		t.Fatalf("phase = %v current = %q", s.Phase(), s.Current())
	}
	if err := s.SetClear(true); err != nil {
		t.Fatalf("SetClear: %v", err)
	}
	if !s.Clear() || s.Phase() != IconMarkedForClear {
		t.Errorf("phase = %v", s.Phase())
	}
	if err := s.ChooseFile(&domain.IconUpload{Filename: "b.png"}); !errors.Is(err, ErrIconConflict) {
		t.Errorf("file while clearing: %v", err)
	}
	if err := s.SetClear(false); err != nil || s.Phase() != IconExisting {
		t.Errorf("unset clear: %v, phase %v", err, s.Phase())
	}
}

func TestIconState_NewFileExcludesClear(t *testing.T) {
	var s IconState
	s.Reset("/media/a.png")
	file := &domain.IconUpload{Filename: "b.png", Data: []byte{1}}
	if err := s.ChooseFile(file); err != nil {
		t.Fatalf("ChooseFile: %v", err)
	}
	if s.Phase() != IconNewFile || s.File() != file {
		t.Errorf("phase = %v", s.Phase())
	}
	if err := s.SetClear(true); !errors.Is(err, ErrIconConflict) {
		t.Errorf("clear while uploading: %v", err)
	}
	if err := s.ChooseFile(nil); err != nil || s.Phase() != IconExisting || s.File() != nil {
		t.Errorf("deselect: %v, phase %v", err, s.Phase())
	}
}

func TestIconPhase_String(t *testing.T) {
	for p, want := range map[IconPhase]string{
		IconNone:           "none",
		IconExisting:       "existing",
		IconMarkedForClear: "marked-for-clear",
		IconNewFile:        "new-file",
	} {
		if p.String() != want {
			t.Errorf("%d.String() = %q, want %q", p, p.String(), want)
		}
	}
}
