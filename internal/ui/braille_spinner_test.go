package ui

import "testing"

func TestSpinnerTicksOnlyWhileActive(t *testing.T) {
	s := NewBrailleSpinner("chat")
	if s.View() != "" {
		t.Fatal("inactive spinner should render nothing")
	}
	if cmd := s.Update(SpinnerTickMsg{ID: "chat", Gen: s.gen}); cmd != nil {
		t.Fatal("inactive spinner scheduled a tick")
	}

	if cmd := s.Start(); cmd == nil {
		t.Fatal("Start should schedule a tick")
	}
	if cmd := s.Start(); cmd != nil {
		t.Fatal("second Start should not schedule another tick")
	}

	first := s.Frame()
	if cmd := s.Update(SpinnerTickMsg{ID: "chat", Gen: s.gen}); cmd == nil {
		t.Fatal("tick should reschedule")
	}
	if s.Frame() == first {
		t.Fatal("frame did not advance")
	}

	if cmd := s.Update(SpinnerTickMsg{ID: "other", Gen: s.gen}); cmd != nil {
		t.Fatal("foreign tick handled")
	}

	s.Stop()
	if cmd := s.Update(SpinnerTickMsg{ID: "chat", Gen: s.gen}); cmd != nil || s.View() != "" {
		t.Fatal("stopped spinner still ticking")
	}
}

func TestSpinnerFramesWrap(t *testing.T) {
	s := NewBrailleSpinner("x")
	s.Start()
	for range len(brailleFrames) {
		s.Update(SpinnerTickMsg{ID: "x", Gen: s.gen})
	}
	if s.Frame() != brailleFrames[0] {
		t.Fatalf("frame = %q, want wrap to %q", s.Frame(), brailleFrames[0])
	}
}

func TestSpinnerDropsTicksFromEarlierRun(t *testing.T) {
	s := NewBrailleSpinner("chat")
	s.Start()
	old := s.gen
	s.Stop()
	s.Start()

	if cmd := s.Update(SpinnerTickMsg{ID: "chat", Gen: old}); cmd != nil {
		t.Fatal("tick from the earlier run was accepted")
	}
	if cmd := s.Update(SpinnerTickMsg{ID: "chat", Gen: s.gen}); cmd == nil {
		t.Fatal("current tick was dropped")
	}
}
