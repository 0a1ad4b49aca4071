package logging

import "testing"

func TestNewProgressSampler(t *testing.T) {
	tests := []struct {
		name       string
		bucketSize float64
		wantSize   float64
	}{
		{"default bucket size for zero", 0, 5},
		{"default bucket size for negative", -1, 5},
		{"custom bucket size", 10, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewProgressSampler(tt.bucketSize)
			if s.bucketSize != tt.wantSize {
				t.Errorf("bucketSize = %v, want %v", s.bucketSize, tt.wantSize)
			}
			if s.lastBucket != -1 {
				t.Errorf("lastBucket = %d, want -1", s.lastBucket)
			}
		})
	}
}

func TestProgressSamplerNil(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(50, "input 0") {
		t.Error("nil sampler should always log")
	}
	s.Reset()
}

func TestProgressSamplerBuckets(t *testing.T) {
	s := NewProgressSampler(5)
	steps := []struct {
		percent float64
		subject string
		want    bool
	}{
		{0, "input 0", true},
		{1, "input 0", false},
		{4.9, "input 0", false},
		{5, "input 0", true},
		{7, "input 0", false},
		{23, "input 0", true},
		{150, "input 0", true},
		{100, "input 0", false},
		{0, "input 1", true},
		{-1, "input 1", false},
	}
	for i, step := range steps {
		if got := s.ShouldLog(step.percent, step.subject); got != step.want {
			t.Fatalf("step %d (%v, %q): got %v, want %v", i, step.percent, step.subject, got, step.want)
		}
	}
}

func TestProgressSamplerUnknownTotal(t *testing.T) {
	s := NewProgressSampler(5)
	if !s.ShouldLog(-1, "input 0") {
		t.Fatal("first event for a subject should log")
	}
	if s.ShouldLog(-1, "input 0") {
		t.Fatal("repeated unknown progress should be suppressed")
	}
	s.Reset()
	if !s.ShouldLog(-1, "input 0") {
		t.Fatal("reset should re-arm the subject")
	}
}
