package audit

import "testing"

func TestChangeSummary(t *testing.T) {
	tests := []struct {
		name     string
		previous map[string]any
		next     map[string]any
		want     string
	}{
		{
			name:     "no changes",
			previous: map[string]any{"name": "P", "priority": 10},
			next:     map[string]any{"name": "P", "priority": 10},
			want:     "no changes detected",
		},
		{
			name:     "single change",
			previous: map[string]any{"status": "DRAFT"},
			next:     map[string]any{"status": "SUBMITTED"},
			want:     "status",
		},
		{
			name:     "up to three listed",
			previous: map[string]any{"a": 1, "b": 1, "c": 1},
			next:     map[string]any{"a": 2, "b": 2, "c": 2},
			want:     "a, b, c",
		},
		{
			name:     "overflow collapses",
			previous: map[string]any{"a": 1, "b": 1, "c": 1, "d": 1, "e": 1},
			next:     map[string]any{"a": 2, "b": 2, "c": 2, "d": 2, "e": 2},
			want:     "a, b, c and 2 more",
		},
		{
			name:     "added and removed keys count",
			previous: map[string]any{"old": 1},
			next:     map[string]any{"new": 1},
			want:     "new, old",
		},
		{
			name:     "numeric representation changes ignored",
			previous: map[string]any{"priority": 10},
			next:     map[string]any{"priority": 10.0},
			want:     "no changes detected",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ChangeSummary(tt.previous, tt.next); got != tt.want {
				t.Errorf("ChangeSummary() = %q, want %q", got, tt.want)
			}
		})
	}
}
