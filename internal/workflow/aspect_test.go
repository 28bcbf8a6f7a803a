package workflow

import "testing"

func TestResolveAspectRatio(t *testing.T) {
	tests := []struct {
		name   string
		width  int
		height int
		want   string
	}{
		{"portrait phone", 1080, 1920, "9:16"},
		{"square", 1024, 1024, "1:1"},
		{"landscape photo", 1200, 800, "3:2"},
		{"classic portrait", 600, 800, "3:4"},
		{"linkedin banner", 1584, 396, "21:9"},
		{"near portrait card", 820, 1024, "4:5"},
		{"zero width", 0, 1080, "1:1"},
		{"zero height", 1080, 0, "1:1"},
		{"negative", -5, 10, "1:1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveAspectRatio(tt.width, tt.height)
			if got != tt.want {
				t.Fatalf("ResolveAspectRatio(%d, %d) = %q, want %q", tt.width, tt.height, got, tt.want)
			}
		})
	}
}
