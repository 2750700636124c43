package widgets

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestToggle(t *testing.T) {
	t.Run("should pin an unpinned widget at the end", func(t *testing.T) {
		got, err := Toggle([]string{"odds-table"}, "speed-map")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if diff := cmp.Diff([]string{"odds-table", "speed-map"}, got); diff != "" {
			t.Fatalf("Toggle() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should unpin a pinned widget", func(t *testing.T) {
		got, _ := Toggle([]string{"odds-table", "speed-map", "news-feed"}, "speed-map")
		if diff := cmp.Diff([]string{"odds-table", "news-feed"}, got); diff != "" {
			t.Fatalf("Toggle() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should restore the original list when toggled twice", func(t *testing.T) {
		original := []string{"market-movers", "form-guide"}
		once, _ := Toggle(original, "track-bias")
		twice, _ := Toggle(once, "track-bias")
		if diff := cmp.Diff(original, twice); diff != "" {
			t.Fatalf("Toggle() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should not modify the input", func(t *testing.T) {
		original := []string{"odds-table", "speed-map"}
		Toggle(original, "odds-table")
		if diff := cmp.Diff([]string{"odds-table", "speed-map"}, original); diff != "" {
			t.Fatalf("Toggle() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should reject unknown widgets", func(t *testing.T) {
		_, err := Toggle(nil, "weather")
		if !errors.Is(err, ErrUnknownWidget) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", ErrUnknownWidget, err)
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		pinned  []string
		wantErr bool
	}{
		{name: "should accept an empty list", pinned: nil},
		{name: "should accept known widgets", pinned: []string{"odds-table", "news-feed"}},
		{name: "should reject unknown widgets", pinned: []string{"weather"}, wantErr: true},
		{name: "should reject duplicates", pinned: []string{"odds-table", "odds-table"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.pinned)
			if (err != nil) != tt.wantErr {
				t.Fatalf("\nwanted:\n%v\ngot:\n%v", tt.wantErr, err)
			}
		})
	}
}
