package matching

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"Jane_Doe-2024.mp4", []string{"jane", "doe", "2024", "mp", "4"}},
		{"JaneDoe2024", []string{"jane", "doe", "2024"}},
		{"  Zoë   Lane ", []string{"zoe", "lane"}},
		{"Crème Brûlée", []string{"creme", "brulee"}},
		{"DVDRip", []string{"dvdrip"}},
		{"J. Doe", []string{"j", "doe"}},
		{"---", nil},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Tokenize(tt.input); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokenize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("/media/Studio X/Jane_Doe.mkv"); got != "media studio x jane doe mkv" {
		t.Errorf("Normalize() = %q", got)
	}
}

func TestStripDiacritics(t *testing.T) {
	if got := StripDiacritics("Zoë Ångström"); got != "Zoe Angstrom" {
		t.Errorf("StripDiacritics() = %q", got)
	}
}
