package noteid

import (
	"strings"
	"testing"
)

func TestNew_Shape(t *testing.T) {
	id, err := New("tasks")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !strings.HasPrefix(id, "tasks-") {
		t.Errorf("id = %q, want tasks- prefix", id)
	}
	if len(id) != len("tasks-")+4 {
		t.Errorf("id = %q, want 4-char suffix", id)
	}
	if !Valid(id) {
		t.Errorf("generated id %q should be valid", id)
	}
}

func TestNew_SuffixAlphabet(t *testing.T) {
	for i := 0; i < 50; i++ {
		id, err := New("note")
		if err != nil {
			t.Fatal(err)
		}
		suffix := strings.TrimPrefix(id, "note-")
		for _, c := range suffix {
			if !strings.ContainsRune(alphabet, c) {
				t.Fatalf("id %q contains %q outside the alphabet", id, c)
			}
		}
		if strings.ContainsRune(suffix, 'P') {
			t.Fatalf("id %q contains excluded letter P", id)
		}
	}
}

func TestValid(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{"tasks-27Q4", true},
		{"note-0AZ9", true},
		{"my_mod-ABCD", true},
		{"tasks-27P4", false}, // P excluded
		{"tasks-abcd", false}, // lowercase suffix
		{"tasks-123", false},  // short suffix
		{"tasks-12345", false},
		{"Tasks-27Q4", false}, // uppercase prefix
		{"-ABCD", false},      // empty prefix
		{"tasks", false},
		{"", false},
	}
	for _, c := range cases {
		if got := Valid(c.id); got != c.want {
			t.Errorf("Valid(%q) = %v, want %v", c.id, got, c.want)
		}
	}
}
