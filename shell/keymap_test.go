package shell

import "testing"

func TestEncodeControlLetter(t *testing.T) {
	got := Encode(Event{Char: 'a', Ctrl: true})
	if len(got) != 1 || got[0] != 0x01 {
		t.Fatalf("Ctrl-A = %v, want [0x01]", got)
	}
}

func TestEncodeAlt(t *testing.T) {
	got := Encode(Event{Char: 'x', Alt: true})
	want := "\x1bx"
	if string(got) != want {
		t.Fatalf("Alt-x = %q, want %q", got, want)
	}
}

func TestEncodeNamedKeys(t *testing.T) {
	cases := map[Key]string{
		KeyEnter:     "\x0d",
		KeyBackspace: "\x7f",
		KeyUp:        "\x1b[A",
		KeyPgDn:      "\x1b[6~",
		KeyF5:        "\x1b[15~",
	}
	for k, want := range cases {
		if got := string(Encode(Event{Key: k})); got != want {
			t.Errorf("key %v = %q, want %q", k, got, want)
		}
	}
}

func TestEncodePrintable(t *testing.T) {
	got := Encode(Event{Char: 'q'})
	if string(got) != "q" {
		t.Fatalf("printable q = %q, want %q", got, "q")
	}
}
