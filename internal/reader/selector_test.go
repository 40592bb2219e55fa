package reader

import (
	"errors"
	"testing"

	"github.com/nvandessel/actprobe/internal/activations"
)

func intp(v int) *int { return &v }

func TestParseSelector(t *testing.T) {
	cx0 := activations.Identity{Layer: 0, Name: "cx"}

	tests := []struct {
		input string
		want  Selector
	}{
		{"8", Pos(8)},
		{"-1", Pos(-1)},
		{"8:", SpanOf(Position, Span{Start: intp(8), Step: 1})},
		{":20/all", SpanOf(Raw, Span{Stop: intp(20), Step: 1})},
		{"[0,4,6]/key", Keys(0, 4, 6)},
		{"[ 1 , 2 ]", Pos(1, 2)},
		{"8@cx0", Pos(8).On(cx0)},
		{"2:10:3/all@cx0", SpanOf(Raw, Span{Start: intp(2), Stop: intp(10), Step: 3}).On(cx0)},
		{"5/pos", Pos(5)},
		{"::2/key", SpanOf(Key, Span{Step: 2})},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSelector(tt.input)
			if err != nil {
				t.Fatalf("ParseSelector(%q) failed: %v", tt.input, err)
			}
			if got.String() != tt.want.String() {
				t.Errorf("ParseSelector(%q) = %s, want %s", tt.input, got, tt.want)
			}
			if got.Mode != tt.want.Mode {
				t.Errorf("ParseSelector(%q) mode = %v, want %v", tt.input, got.Mode, tt.want.Mode)
			}
			if (got.Identity == nil) != (tt.want.Identity == nil) {
				t.Errorf("ParseSelector(%q) identity = %v, want %v", tt.input, got.Identity, tt.want.Identity)
			}
		})
	}
}

func TestParseSelectorErrors(t *testing.T) {
	for _, input := range []string{
		"",
		"abc",
		"1/sideways",
		"[1,x]",
		"1:2:3:4",
		"a:2",
		"0:5:0",
		"3@hx",
	} {
		t.Run(input, func(t *testing.T) {
			if _, err := ParseSelector(input); !errors.Is(err, ErrInvalidSelector) {
				t.Errorf("ParseSelector(%q) error = %v, want ErrInvalidSelector", input, err)
			}
		})
	}
}

func TestSelectorStringRoundTrip(t *testing.T) {
	sels := []Selector{
		Pos(3),
		Keys(0, 4, 6),
		Rows(1, 2),
		SpanOf(Key, Between(2, 9)),
		SpanOf(Position, From(4)),
		SpanOf(Raw, Upto(20)),
		Keys(1).On(activations.Identity{Layer: 2, Name: "hx"}),
	}

	for _, sel := range sels {
		t.Run(sel.String(), func(t *testing.T) {
			back, err := ParseSelector(sel.String())
			if err != nil {
				t.Fatalf("ParseSelector(%q) failed: %v", sel.String(), err)
			}
			if back.String() != sel.String() {
				t.Errorf("round trip = %q, want %q", back.String(), sel.String())
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input string
		want  Mode
	}{
		{"pos", Position},
		{"", Position},
		{"key", Key},
		{"all", Raw},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.input)
		if err != nil {
			t.Fatalf("ParseMode(%q) failed: %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if tt.input != "" && got.String() != tt.input {
			t.Errorf("%v.String() = %q, want %q", got, got.String(), tt.input)
		}
	}
}
