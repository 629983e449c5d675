package magic_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tailored-agentic-units/polyglot/magic"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		directives []magic.Directive
		residual   string
	}{
		{
			name:     "plain code",
			text:     "x <- 1\nprint(x)",
			residual: "x <- 1\nprint(x)",
		},
		{
			name:       "use then code",
			text:       "%use R\nrn <- rnorm(5)",
			directives: []magic.Directive{magic.UseKernel{Kernel: "R"}},
			residual:   "rn <- rnorm(5)",
		},
		{
			name: "use with qualifiers",
			text: "%use R2 -l R -c '#FF0000'",
			directives: []magic.Directive{
				magic.UseKernel{Kernel: "R2", Qualifiers: []string{"-l", "R", "-c", "#FF0000"}},
			},
		},
		{
			name: "last use listed last",
			text: "%use R\n%use Python3\nlen(rn)",
			directives: []magic.Directive{
				magic.UseKernel{Kernel: "R"},
				magic.UseKernel{Kernel: "Python3"},
			},
			residual: "len(rn)",
		},
		{
			name: "get expands names",
			text: "%get a b --from R\nlen(a)",
			directives: []magic.Directive{
				magic.GetVariable{Name: "a", From: "R"},
				magic.GetVariable{Name: "b", From: "R"},
			},
			residual: "len(a)",
		},
		{
			name:       "get short flag first",
			text:       "%get -f R rn",
			directives: []magic.Directive{magic.GetVariable{Name: "rn", From: "R"}},
		},
		{
			name:       "put",
			text:       "%put df --to Python3",
			directives: []magic.Directive{magic.PutVariable{Name: "df", To: "Python3"}},
		},
		{
			name: "preview positional and flag",
			text: "%preview a -n rn\nrn <- rnorm(5)",
			directives: []magic.Directive{
				magic.Preview{Names: []string{"a", "rn"}},
			},
			residual: "rn <- rnorm(5)",
		},
		{
			name:       "preview everything",
			text:       "%preview",
			directives: []magic.Directive{magic.Preview{}},
		},
		{
			name: "with inputs and outputs",
			text: "%with R -i x,y -o z\nz <- x + y",
			directives: []magic.Directive{
				magic.With{Kernel: "R", In: []string{"x", "y"}, Out: []string{"z"}},
			},
			residual: "z <- x + y",
		},
		{
			name:       "clear",
			text:       "clear",
			directives: []magic.Directive{magic.ClearHistory{}},
		},
		{
			name:       "header blanks and comments skipped",
			text:       "\n# switch\n%use R\n\nx <- 1\n\n",
			directives: []magic.Directive{magic.UseKernel{Kernel: "R"}},
			residual:   "x <- 1",
		},
		{
			name:       "unknown magic starts code",
			text:       "%use Python3\n%matplotlib inline\nplot(x)",
			directives: []magic.Directive{magic.UseKernel{Kernel: "Python3"}},
			residual:   "%matplotlib inline\nplot(x)",
		},
		{
			name:     "clear after code is code",
			text:     "x <- 1\nclear",
			residual: "x <- 1\nclear",
		},
		{
			name: "empty",
			text: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			directives, residual, err := magic.Parse(tt.text)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if diff := cmp.Diff(tt.directives, directives); diff != "" {
				t.Errorf("directives mismatch (-want +got):\n%s", diff)
			}
			if residual != tt.residual {
				t.Errorf("got residual %q, want %q", residual, tt.residual)
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"use without kernel", "%use"},
		{"use with only flags", "%use -l R"},
		{"get without from", "%get rn"},
		{"get without names", "%get --from R"},
		{"put without to", "%put rn"},
		{"unknown flag", "%get rn --form R"},
		{"unterminated quote", "%use 'R"},
		{"with without kernel", "%with -i x"},
		{"with extra operands", "%with R Python3"},
		{"directive after code", "x <- 1\n%use R"},
		{"directive after unknown magic", "%time\n%get x --from R"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := magic.Parse(tt.text)
			if !errors.Is(err, magic.ErrMalformedDirective) {
				t.Errorf("got %v, want ErrMalformedDirective", err)
			}
		})
	}
}

func TestParse_Deterministic(t *testing.T) {
	text := "%use R\n%get a b --from Python3\n%preview -n a\nsummary(a)"

	first, firstResidual, err := magic.Parse(text)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	for range 3 {
		again, residual, err := magic.Parse(text)
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		if diff := cmp.Diff(first, again); diff != "" || residual != firstResidual {
			t.Errorf("Parse not deterministic:\n%s", diff)
		}
	}
}
