package narrative_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/MrWong99/bestiary/internal/narrative"
)

func TestCollect(t *testing.T) {
	t.Parallel()

	in := strings.NewReader("  ate the elder's memories \nsalt mines\nto be remembered\nmimics children\nyou forget your name\n")
	var out bytes.Buffer

	got, err := narrative.Collect(in, &out)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	want := narrative.Answers{
		"ate the elder's memories", "salt mines", "to be remembered", "mimics children", "you forget your name",
	}
	if got != want {
		t.Errorf("answers = %q, want %q", got, want)
	}
	if got.Terror() != "you forget your name" || got.DarkSecret() != "ate the elder's memories" {
		t.Error("accessors disagree with positions")
	}
	for i, q := range narrative.Questions {
		if !strings.Contains(out.String(), q.Text) {
			t.Errorf("question %d not asked", i+1)
		}
	}
}

func TestCollect_ShortInput(t *testing.T) {
	t.Parallel()

	got, err := narrative.Collect(strings.NewReader("only one\n"), &bytes.Buffer{})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got[narrative.DarkSecret] != "only one" {
		t.Errorf("first answer = %q", got[narrative.DarkSecret])
	}
	for i := 1; i < narrative.Count; i++ {
		if got[i] != "" {
			t.Errorf("answer %d = %q, want empty", i, got[i])
		}
	}
}

func TestLoadFromReader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		want    []narrative.Answers
		wantErr bool
	}{
		{
			name: "single set",
			yaml: "dark_secret: a\nenvironment: b\nmotivation: c\ninteraction: d\nterror: e\n",
			want: []narrative.Answers{{"a", "b", "c", "d", "e"}},
		},
		{
			name: "partial set",
			yaml: "environment: swamp\n",
			want: []narrative.Answers{{"", "swamp", "", "", ""}},
		},
		{
			name: "monster list",
			yaml: "monsters:\n  - dark_secret: a\n  - terror: z\n",
			want: []narrative.Answers{{"a", "", "", "", ""}, {"", "", "", "", "z"}},
		},
		{name: "unknown key", yaml: "dark_secrets: typo\n", wantErr: true},
		{name: "both forms", yaml: "terror: x\nmonsters:\n  - terror: y\n", wantErr: true},
		{name: "empty document", yaml: "", wantErr: true},
		{name: "no answers", yaml: "monsters: []\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := narrative.LoadFromReader(strings.NewReader(tt.yaml))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadFromReader: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d sets, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("set %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSetRoundTrip(t *testing.T) {
	t.Parallel()

	a := narrative.Answers{"1", "2", "3", "4", "5"}
	if got := narrative.SetOf(a).Answers(); got != a {
		t.Errorf("round trip = %q, want %q", got, a)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	t.Parallel()

	if _, err := narrative.LoadFile("/nonexistent/answers.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
