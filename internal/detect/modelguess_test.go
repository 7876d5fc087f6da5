package detect

import "testing"

func TestGuessModel(t *testing.T) {
	cases := []struct {
		name    string
		text    string
		markers []string
		want    string
	}{
		{
			name:    "transitions plus stock phrase reads gpt-4",
			text:    "whatever text",
			markers: []string{"excessive_transitions:4", "ai_phrase:to summarize"},
			want:    "gpt-4",
		},
		{
			name: "conversational gentle tone reads claude",
			text: "Let's take a look together. Here's the thing about this approach: it scales.",
			want: "claude",
		},
		{
			name: "list heavy reads gemini",
			text: "Overview:\n- first point\n- second point\n1. numbered step\nDone.",
			want: "gemini",
		},
		{
			name: "open weight mention reads llama",
			text: "This open-source model runs locally on consumer hardware.",
			want: "llama",
		},
		{
			name: "nothing distinctive stays unknown",
			text: "Just a plain sentence about the weather today.",
			want: "unknown",
		},
		{
			name:    "transitions alone are not gpt-4",
			text:    "plain text",
			markers: []string{"excessive_transitions:4"},
			want:    "unknown",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := GuessModel(tc.text, tc.markers); got != tc.want {
				t.Errorf("GuessModel = %q, want %q", got, tc.want)
			}
		})
	}
}
