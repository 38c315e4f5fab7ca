package extract

import "testing"

func TestParseVTT(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name: "empty",
		},
		{
			name: "plain cues",
			content: `WEBVTT
Kind: captions
Language: en

00:00:00.000 --> 00:00:02.000
hello there

00:00:02.000 --> 00:00:04.000
general kenobi`,
			want: "hello there general kenobi",
		},
		{
			name: "rolling auto captions deduped",
			content: `WEBVTT

00:00:00.000 --> 00:00:02.000
hello there

00:00:02.000 --> 00:00:04.000
hello there

00:00:04.000 --> 00:00:06.000
again`,
			want: "hello there again",
		},
		{
			name: "styling and word timestamps stripped",
			content: `WEBVTT

00:00:00.000 --> 00:00:02.000
<c>hello</c><00:00:01.000> there

00:00:02.000 --> 00:00:04.000
NOTE internal comment
<b>bold</b> claim`,
			want: "hello there bold claim",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseVTT(tt.content); got != tt.want {
				t.Errorf("ParseVTT() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStripTags(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{line: "no tags", want: "no tags"},
		{line: "<c>styled</c>", want: "styled"},
		{line: "a<00:00:01.000>b", want: "ab"},
		{line: "unbalanced>", want: "unbalanced>"},
	}
	for _, tt := range tests {
		if got := stripTags(tt.line); got != tt.want {
			t.Errorf("stripTags(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}
