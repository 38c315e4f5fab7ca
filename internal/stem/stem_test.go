package stem

import (
	"reflect"
	"testing"
)

func TestStemLine(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{value: "", want: ""},
		{value: "running", want: "run"},
		{value: "running pipelines, quickly!", want: "run pipelin quickli"},
		{value: "  padded  ", want: "pad"},
	}
	for _, tt := range tests {
		if got := StemLine(tt.value); got != tt.want {
			t.Errorf("StemLine(%q) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestStemLineWords(t *testing.T) {
	got := StemLineWords("a running demonstration of pipelines")
	want := []string{"run", "demonstr", "of", "pipelin"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("StemLineWords() = %v, want %v", got, want)
	}
}
