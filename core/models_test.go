package core

import (
	"strings"
	"testing"
)

func TestNormalizeKind(t *testing.T) {
	tests := []struct {
		name string
		kind string
		want string
	}{
		{name: "already normalized", kind: "product", want: "product"},
		{name: "upper case", kind: "Product", want: "product"},
		{name: "surrounding space", kind: "  service ", want: "service"},
		{name: "empty", kind: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeKind(tt.kind); got != tt.want {
				t.Errorf("NormalizeKind(%q) = %q, want %q", tt.kind, got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("é", 300)
	got := Truncate(long, MaxTitleLength)
	if n := len([]rune(got)); n != MaxTitleLength {
		t.Errorf("Truncate() kept %d runes, want %d", n, MaxTitleLength)
	}

	short := "Fresh tomatoes"
	if got := Truncate(short, MaxTitleLength); got != short {
		t.Errorf("Truncate() changed short string to %q", got)
	}
}

func TestDocument_TextForEmbedding(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
		want string
	}{
		{
			name: "explicit embedding text",
			doc:  Document{Title: "Tomatoes", Description: "Fresh", EmbeddingText: "Tomatoes vegetables Fresh"},
			want: "Tomatoes vegetables Fresh",
		},
		{
			name: "falls back to title and description",
			doc:  Document{Title: "Tomatoes", Description: "Fresh"},
			want: "Tomatoes Fresh",
		},
		{
			name: "whitespace embedding text ignored",
			doc:  Document{Title: "Tomatoes", EmbeddingText: "   "},
			want: "Tomatoes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.doc.TextForEmbedding(); got != tt.want {
				t.Errorf("TextForEmbedding() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSourceKey_String(t *testing.T) {
	entry := &IndexEntry{SourceKind: "product", SourceID: "42"}
	if got := entry.SourceKey().String(); got != "product:42" {
		t.Errorf("SourceKey().String() = %q", got)
	}
}

func TestJobState_Terminal(t *testing.T) {
	for _, s := range []JobState{JobCompleted, JobFailed, JobCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []JobState{JobPending, JobRunning} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
