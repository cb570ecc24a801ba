package httputil

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestReadSnippetEmpty(t *testing.T) {
	got := ReadSnippet(strings.NewReader(""))
	if got != "(empty body)" {
		t.Errorf("got %q, want %q", got, "(empty body)")
	}
}

func TestReadSnippetShort(t *testing.T) {
	got := ReadSnippet(strings.NewReader("hello"))
	if got != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}
}

func TestReadSnippetTruncates(t *testing.T) {
	long := strings.Repeat("x", 300)
	got := ReadSnippet(strings.NewReader(long))
	if !strings.HasSuffix(got, "...") {
		t.Error("expected trailing ellipsis for long input")
	}
	if len(got) != 203 { // 200 bytes + "..."
		t.Errorf("got length %d, want 203", len(got))
	}
}

func TestCheckStatus(t *testing.T) {
	tests := []struct {
		code    int
		body    string
		wantErr bool
	}{
		{200, "", false},
		{204, "", false},
		{299, "", false},
		{301, "moved", true},
		{404, "not found", true},
		{500, "", true},
	}
	for _, tt := range tests {
		resp := &http.Response{StatusCode: tt.code, Body: io.NopCloser(strings.NewReader(tt.body))}
		err := CheckStatus(resp, "webhook")
		if (err != nil) != tt.wantErr {
			t.Errorf("CheckStatus(%d) err = %v, wantErr %v", tt.code, err, tt.wantErr)
			continue
		}
		if err != nil && !strings.HasPrefix(err.Error(), fmt.Sprintf("webhook returned %d", tt.code)) {
			t.Errorf("CheckStatus(%d) message = %q", tt.code, err)
		}
	}
}
