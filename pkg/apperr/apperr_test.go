package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestCodeOf(t *testing.T) {
	if CodeOf(Validation("bad")) != CodeValidation {
		t.Fatalf("validation code lost")
	}
	if CodeOf(nil) != CodeUnknown {
		t.Fatalf("nil error should map to unknown")
	}
	if CodeOf(errors.New("plain")) != CodeUnknown {
		t.Fatalf("untyped error should map to unknown")
	}
}

func TestWrapPreservesCodeThroughChain(t *testing.T) {
	base := NotFound("missing")
	wrapped := fmt.Errorf("outer: %w", base)
	if !IsCode(wrapped, CodeNotFound) {
		t.Fatalf("code lost through fmt wrapping")
	}

	cause := errors.New("disk broke")
	w := Wrap(CodeTransient, "save failed", cause)
	if !errors.Is(w, cause) {
		t.Fatalf("wrapped cause not reachable via errors.Is")
	}
	if !IsCode(w, CodeTransient) {
		t.Fatalf("wrap lost its code")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validation("x"), http.StatusBadRequest},
		{Permission("x"), http.StatusForbidden},
		{NotFound("x"), http.StatusNotFound},
		{Transient("x"), http.StatusServiceUnavailable},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := HTTPStatus(c.err); got != c.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}
