package core

import (
	stderrors "errors"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestMapError_PreservesRichEnvelope(t *testing.T) {
	source := NewError("bad payload", goerrors.CategoryBadInput, http.StatusBadRequest, ErrorBadInput)
	mapped := MapError(source)
	if mapped.TextCode != ErrorBadInput || mapped.Code != http.StatusBadRequest {
		t.Fatalf("unexpected envelope %#v", mapped)
	}
}

func TestMapError_FillsDefaults(t *testing.T) {
	mapped := MapError(goerrors.New("provider down", goerrors.CategoryExternal))
	if mapped.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for external category, got %d", mapped.Code)
	}
	if mapped.TextCode != ErrorDispatchFailed {
		t.Fatalf("expected dispatch text code, got %q", mapped.TextCode)
	}

	if MapError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
	if MapError(stderrors.New("boom")) == nil {
		t.Fatalf("expected plain errors to be mapped")
	}
}

func TestWrapError_KeepsSource(t *testing.T) {
	sentinel := stderrors.New("timeout")
	wrapped := WrapError(sentinel, goerrors.CategoryExternal, "send failed", http.StatusBadGateway, ErrorDispatchFailed)
	if wrapped.Code != http.StatusBadGateway || wrapped.TextCode != ErrorDispatchFailed {
		t.Fatalf("unexpected wrapped envelope %#v", wrapped)
	}
	if nilSource := WrapError(nil, goerrors.CategoryInternal, "missing", http.StatusInternalServerError, ErrorInternal); nilSource == nil {
		t.Fatalf("expected envelope when source is nil")
	}
}
