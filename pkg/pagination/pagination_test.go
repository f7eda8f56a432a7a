package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(t *testing.T, query string) Params {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	rec := httptest.NewRecorder()
	return FromContext(e.NewContext(req, rec))
}

func TestFromContextDefaults(t *testing.T) {
	p := paramsFor(t, "")
	if p.Limit != DefaultLimit || p.Offset != 0 {
		t.Errorf("params = %+v, want defaults", p)
	}
}

func TestFromContextParsesValues(t *testing.T) {
	p := paramsFor(t, "limit=50&offset=120")
	if p.Limit != 50 || p.Offset != 120 {
		t.Errorf("params = %+v", p)
	}
}

func TestFromContextClampsLimit(t *testing.T) {
	if p := paramsFor(t, "limit=10000"); p.Limit != MaxLimit {
		t.Errorf("limit = %d, want clamped to %d", p.Limit, MaxLimit)
	}
	if p := paramsFor(t, "limit=-5"); p.Limit != DefaultLimit {
		t.Errorf("limit = %d, want default for negative input", p.Limit)
	}
	if p := paramsFor(t, "offset=-10"); p.Offset != 0 {
		t.Errorf("offset = %d, want 0 for negative input", p.Offset)
	}
}

func TestResponseHasMore(t *testing.T) {
	if r := NewResponse(nil, 100, 20, 0); !r.HasMore {
		t.Error("first page of 100 should have more")
	}
	if r := NewResponse(nil, 100, 20, 80); r.HasMore {
		t.Error("last page should not have more")
	}
	if r := NewResponse(nil, 10, 20, 0); r.HasMore {
		t.Error("single short page should not have more")
	}
}

func TestParamsHelpers(t *testing.T) {
	p := Params{Limit: 25, Offset: 50}
	if got := p.SQL(); got != "LIMIT 25 OFFSET 50" {
		t.Errorf("SQL() = %q", got)
	}
	if !p.HasNext(100) {
		t.Error("expected next page at 75 of 100")
	}
	if p.HasNext(75) {
		t.Error("no next page at exactly 75 of 75")
	}
	if p.NextOffset() != 75 {
		t.Errorf("next offset = %d, want 75", p.NextOffset())
	}
}
