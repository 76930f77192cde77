package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(query string) Params {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/"+query, nil)
	rec := httptest.NewRecorder()
	return FromContext(e.NewContext(req, rec))
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", DefaultLimit, 0},
		{"?limit=50&offset=10", 50, 10},
		{"?limit=500", MaxLimit, 0},
		{"?limit=-1&offset=-5", DefaultLimit, 0},
		{"?limit=10&page=3", 10, 20},
		{"?limit=10&page=3&offset=5", 10, 5},
		{"?limit=abc", DefaultLimit, 0},
	}
	for _, tt := range tests {
		p := paramsFor(tt.query)
		if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
			t.Errorf("FromContext(%q) = %+v, want limit=%d offset=%d", tt.query, p, tt.wantLimit, tt.wantOffset)
		}
	}
}

func TestNewResponse(t *testing.T) {
	r := NewResponse([]string{"a", "b"}, 25, Params{Limit: 20, Offset: 0})
	if !r.HasMore {
		t.Error("expected has_more with 25 total and first page of 20")
	}
	r = NewResponse([]string{}, 25, Params{Limit: 20, Offset: 20})
	if r.HasMore {
		t.Error("expected no more results on last page")
	}
	if r.Total != 25 || r.Limit != 20 || r.Offset != 20 {
		t.Errorf("unexpected response %+v", r)
	}
}
