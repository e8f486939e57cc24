package main

import (
	"bytes"
	"strings"
	"testing"
)

const handlerSource = `package api

// @Title: Get Health
// @Route: GET /api/health
// @Description: Returns server health status
// @Response: {"status": "ok"}
func (s *Service) HandleHealth() {}

// @Title: Half Documented
// @Response: nothing
func (s *Service) handleInternal() {}

// @Title: Submit Entry
// @Route: POST /api/entries
// @Response: State object
func (s *Service) HandleSubmit() {}
`

func TestParseEndpoints(t *testing.T) {
	eps, err := parseEndpoints(strings.NewReader(handlerSource))
	if err != nil {
		t.Fatalf("parseEndpoints: %v", err)
	}
	if len(eps) != 2 {
		t.Fatalf("expected 2 endpoints, got %d: %+v", len(eps), eps)
	}
	if eps[0].Route != "GET /api/health" || eps[0].Response != `{"status": "ok"}` {
		t.Errorf("unexpected first endpoint %+v", eps[0])
	}
	if eps[1].Title != "Submit Entry" || eps[1].Description != "" {
		t.Errorf("incomplete block leaked into the next one: %+v", eps[1])
	}
}

func TestWriteAsciiDoc(t *testing.T) {
	var buf bytes.Buffer
	err := writeAsciiDoc(&buf, []Endpoint{{
		Title:    "Get State",
		Route:    "GET /api/state",
		Response: "State object",
	}})
	if err != nil {
		t.Fatalf("writeAsciiDoc: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"= API Reference", "== Get State", "`GET /api/state`", "Response: `State object`"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in\n%s", want, out)
		}
	}
}

func TestRoutePath(t *testing.T) {
	if got := routePath("POST /api/entries"); got != "/api/entries" {
		t.Errorf("routePath = %q", got)
	}
}
