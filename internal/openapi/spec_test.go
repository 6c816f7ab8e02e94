package openapi

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
)

func TestGenerateCoversPublicEndpoints(t *testing.T) {
	doc := Generate()

	for _, path := range []string{"/quote", "/datasets", "/session", "/api-keys", "/api-keys/{keyID}", "/api-keys/{keyID}/usage"} {
		if doc.Paths.Value(path) == nil {
			t.Errorf("missing path %s", path)
		}
	}

	if doc.Paths.Value("/quote").Get == nil {
		t.Error("GET /quote missing")
	}
	if doc.Paths.Value("/datasets").Post == nil {
		t.Error("POST /datasets missing")
	}
	if doc.Components.SecuritySchemes["apiKey"] == nil {
		t.Error("apiKey security scheme missing")
	}
	if doc.Components.Schemas["PurchaseResult"] == nil {
		t.Error("PurchaseResult schema missing")
	}
}

func TestHandlerServesJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/openapi.json", nil)

	Handler()(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if doc["openapi"] != "3.1.0" {
		t.Errorf("openapi = %v", doc["openapi"])
	}
}
