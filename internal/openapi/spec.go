// Package openapi generates the OpenAPI 3.1 document for the Harbor API.
package openapi

import (
	"encoding/json"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
)

// Generate builds the OpenAPI spec for the public endpoints.
func Generate() *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Harbor API",
			Description: "Scoped API keys bound to custodial wallets, priced access to tokenized datasets, and payload retrieval from content-addressed storage.",
			Version:     "1.0.0",
		},
		Servers: openapi3.Servers{
			{URL: "/"},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["apiKey"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type: "apiKey",
			In:   "header",
			Name: "X-API-Key",
		},
	}
	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
		},
	}

	doc.Components.Schemas["ErrorResponse"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"error": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type: &openapi3.Types{"object"},
						Properties: openapi3.Schemas{
							"code":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}},
							"message": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
							"context": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
						},
					},
				},
			},
		},
	}
	doc.Components.Schemas["Dataset"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"tokenId":        &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}},
				"name":           &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"description":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"contentHash":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"contentLocator": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"price":          &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Description: "price in the chain's smallest unit"}},
				"tags":           &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"array"}, Items: &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}}}},
			},
		},
	}
	doc.Components.Schemas["PurchaseResult"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"tokenId":         &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}},
				"alreadyOwned":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
				"purchased":       &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
				"transactionHash": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"payload": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type: &openapi3.Types{"object"},
						Properties: openapi3.Schemas{
							"kind":         &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Enum: []interface{}{"json", "csv", "spreadsheet", "binary"}}},
							"content_type": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
							"encoding":     &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
							"data":         &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
						},
					},
				},
				"error": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
			},
		},
	}

	doc.Paths = openapi3.NewPaths()
	addQuotePath(doc)
	addDatasetsPath(doc)
	addSessionPath(doc)
	addAPIKeyPaths(doc)
	return doc
}

func jsonResponse(description string, schemaRef string) *openapi3.ResponseRef {
	return &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &description,
			Content: openapi3.Content{
				"application/json": &openapi3.MediaType{
					Schema: &openapi3.SchemaRef{Ref: schemaRef},
				},
			},
		},
	}
}

func errorResponse(description string) *openapi3.ResponseRef {
	return jsonResponse(description, "#/components/schemas/ErrorResponse")
}

func addQuotePath(doc *openapi3.T) {
	op := openapi3.NewOperation()
	op.OperationID = "getQuote"
	op.Summary = "Request a priced quote for datasets matching a tag"
	op.Security = &openapi3.SecurityRequirements{{"apiKey": {}}}
	op.Parameters = openapi3.Parameters{
		{Value: &openapi3.Parameter{
			Name: "searchParam", In: "query", Required: true,
			Schema: &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
		}},
	}
	op.Responses = openapi3.NewResponses()
	ok := "Quoted datasets with a redemption hash"
	op.Responses.Set("200", &openapi3.ResponseRef{Value: &openapi3.Response{
		Description: &ok,
		Content: openapi3.Content{
			"application/json": &openapi3.MediaType{
				Schema: &openapi3.SchemaRef{Value: &openapi3.Schema{
					Type: &openapi3.Types{"object"},
					Properties: openapi3.Schemas{
						"success":   &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
						"datasets":  &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"array"}, Items: &openapi3.SchemaRef{Ref: "#/components/schemas/Dataset"}}},
						"quoteHash": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
					},
				}},
			},
		},
	}})
	op.Responses.Set("400", errorResponse("Missing searchParam"))
	op.Responses.Set("401", errorResponse("Missing or invalid API key"))
	op.Responses.Set("404", errorResponse("No datasets match the tag"))

	doc.Paths.Set("/quote", &openapi3.PathItem{Get: op})
}

func addDatasetsPath(doc *openapi3.T) {
	op := openapi3.NewOperation()
	op.OperationID = "redeemQuote"
	op.Summary = "Redeem a quote: purchase unowned datasets and fetch payloads"
	op.Security = &openapi3.SecurityRequirements{{"apiKey": {}}}
	op.RequestBody = &openapi3.RequestBodyRef{
		Value: &openapi3.RequestBody{
			Required: true,
			Content: openapi3.Content{
				"application/json": &openapi3.MediaType{
					Schema: &openapi3.SchemaRef{Value: &openapi3.Schema{
						Type:     &openapi3.Types{"object"},
						Required: []string{"tokenIds", "quoteHash"},
						Properties: openapi3.Schemas{
							"tokenIds":  &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"array"}, Items: &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}}}},
							"quoteHash": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
						},
					}},
				},
			},
		},
	}
	op.Responses = openapi3.NewResponses()
	ok := "Per-dataset redemption outcomes"
	op.Responses.Set("200", &openapi3.ResponseRef{Value: &openapi3.Response{
		Description: &ok,
		Content: openapi3.Content{
			"application/json": &openapi3.MediaType{
				Schema: &openapi3.SchemaRef{Value: &openapi3.Schema{
					Type: &openapi3.Types{"object"},
					Properties: openapi3.Schemas{
						"success":  &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
						"datasets": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"array"}, Items: &openapi3.SchemaRef{Ref: "#/components/schemas/PurchaseResult"}}},
					},
				}},
			},
		},
	}})
	op.Responses.Set("400", errorResponse("Expired quote, unquoted id, or insufficient balance"))
	op.Responses.Set("401", errorResponse("Missing or invalid API key"))
	op.Responses.Set("502", errorResponse("Ledger unavailable"))

	doc.Paths.Set("/datasets", &openapi3.PathItem{Post: op})
}

func addSessionPath(doc *openapi3.T) {
	op := openapi3.NewOperation()
	op.OperationID = "login"
	op.Summary = "Log in and obtain a bearer token"
	op.RequestBody = &openapi3.RequestBodyRef{
		Value: &openapi3.RequestBody{
			Required: true,
			Content: openapi3.Content{
				"application/json": &openapi3.MediaType{
					Schema: &openapi3.SchemaRef{Value: &openapi3.Schema{
						Type:     &openapi3.Types{"object"},
						Required: []string{"email", "password"},
						Properties: openapi3.Schemas{
							"email":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "email"}},
							"password": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
						},
					}},
				},
			},
		},
	}
	op.Responses = openapi3.NewResponses()
	ok := "Session token"
	op.Responses.Set("200", &openapi3.ResponseRef{Value: &openapi3.Response{Description: &ok}})
	op.Responses.Set("401", errorResponse("Invalid credentials"))

	doc.Paths.Set("/session", &openapi3.PathItem{Post: op})
}

func addAPIKeyPaths(doc *openapi3.T) {
	create := openapi3.NewOperation()
	create.OperationID = "createAPIKey"
	create.Summary = "Issue a new API key with a bound custodial wallet"
	create.Security = &openapi3.SecurityRequirements{{"bearerAuth": {}}}
	create.Responses = openapi3.NewResponses()
	created := "Plaintext key (shown once), id, permissions, and wallet public key"
	create.Responses.Set("201", &openapi3.ResponseRef{Value: &openapi3.Response{Description: &created}})
	create.Responses.Set("429", errorResponse("Issuance quota exhausted"))

	list := openapi3.NewOperation()
	list.OperationID = "listAPIKeys"
	list.Summary = "List the caller's API keys"
	list.Security = &openapi3.SecurityRequirements{{"bearerAuth": {}}}
	list.Responses = openapi3.NewResponses()
	listed := "API key records, raw keys omitted"
	list.Responses.Set("200", &openapi3.ResponseRef{Value: &openapi3.Response{Description: &listed}})

	doc.Paths.Set("/api-keys", &openapi3.PathItem{Post: create, Get: list})

	del := openapi3.NewOperation()
	del.OperationID = "deleteAPIKey"
	del.Summary = "Delete an API key and its wallet material"
	del.Security = &openapi3.SecurityRequirements{{"bearerAuth": {}}}
	del.Responses = openapi3.NewResponses()
	deleted := "Deleted"
	del.Responses.Set("204", &openapi3.ResponseRef{Value: &openapi3.Response{Description: &deleted}})
	del.Responses.Set("404", errorResponse("Not found or not owned by caller"))

	doc.Paths.Set("/api-keys/{keyID}", &openapi3.PathItem{
		Delete: del,
		Parameters: openapi3.Parameters{
			{Value: &openapi3.Parameter{
				Name: "keyID", In: "path", Required: true,
				Schema: &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}},
			}},
		},
	})

	usage := openapi3.NewOperation()
	usage.OperationID = "getAPIKeyUsage"
	usage.Summary = "Recent request records for one of the caller's keys"
	usage.Security = &openapi3.SecurityRequirements{{"bearerAuth": {}}}
	usage.Responses = openapi3.NewResponses()
	usageOK := "Usage records, newest first"
	usage.Responses.Set("200", &openapi3.ResponseRef{Value: &openapi3.Response{Description: &usageOK}})
	usage.Responses.Set("404", errorResponse("Not found or not owned by caller"))

	doc.Paths.Set("/api-keys/{keyID}/usage", &openapi3.PathItem{
		Get: usage,
		Parameters: openapi3.Parameters{
			{Value: &openapi3.Parameter{
				Name: "keyID", In: "path", Required: true,
				Schema: &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}},
			}},
		},
	})
}

// Handler serves the generated spec as JSON. The document is built once and
// reused across requests.
func Handler() http.HandlerFunc {
	doc := Generate()
	payload, err := json.Marshal(doc)
	return func(w http.ResponseWriter, r *http.Request) {
		if err != nil {
			http.Error(w, "spec generation failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(payload)
	}
}
