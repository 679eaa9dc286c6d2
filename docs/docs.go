// Package docs holds the swagger document served at /swagger/*any.
// Regenerate with `go generate ./cmd/autostock`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/healthz": {
            "get": {"tags": ["health"], "summary": "Health check", "responses": {"200": {"description": "OK"}}}
        },
        "/readyz": {
            "get": {"tags": ["health"], "summary": "Readiness check", "responses": {"200": {"description": "OK"}, "503": {"description": "Service Unavailable"}}}
        },
        "/api/v1/markets": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["markets"], "summary": "List markets with status", "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/markets/{market}/status": {
            "get": {
                "security": [{"BearerAuth": []}], "tags": ["markets"], "summary": "Market status",
                "parameters": [{"type": "string", "description": "market id (kr, us)", "name": "market", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/api/v1/markets/{market}/cycles/{direction}": {
            "post": {
                "security": [{"BearerAuth": []}], "tags": ["markets"], "summary": "Run a trading cycle now",
                "parameters": [
                    {"type": "string", "description": "market id", "name": "market", "in": "path", "required": true},
                    {"type": "string", "description": "buy or sell", "name": "direction", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "503": {"description": "Service Unavailable"}}
            }
        },
        "/api/v1/markets/{market}/orders": {
            "get": {
                "security": [{"BearerAuth": []}], "tags": ["orders"], "summary": "Orders currently monitored",
                "parameters": [{"type": "string", "description": "market id", "name": "market", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/markets/{market}/orders/history": {
            "get": {
                "security": [{"BearerAuth": []}], "tags": ["orders"], "summary": "Journaled terminal orders",
                "parameters": [
                    {"type": "string", "description": "market id", "name": "market", "in": "path", "required": true},
                    {"type": "string", "description": "symbol", "name": "symbol", "in": "query"},
                    {"type": "string", "description": "terminal state", "name": "status", "in": "query"},
                    {"type": "string", "description": "RFC 3339 time or date", "name": "since", "in": "query"},
                    {"type": "integer", "description": "page size", "name": "limit", "in": "query"},
                    {"type": "integer", "description": "offset", "name": "offset", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/markets/{market}/cooldowns": {
            "get": {
                "security": [{"BearerAuth": []}], "tags": ["cooldowns"], "summary": "Active stop-loss cooldowns",
                "parameters": [{"type": "string", "description": "market id", "name": "market", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/markets/{market}/cooldowns/{symbol}": {
            "delete": {
                "security": [{"BearerAuth": []}], "tags": ["cooldowns"], "summary": "Lift a cooldown by hand",
                "parameters": [
                    {"type": "string", "description": "market id", "name": "market", "in": "path", "required": true},
                    {"type": "string", "description": "symbol", "name": "symbol", "in": "path", "required": true},
                    {"type": "string", "description": "audit reason", "name": "reason", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/api/v1/stream/status": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["markets"], "summary": "Stream market status over a websocket", "responses": {"101": {"description": "Switching Protocols"}}}
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

var SwaggerInfo = &swag.Spec{
	Version:          "0.1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "autostock admin API",
	Description:      "Market status, manual cycles, orders and cooldown management.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
