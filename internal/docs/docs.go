// Package docs holds the OpenAPI document served by the HTTP transport's
// Swagger UI. Regenerate with: swag init -g internal/transport/http/http.go -o internal/docs
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
        "/generate": {
            "post": {
                "description": "Accepts a recorded topic and answers with a two-speaker tutoring dialogue rendered as one clip.\nThe body may be JSON (base64 audio or text), multipart form data (an \"audio\" file and/or a \"text\" field),\nplain text, or raw audio bytes with the matching Content-Type.",
                "consumes": ["application/json", "multipart/form-data", "text/plain", "audio/wav", "audio/webm"],
                "produces": ["application/json"],
                "tags": ["generate"],
                "summary": "Generate a Duo Mode dialogue",
                "parameters": [
                    {
                        "description": "Generate request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/message.GenerateRequest"}
                    },
                    {
                        "type": "boolean",
                        "description": "Inline the finished clip as base64",
                        "name": "include_audio",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {"description": "Finished dialogue", "schema": {"$ref": "#/definitions/message.Result"}},
                    "400": {"description": "Invalid request body", "schema": {"type": "string"}},
                    "422": {"description": "Topic could not be recognized or scripted", "schema": {"$ref": "#/definitions/message.Result"}},
                    "499": {"description": "Session cancelled", "schema": {"$ref": "#/definitions/message.Result"}},
                    "500": {"description": "Internal processing error", "schema": {"$ref": "#/definitions/message.Result"}},
                    "502": {"description": "Speech or synthesis provider failed", "schema": {"$ref": "#/definitions/message.Result"}}
                }
            }
        },
        "/sessions/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "Session history",
                "parameters": [
                    {"type": "string", "description": "Session ID", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "description": "Maximum events to return", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.sessionView"}},
                    "404": {"description": "Unknown session", "schema": {"type": "string"}}
                }
            }
        },
        "/sessions/{id}/audio": {
            "get": {
                "produces": ["audio/mpeg", "audio/wav"],
                "tags": ["sessions"],
                "summary": "Download a dialogue",
                "parameters": [
                    {"type": "string", "description": "Session ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "404": {"description": "No clip for this session", "schema": {"type": "string"}}
                }
            }
        }
    },
    "definitions": {
        "message.GenerateRequest": {
            "type": "object",
            "properties": {
                "audio": {"type": "string", "format": "byte"},
                "content_type": {"type": "string"},
                "include_audio": {"type": "boolean"},
                "text": {"type": "string"}
            }
        },
        "message.Turn": {
            "type": "object",
            "properties": {
                "line": {"type": "string"},
                "speaker": {"type": "string"}
            }
        },
        "message.Result": {
            "type": "object",
            "properties": {
                "audio": {"type": "string"},
                "content_type": {"type": "string"},
                "download_url": {"type": "string"},
                "drive_url": {"type": "string"},
                "duration": {"type": "integer"},
                "error": {"type": "string"},
                "error_kind": {"type": "string"},
                "file_name": {"type": "string"},
                "session_id": {"type": "string"},
                "stage": {"type": "string"},
                "topic": {"type": "string"},
                "turns": {"type": "array", "items": {"$ref": "#/definitions/message.Turn"}}
            }
        },
        "eventstore.Event": {
            "type": "object",
            "properties": {
                "created_at": {"type": "string"},
                "detail": {"type": "string"},
                "error_kind": {"type": "string"},
                "id": {"type": "integer"},
                "label": {"type": "string"},
                "session_id": {"type": "string"},
                "state": {"type": "string"}
            }
        },
        "eventstore.Session": {
            "type": "object",
            "properties": {
                "artifact_path": {"type": "string"},
                "artifact_url": {"type": "string"},
                "content_type": {"type": "string"},
                "created_at": {"type": "string"},
                "duration": {"type": "integer"},
                "error_kind": {"type": "string"},
                "error_message": {"type": "string"},
                "error_stage": {"type": "string"},
                "finished_at": {"type": "string"},
                "input_kind": {"type": "string"},
                "session_id": {"type": "string"},
                "status": {"type": "string"},
                "topic": {"type": "string"},
                "turns": {"type": "integer"}
            }
        },
        "http.sessionView": {
            "type": "object",
            "properties": {
                "events": {"type": "array", "items": {"$ref": "#/definitions/eventstore.Event"}},
                "session": {"$ref": "#/definitions/eventstore.Session"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "duomode API",
	Description:      "Turns a spoken topic into a two-speaker tutoring dialogue.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
