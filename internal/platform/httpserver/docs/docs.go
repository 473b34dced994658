// Package docs serves the OpenAPI description of the voting API at
// /swagger/doc.json. Regenerate with `swag init -g internal/platform/httpserver/server.go`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/voting/v1/identities": {
            "post": {
                "tags": ["identities"],
                "summary": "Register a verified identity",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterIdentityRequest"}}
                ],
                "responses": {
                    "200": {"description": "known voter", "schema": {"$ref": "#/definitions/RegisterIdentityResponse"}},
                    "201": {"description": "voter created", "schema": {"$ref": "#/definitions/RegisterIdentityResponse"}},
                    "409": {"description": "email registered with another role", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/api/voting/v1/rounds/current": {
            "get": {
                "tags": ["rounds"],
                "summary": "Current round of a track",
                "produces": ["application/json"],
                "parameters": [
                    {"in": "query", "name": "kind", "type": "string", "enum": ["scoring", "audience"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/CurrentRoundResponse"}}
                }
            }
        },
        "/api/voting/v1/rounds/{round}/judge-votes": {
            "post": {
                "tags": ["votes"],
                "summary": "Submit a judge or leader score",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "header", "name": "X-Voter-Id", "type": "string", "required": true},
                    {"in": "path", "name": "round", "type": "integer", "required": true},
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitJudgeVoteRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/JudgeVoteResponse"}},
                    "403": {"description": "role or voter not eligible", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "409": {"description": "round not open or duplicate vote", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "422": {"description": "score out of range or off step", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/api/voting/v1/rounds/{round}/audience-votes": {
            "post": {
                "tags": ["votes"],
                "summary": "Cast an audience ballot",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "header", "name": "X-Voter-Id", "type": "string", "required": true},
                    {"in": "path", "name": "round", "type": "integer", "required": true},
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitAudienceVoteRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "round not open or ballot already cast", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/api/voting/v1/rounds/{round}/audience-results": {
            "get": {
                "tags": ["audience"],
                "summary": "Audience tally for a round",
                "produces": ["application/json"],
                "parameters": [
                    {"in": "path", "name": "round", "type": "integer", "required": true},
                    {"in": "query", "name": "lang", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/voting/v1/leaderboard": {
            "get": {
                "tags": ["leaderboard"],
                "summary": "Ranked leaderboard",
                "produces": ["application/json"],
                "parameters": [
                    {"in": "query", "name": "live", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/voting/v1/admin/lock": {
            "post": {
                "tags": ["admin"],
                "summary": "Lock the scoring round",
                "parameters": [
                    {"in": "header", "name": "X-Voter-Id", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "403": {"description": "admin required", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/api/voting/v1/admin/advance": {
            "post": {
                "tags": ["admin"],
                "summary": "Close the scoring round and open the next one",
                "parameters": [
                    {"in": "header", "name": "X-Voter-Id", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "403": {"description": "admin required", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "RegisterIdentityRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "role": {"type": "string", "enum": ["admin", "judge", "leader", "audience"]},
                "name": {"type": "string"}
            }
        },
        "RegisterIdentityResponse": {
            "type": "object",
            "properties": {
                "created": {"type": "boolean"},
                "voter": {"type": "object"}
            }
        },
        "CurrentRoundResponse": {
            "type": "object",
            "properties": {
                "kind": {"type": "string"},
                "total_rounds": {"type": "integer"},
                "finished": {"type": "boolean"},
                "round": {"type": "object"}
            }
        },
        "SubmitJudgeVoteRequest": {
            "type": "object",
            "properties": {
                "participant_id": {"type": "string"},
                "score": {"type": "number"}
            }
        },
        "SubmitAudienceVoteRequest": {
            "type": "object",
            "properties": {
                "participant_id": {"type": "string"}
            }
        },
        "JudgeVoteResponse": {
            "type": "object",
            "properties": {
                "vote_id": {"type": "string"},
                "round_index": {"type": "integer"},
                "participant_id": {"type": "string"},
                "score": {"type": "number"}
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
	Title:            "VoteVerse voting API",
	Description:      "Live contest voting, tabulation and round control.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
