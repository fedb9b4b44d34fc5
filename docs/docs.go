// Package docs holds the OpenAPI document served at /swagger/doc.json.
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
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "paths": {
        "/sessions": {
            "post": {
                "summary": "Create a session",
                "parameters": [{"in": "body", "name": "body", "schema": {"$ref": "#/definitions/handler.CreateSessionRequest"}}],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/model.CreateSessionResponse"}}}
            }
        },
        "/sessions/{pin}": {
            "get": {
                "summary": "Get a session snapshot",
                "parameters": [{"$ref": "#/parameters/pin"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.Session"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/error"}}
                }
            }
        },
        "/sessions/{pin}/players": {
            "get": {
                "summary": "Ranked players and leaderboard",
                "parameters": [{"$ref": "#/parameters/pin"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/service.PlayersPayload"}}}
            }
        },
        "/sessions/{pin}/leaderboard": {
            "get": {
                "summary": "Ranked leaderboard entries",
                "parameters": [{"$ref": "#/parameters/pin"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/model.LeaderboardEntry"}}},
                    "404": {"description": "Session not found", "schema": {"$ref": "#/definitions/error"}}
                }
            }
        },
        "/sessions/{pin}/join": {
            "post": {
                "summary": "Join a session",
                "parameters": [
                    {"$ref": "#/parameters/pin"},
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/handler.JoinRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/model.PlayerJoinResponse"}},
                    "400": {"description": "Invalid name", "schema": {"$ref": "#/definitions/error"}},
                    "409": {"description": "Session ended", "schema": {"$ref": "#/definitions/error"}}
                }
            }
        },
        "/sessions/{pin}/qr": {
            "get": {
                "summary": "Join link as a PNG QR code",
                "produces": ["image/png"],
                "parameters": [{"$ref": "#/parameters/pin"}],
                "responses": {"200": {"description": "PNG image"}}
            }
        },
        "/sessions/{pin}/buzz": {
            "post": {
                "summary": "Attempt to take the round",
                "security": [{"BearerAuth": []}],
                "parameters": [{"$ref": "#/parameters/pin"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.BuzzResponse"}},
                    "503": {"description": "Not recorded", "schema": {"$ref": "#/definitions/model.BuzzResponse"}}
                }
            }
        },
        "/sessions/{pin}/tracks": {"post": {"summary": "Replace the playlist and start it", "security": [{"BearerAuth": []}], "parameters": [{"$ref": "#/parameters/pin"}, {"$ref": "#/parameters/tracks"}], "responses": {"200": {"$ref": "#/responses/session"}}}},
        "/sessions/{pin}/queue": {"post": {"summary": "Append tracks to the playlist", "security": [{"BearerAuth": []}], "parameters": [{"$ref": "#/parameters/pin"}, {"$ref": "#/parameters/tracks"}], "responses": {"200": {"$ref": "#/responses/session"}}}},
        "/sessions/{pin}/trending": {"post": {"summary": "Play a random trending track", "security": [{"BearerAuth": []}], "parameters": [{"$ref": "#/parameters/pin"}], "responses": {"200": {"$ref": "#/responses/session"}}}},
        "/sessions/{pin}/pause": {"post": {"summary": "Toggle pause", "security": [{"BearerAuth": []}], "parameters": [{"$ref": "#/parameters/pin"}], "responses": {"200": {"$ref": "#/responses/session"}}}},
        "/sessions/{pin}/advance": {"post": {"summary": "Next track", "security": [{"BearerAuth": []}], "parameters": [{"$ref": "#/parameters/pin"}], "responses": {"200": {"$ref": "#/responses/session"}}}},
        "/sessions/{pin}/end": {"post": {"summary": "End the session", "security": [{"BearerAuth": []}], "parameters": [{"$ref": "#/parameters/pin"}], "responses": {"200": {"$ref": "#/responses/session"}}}},
        "/sessions/{pin}/correct": {"post": {"summary": "Award the buzzer holder", "security": [{"BearerAuth": []}], "parameters": [{"$ref": "#/parameters/pin"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.RoundResponse"}}}}},
        "/sessions/{pin}/incorrect": {"post": {"summary": "Reject the buzzer holder", "security": [{"BearerAuth": []}], "parameters": [{"$ref": "#/parameters/pin"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.RoundResponse"}}}}},
        "/tracks/search": {
            "get": {
                "summary": "Search tracks or list trending ones",
                "parameters": [
                    {"in": "query", "name": "query", "type": "string"},
                    {"in": "query", "name": "trending", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.SearchResponse"}},
                    "400": {"description": "Missing query", "schema": {"$ref": "#/definitions/handler.SearchResponse"}},
                    "502": {"description": "Source failed", "schema": {"$ref": "#/definitions/handler.SearchResponse"}}
                }
            }
        }
    },
    "parameters": {
        "pin": {"in": "path", "name": "pin", "required": true, "type": "string"},
        "tracks": {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/handler.TracksRequest"}}
    },
    "responses": {
        "session": {"description": "Committed session", "schema": {"$ref": "#/definitions/model.Session"}}
    },
    "definitions": {
        "error": {"type": "object", "properties": {"error": {"type": "string"}}},
        "model.Track": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "externalMediaId": {"type": "string"},
                "title": {"type": "string"},
                "artist": {"type": "string"},
                "thumbnailRef": {"type": "string"},
                "durationLabel": {"type": "string"}
            }
        },
        "model.Session": {
            "type": "object",
            "properties": {
                "pin": {"type": "string"},
                "state": {"type": "string", "enum": ["waiting", "playing", "paused", "ended"]},
                "currentTrack": {"$ref": "#/definitions/model.Track"},
                "currentTrackIndex": {"type": "integer"},
                "playlist": {"type": "array", "items": {"$ref": "#/definitions/model.Track"}},
                "activeBuzzer": {"type": "string"},
                "buzzerLockedAt": {"type": "string", "format": "date-time"},
                "createdAt": {"type": "string", "format": "date-time"},
                "version": {"type": "integer"}
            }
        },
        "model.Player": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "score": {"type": "integer"},
                "joinedAt": {"type": "string", "format": "date-time"}
            }
        },
        "model.LeaderboardEntry": {
            "type": "object",
            "properties": {
                "rank": {"type": "integer"},
                "playerId": {"type": "string"},
                "name": {"type": "string"},
                "score": {"type": "integer"}
            }
        },
        "model.CreateSessionResponse": {
            "type": "object",
            "properties": {
                "pin": {"type": "string"},
                "hostToken": {"type": "string"},
                "session": {"$ref": "#/definitions/model.Session"}
            }
        },
        "model.PlayerJoinResponse": {
            "type": "object",
            "properties": {
                "playerId": {"type": "string"},
                "token": {"type": "string"},
                "session": {"$ref": "#/definitions/model.Session"}
            }
        },
        "model.BuzzResponse": {
            "type": "object",
            "properties": {"won": {"type": "boolean"}, "error": {"type": "string"}}
        },
        "service.PlayersPayload": {
            "type": "object",
            "properties": {
                "players": {"type": "array", "items": {"$ref": "#/definitions/model.Player"}},
                "leaderboard": {"type": "array", "items": {"$ref": "#/definitions/model.LeaderboardEntry"}}
            }
        },
        "handler.CreateSessionRequest": {
            "type": "object",
            "properties": {
                "playlist": {"type": "array", "items": {"$ref": "#/definitions/model.Track"}},
                "preset": {"type": "boolean"}
            }
        },
        "handler.JoinRequest": {"type": "object", "properties": {"name": {"type": "string"}}},
        "handler.TracksRequest": {
            "type": "object",
            "properties": {"tracks": {"type": "array", "items": {"$ref": "#/definitions/model.Track"}}}
        },
        "handler.RoundResponse": {
            "type": "object",
            "properties": {"correct": {"type": "boolean"}, "player": {"$ref": "#/definitions/model.Player"}}
        },
        "handler.SearchResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "results": {"type": "array", "items": {"$ref": "#/definitions/model.Track"}},
                "query": {"type": "string"},
                "error": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/v1",
	Schemes:          []string{},
	Title:            "PulseQuiz API",
	Description:      "Music buzzer quiz: sessions, players, buzzing and host controls.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
