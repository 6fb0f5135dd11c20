package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Batch Admin API",
        "description": "Training batch administration: rosters, meeting attendance, points ledger and weekly best performers.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Authentication", "description": "Operator login"},
        {"name": "Batches", "description": "Batches and rosters"},
        {"name": "Attendance", "description": "Meeting export matching"},
        {"name": "Points", "description": "Points ledger and leaderboard"},
        {"name": "Weekly Performers", "description": "Weekly best performer snapshots"}
    ],
    "paths": {
        "/health": {"get": {"summary": "Health check", "responses": {"200": {"description": "OK"}}}},
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {"200": {"description": "Ready"}, "503": {"description": "A dependency is down"}}
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/LoginRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current user profile",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}]
            }
        },
        "/batches": {
            "get": {
                "tags": ["Batches"],
                "summary": "List batches",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}},
                "security": [{"BearerAuth": []}]
            },
            "post": {
                "tags": ["Batches"],
                "summary": "Create batch",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/CreateBatchRequest"}
                    }
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}]
            }
        },
        "/batches/{id}": {
            "get": {
                "tags": ["Batches"],
                "summary": "Get batch with roster",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}]
            },
            "put": {
                "tags": ["Batches"],
                "summary": "Update batch metadata",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/UpdateBatchRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}]
            },
            "delete": {
                "tags": ["Batches"],
                "summary": "Delete batch",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "204": {"description": "Deleted"},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}]
            }
        },
        "/batches/{id}/students": {
            "post": {
                "tags": ["Batches"],
                "summary": "Add student to roster",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/StudentInput"}
                    }
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}]
            }
        },
        "/batches/{id}/students/{studentId}": {
            "put": {
                "tags": ["Batches"],
                "summary": "Update roster entry",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "studentId", "in": "path", "required": true, "type": "string"},
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/UpdateStudentRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}]
            },
            "delete": {
                "tags": ["Batches"],
                "summary": "Remove roster entry",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "studentId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Deleted"},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}]
            }
        },
        "/batches/{id}/watch": {
            "get": {
                "tags": ["Batches"],
                "summary": "Stream batch changes",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "Server-sent events"}},
                "security": [{"BearerAuth": []}],
                "produces": ["text/event-stream"]
            }
        },
        "/batches/{id}/attendance/preview": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Preview attendance from a meeting export",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "file", "in": "formData", "required": true, "type": "file"},
                    {"name": "session_date", "in": "formData", "type": "string"},
                    {"name": "window_start", "in": "formData", "type": "string"},
                    {"name": "window_end", "in": "formData", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "413": {
                        "description": "Payload too large",
                        "schema": {"$ref": "#/definitions/ResponseEnvelope"}
                    }
                },
                "security": [{"BearerAuth": []}],
                "consumes": ["multipart/form-data"]
            }
        },
        "/batches/{id}/attendance": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Store attendance from a meeting export",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "file", "in": "formData", "required": true, "type": "file"},
                    {"name": "session_date", "in": "formData", "type": "string"},
                    {"name": "window_start", "in": "formData", "type": "string"},
                    {"name": "window_end", "in": "formData", "type": "string"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "413": {
                        "description": "Payload too large",
                        "schema": {"$ref": "#/definitions/ResponseEnvelope"}
                    }
                },
                "security": [{"BearerAuth": []}],
                "consumes": ["multipart/form-data"]
            },
            "get": {
                "tags": ["Attendance"],
                "summary": "List attendance sessions",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "date_from", "in": "query", "type": "string"},
                    {"name": "date_to", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}},
                "security": [{"BearerAuth": []}]
            }
        },
        "/attendance/{sessionId}": {
            "get": {
                "tags": ["Attendance"],
                "summary": "Get attendance session with records",
                "parameters": [{"name": "sessionId", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}]
            }
        },
        "/attendance/{sessionId}/source": {
            "get": {
                "tags": ["Attendance"],
                "summary": "Download the meeting export a session was built from",
                "parameters": [{"name": "sessionId", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "File"},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}],
                "produces": ["text/csv", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"]
            }
        },
        "/batches/{id}/points": {
            "post": {
                "tags": ["Points"],
                "summary": "Record a point change",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/RecordPointChangeRequest"}
                    }
                ],
                "responses": {
                    "201": {"description": "Applied", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {
                        "description": "Ledger entry stored, balance stale",
                        "schema": {"$ref": "#/definitions/ResponseEnvelope"}
                    },
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}]
            },
            "get": {
                "tags": ["Points"],
                "summary": "List point changes",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "student_id", "in": "query", "type": "string"},
                    {"name": "date_from", "in": "query", "type": "string"},
                    {"name": "date_to", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}},
                "security": [{"BearerAuth": []}]
            }
        },
        "/batches/{id}/students/{studentId}/aggregates": {
            "get": {
                "tags": ["Points"],
                "summary": "Student point aggregates",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "studentId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}]
            }
        },
        "/batches/{id}/leaderboard": {
            "get": {
                "tags": ["Points"],
                "summary": "Ranked leaderboard",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}]
            }
        },
        "/batches/{id}/leaderboard/export": {
            "get": {
                "tags": ["Points"],
                "summary": "Download leaderboard",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File"},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}],
                "produces": ["text/csv", "application/pdf"]
            }
        },
        "/batches/{id}/points/reset": {
            "post": {
                "tags": ["Points"],
                "summary": "Reset every balance to the baseline",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}]
            }
        },
        "/batches/{id}/points/restore": {
            "post": {
                "tags": ["Points"],
                "summary": "Rebuild balances from the ledger",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}]
            }
        },
        "/batches/{id}/weekly-performers": {
            "post": {
                "tags": ["Weekly Performers"],
                "summary": "Snapshot this week's winner and reset points",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}]
            },
            "get": {
                "tags": ["Weekly Performers"],
                "summary": "List weekly performers",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}},
                "security": [{"BearerAuth": []}]
            }
        },
        "/batches/{id}/weekly-performers/manual": {
            "post": {
                "tags": ["Weekly Performers"],
                "summary": "Record a weekly winner by hand",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/ManualWeeklyPerformerRequest"}
                    }
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}]
            }
        },
        "/batches/{id}/weekly-performers/export": {
            "get": {
                "tags": ["Weekly Performers"],
                "summary": "Download weekly performers",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File"},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}],
                "produces": ["text/csv", "application/pdf"]
            }
        },
        "/weekly-performers/{id}": {
            "delete": {
                "tags": ["Weekly Performers"],
                "summary": "Delete a weekly performer snapshot",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "204": {"description": "Deleted"},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}]
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {"email": {"type": "string"}, "password": {"type": "string"}},
            "required": ["email", "password"]
        },
        "StudentInput": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "email": {"type": "string"},
                "phone": {"type": "string"},
                "points": {"type": "integer"}
            },
            "required": ["name"]
        },
        "CreateBatchRequest": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "group_name": {"type": "string"},
                "trainers": {"type": "array", "items": {"type": "string"}},
                "coordinators": {"type": "array", "items": {"type": "string"}},
                "students": {"type": "array", "items": {"$ref": "#/definitions/StudentInput"}}
            },
            "required": ["code"]
        },
        "UpdateBatchRequest": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "group_name": {"type": "string"},
                "trainers": {"type": "array", "items": {"type": "string"}},
                "coordinators": {"type": "array", "items": {"type": "string"}}
            },
            "required": ["code"]
        },
        "UpdateStudentRequest": {
            "type": "object",
            "properties": {"name": {"type": "string"}, "email": {"type": "string"}, "phone": {"type": "string"}},
            "required": ["name"]
        },
        "RecordPointChangeRequest": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "points_change": {"type": "integer"},
                "reason": {"type": "string"},
                "date": {"type": "string"}
            },
            "required": ["student_id", "points_change", "reason"]
        },
        "ManualWeeklyPerformerRequest": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "week_number": {"type": "integer"},
                "week_start_date": {"type": "string"}
            },
            "required": ["student_id", "week_number"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {"code": {"type": "string"}, "message": {"type": "string"}, "status": {"type": "integer"}}
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
