package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Makeup Exam API",
        "description": "Makeup exam roster ingestion and student lookup",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "AdminToken": {"type": "apiKey", "in": "header", "name": "X-Admin-Token"}
    },
    "tags": [
        {"name": "Exams", "description": "Public student lookups"},
        {"name": "Admin", "description": "Roster upload and export"},
        {"name": "Health", "description": "Probes and metrics"}
    ],
    "paths": {
        "/health": {
            "get": {
                "tags": ["Health"],
                "summary": "Liveness probe",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Status"}}
                }
            }
        },
        "/ready": {
            "get": {
                "tags": ["Health"],
                "summary": "Readiness probe",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "Ready", "schema": {"$ref": "#/definitions/Status"}},
                    "503": {"description": "Store unreachable", "schema": {"$ref": "#/definitions/Status"}}
                }
            }
        },
        "/metrics": {
            "get": {
                "tags": ["Health"],
                "summary": "Prometheus metrics",
                "produces": ["text/plain"],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/exams/{studentId}": {
            "get": {
                "tags": ["Exams"],
                "summary": "List makeup exams of a student",
                "description": "Unknown student IDs yield an empty array. Names are masked.",
                "produces": ["application/json"],
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"type": "array", "items": {"$ref": "#/definitions/ExamView"}}
                    }
                }
            }
        },
        "/admin/upload": {
            "post": {
                "tags": ["Admin"],
                "summary": "Replace the makeup exam roster",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json", "text/html"],
                "security": [{"AdminToken": []}],
                "parameters": [
                    {"name": "file", "in": "formData", "required": true, "type": "file", "description": "Roster workbook (.xlsx or .xls)"}
                ],
                "responses": {
                    "200": {"description": "Roster replaced", "schema": {"$ref": "#/definitions/UploadResponse"}},
                    "400": {"description": "Invalid file or roster", "schema": {"$ref": "#/definitions/ErrorBody"}},
                    "401": {"description": "Missing or invalid admin token", "schema": {"$ref": "#/definitions/ErrorBody"}},
                    "500": {"description": "Roster could not be stored", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            }
        },
        "/admin/roster": {
            "get": {
                "tags": ["Admin"],
                "summary": "Describe the stored roster",
                "produces": ["application/json"],
                "security": [{"AdminToken": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/RosterSummary"}},
                    "401": {"description": "Missing or invalid admin token", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            }
        },
        "/admin/roster/export": {
            "get": {
                "tags": ["Admin"],
                "summary": "Download the full roster",
                "produces": ["text/csv", "application/pdf", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"],
                "security": [{"AdminToken": []}],
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf", "xlsx"], "default": "csv"}
                ],
                "responses": {
                    "200": {"description": "File", "schema": {"type": "file"}},
                    "400": {"description": "Unsupported format", "schema": {"$ref": "#/definitions/ErrorBody"}},
                    "401": {"description": "Missing or invalid admin token", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            }
        }
    },
    "definitions": {
        "Status": {
            "type": "object",
            "properties": {
                "status": {"type": "string"}
            }
        },
        "ExamView": {
            "type": "object",
            "properties": {
                "subject": {"type": "string"},
                "exam_date": {"type": "string"},
                "exam_time": {"type": "string"},
                "location": {"type": "string"},
                "student_name": {"type": "string", "x-nullable": true}
            }
        },
        "UploadResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "count": {"type": "integer"},
                "message": {"type": "string"}
            }
        },
        "RosterSummary": {
            "type": "object",
            "properties": {
                "count": {"type": "integer"},
                "students": {"type": "integer"},
                "last_imported_at": {"type": "string", "format": "date-time", "x-nullable": true}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "object"}
            }
        },
        "ErrorBody": {
            "type": "object",
            "properties": {
                "detail": {"type": "string"},
                "error": {"$ref": "#/definitions/APIError"}
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
