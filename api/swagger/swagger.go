package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Admission Sync API",
        "description": "Mirrors the admissions spreadsheet into Postgres and serves the dashboard aggregates",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Students", "description": "Admission records and dashboard aggregates"},
        {"name": "Sync", "description": "Spreadsheet reconciliation state"},
        {"name": "Auth", "description": "Admin sign-in"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "A dependency is unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/metrics": {
            "get": {
                "summary": "Prometheus metrics",
                "produces": ["text/plain"],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/students": {
            "get": {
                "tags": ["Students"],
                "summary": "List admission records",
                "parameters": [
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/RecordListEnvelope"}}}
            }
        },
        "/api/students/count": {
            "get": {
                "tags": ["Students"],
                "summary": "Count admission records",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/students/search": {
            "get": {
                "tags": ["Students"],
                "summary": "Search by name, college or transaction id",
                "parameters": [
                    {"name": "query", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/RecordListEnvelope"}}}
            }
        },
        "/api/students/suggestions": {
            "post": {
                "tags": ["Students"],
                "summary": "Search suggestions",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SuggestionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Query missing", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/students/college/{college}": {
            "get": {
                "tags": ["Students"],
                "summary": "Records of one college",
                "parameters": [
                    {"name": "college", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/RecordListEnvelope"}}}
            }
        },
        "/api/students/colleges": {
            "get": {
                "tags": ["Students"],
                "summary": "Distinct college names",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/students/admissions": {
            "get": {
                "tags": ["Students"],
                "summary": "Admissions per college",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/CollegeCountEnvelope"}}}
            }
        },
        "/api/students/tenk-paid": {
            "get": {
                "tags": ["Students"],
                "summary": "10K fee payers per college",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/CollegeCountEnvelope"}}}
            }
        },
        "/api/students/sem-fee-paid": {
            "get": {
                "tags": ["Students"],
                "summary": "Semester fee payers per college",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/students/girls": {
            "get": {
                "tags": ["Students"],
                "summary": "Female students per college",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/students/withdrawals": {
            "get": {
                "tags": ["Students"],
                "summary": "Withdrawals per college",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/CollegeCountEnvelope"}}}
            }
        },
        "/api/students/fast-slow-filling-colleges": {
            "get": {
                "tags": ["Students"],
                "summary": "Colleges with and without recent uploads",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/students/last-updated": {
            "get": {
                "tags": ["Students"],
                "summary": "Modification date of the source file",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not updated yet", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/students/export": {
            "get": {
                "tags": ["Students"],
                "summary": "Download records as CSV or PDF",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]},
                    {"name": "college", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File"},
                    "400": {"description": "Unknown format", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/last-update": {
            "get": {
                "tags": ["Sync"],
                "summary": "Latest change of a dataset with its provenance",
                "parameters": [
                    {"name": "dataset", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/sync/status": {
            "get": {
                "tags": ["Sync"],
                "summary": "Reconciler state and last pass",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/sync/trigger": {
            "post": {
                "tags": ["Sync"],
                "summary": "Queue a reconciliation pass",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "dataset", "in": "query", "type": "string"}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown dataset", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Pipeline not started", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Admin login",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "AdmissionRecord": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "uploadDate": {"type": "string"},
                "dateOfPayment": {"type": "string"},
                "transactionId": {"type": "string"},
                "firstName": {"type": "string"},
                "lastName": {"type": "string"},
                "college": {"type": "string"},
                "feePaid": {"type": "string"},
                "semFee": {"type": "string"},
                "gender": {"type": "string"},
                "fees": {"type": "integer"},
                "year": {"type": "integer"},
                "withdrawal": {"type": "string"},
                "createdAt": {"type": "string"},
                "updatedAt": {"type": "string"}
            }
        },
        "CollegeCount": {
            "type": "object",
            "properties": {
                "college": {"type": "string"},
                "count": {"type": "integer"}
            }
        },
        "SuggestionRequest": {
            "type": "object",
            "required": ["query"],
            "properties": {
                "query": {"type": "string"}
            }
        },
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
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
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        },
        "RecordListEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "array", "items": {"$ref": "#/definitions/AdmissionRecord"}},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        },
        "CollegeCountEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "array", "items": {"$ref": "#/definitions/CollegeCount"}},
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
