// Package docs registra la especificación OpenAPI del servicio para http-swagger.
// Se regenera con `swag init -g cmd/api/main.go`.
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
        "/regimens": {
            "get": {
                "produces": ["application/json"],
                "tags": ["regimens"],
                "summary": "Listar regímenes del usuario",
                "parameters": [
                    {"type": "string", "description": "Solo en modo dev, ID de usuario para depuración", "name": "X-Debug-User-ID", "in": "header"}
                ],
                "responses": {"200": {"description": "OK"}, "401": {"description": "unauthorized"}}
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["regimens"],
                "summary": "Crear un régimen",
                "parameters": [
                    {"type": "string", "description": "Solo en modo dev, ID de usuario para depuración", "name": "X-Debug-User-ID", "in": "header"},
                    {"description": "Régimen", "name": "payload", "in": "body", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {"201": {"description": "Created"}, "400": {"description": "invalid json / validación"}, "401": {"description": "unauthorized"}}
            }
        },
        "/regimens/{regimenID}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["regimens"],
                "summary": "Obtener un régimen",
                "parameters": [
                    {"type": "string", "description": "ID del régimen", "name": "regimenID", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "403": {"description": "forbidden"}, "404": {"description": "regimen not found"}}
            },
            "patch": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["regimens"],
                "summary": "Actualizar un régimen",
                "parameters": [
                    {"type": "string", "description": "ID del régimen", "name": "regimenID", "in": "path", "required": true},
                    {"description": "Campos a cambiar; end_date null la borra", "name": "payload", "in": "body", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "validación"}, "403": {"description": "forbidden"}, "404": {"description": "regimen not found"}}
            }
        },
        "/regimens/{regimenID}/deactivate": {
            "post": {
                "produces": ["application/json"],
                "tags": ["regimens"],
                "summary": "Desactivar un régimen",
                "parameters": [
                    {"type": "string", "description": "ID del régimen", "name": "regimenID", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "403": {"description": "forbidden"}, "404": {"description": "regimen not found"}}
            }
        },
        "/doses": {
            "get": {
                "produces": ["application/json"],
                "tags": ["doses"],
                "summary": "Listar tomas registradas",
                "parameters": [
                    {"type": "string", "description": "ID del régimen", "name": "regimen_id", "in": "query"},
                    {"type": "string", "description": "scheduled_time mínimo (RFC3339)", "name": "from", "in": "query"},
                    {"type": "string", "description": "scheduled_time máximo (RFC3339)", "name": "to", "in": "query"},
                    {"type": "integer", "description": "Máximo a devolver (1-500)", "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Parámetros de filtro inválidos"}, "401": {"description": "unauthorized"}}
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["doses"],
                "summary": "Registrar una toma",
                "description": "Hasta 60 min se acepta, hasta la ventana se acepta con aviso (warn_late), pasada la ventana se guarda como missed (force_missed).",
                "parameters": [
                    {"description": "Toma; scheduled_time en RFC3339", "name": "payload", "in": "body", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {"201": {"description": "Created"}, "400": {"description": "validación"}, "403": {"description": "forbidden"}, "404": {"description": "regimen not found"}, "409": {"description": "dose already logged"}}
            }
        },
        "/doses/{doseID}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["doses"],
                "summary": "Obtener una toma",
                "parameters": [
                    {"type": "string", "description": "ID del log", "name": "doseID", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "403": {"description": "forbidden"}, "404": {"description": "dose log not found"}}
            }
        },
        "/schedule": {
            "get": {
                "produces": ["application/json"],
                "tags": ["schedule"],
                "summary": "Agenda del día",
                "parameters": [
                    {"type": "string", "description": "Día (YYYY-MM-DD). Por defecto hoy", "name": "date", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "date inválida"}, "401": {"description": "unauthorized"}}
            }
        },
        "/schedule/missed": {
            "get": {
                "produces": ["application/json"],
                "tags": ["schedule"],
                "summary": "Dosis perdidas",
                "parameters": [
                    {"type": "integer", "description": "Días hacia atrás (1-90). Por defecto 7", "name": "days", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "days inválido"}, "401": {"description": "unauthorized"}}
            }
        },
        "/adherence": {
            "get": {
                "produces": ["application/json"],
                "tags": ["schedule"],
                "summary": "Reporte de adherencia",
                "parameters": [
                    {"type": "string", "description": "Desde (YYYY-MM-DD)", "name": "from", "in": "query"},
                    {"type": "string", "description": "Hasta (YYYY-MM-DD)", "name": "to", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "rango inválido"}, "401": {"description": "unauthorized"}}
            }
        },
        "/caregivers": {
            "get": {
                "produces": ["application/json"],
                "tags": ["caregivers"],
                "summary": "Listar mis cuidadores",
                "parameters": [
                    {"type": "string", "description": "Estados separados por coma (invited,active,revoked)", "name": "status", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}, "401": {"description": "unauthorized"}}
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["caregivers"],
                "summary": "Invitar a un cuidador",
                "parameters": [
                    {"description": "Cuidador y scopes", "name": "payload", "in": "body", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {"201": {"description": "Created"}, "400": {"description": "invalid json / scope desconocido"}, "401": {"description": "unauthorized"}}
            }
        },
        "/caregivers/{linkID}/accept": {
            "post": {
                "produces": ["application/json"],
                "tags": ["caregivers"],
                "summary": "Aceptar una invitación",
                "parameters": [
                    {"type": "string", "description": "ID del vínculo", "name": "linkID", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "403": {"description": "forbidden"}, "404": {"description": "not found"}, "409": {"description": "revoked"}}
            }
        },
        "/caregivers/{linkID}/revoke": {
            "post": {
                "produces": ["application/json"],
                "tags": ["caregivers"],
                "summary": "Revocar un vínculo",
                "parameters": [
                    {"type": "string", "description": "ID del vínculo", "name": "linkID", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "403": {"description": "forbidden"}, "404": {"description": "not found"}}
            }
        },
        "/me/patients": {
            "get": {
                "produces": ["application/json"],
                "tags": ["caregivers"],
                "summary": "Pacientes que me invitaron",
                "responses": {"200": {"description": "OK"}, "401": {"description": "unauthorized"}}
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
	Title:            "Medication Adherence API",
	Description:      "Agenda de dosis, registro de tomas y adherencia.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
