// Package docs holds the Swagger 2.0 document served under /swagger. It is
// kept in step with the @Router annotations in internal/api.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "API Support",
            "url": "http://www.example.com/support",
            "email": "support@example.com"
        },
        "license": {
            "name": "Apache 2.0",
            "url": "http://www.apache.org/licenses/LICENSE-2.0.html"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/events": {
            "post": {
                "description": "Validate an event and distribute it to every matching subscription",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["events"],
                "summary": "Publish an event",
                "parameters": [
                    {"description": "Event to publish", "name": "event", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.Event"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/models.Event"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/subscriptions": {
            "get": {
                "produces": ["application/json"],
                "tags": ["subscriptions"],
                "summary": "List subscriptions of an owner",
                "parameters": [
                    {"type": "string", "description": "Owner ID", "name": "owner_id", "in": "query", "required": true},
                    {"type": "string", "description": "Filter by status", "name": "status", "in": "query"},
                    {"type": "string", "description": "Filter by topic pattern", "name": "topic", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/subscription.Subscription"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            },
            "post": {
                "description": "Create a subscription, or return the existing one for the same owner and topic when dedup is set",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["subscriptions"],
                "summary": "Create a subscription",
                "parameters": [
                    {"description": "Subscription data", "name": "subscription", "in": "body", "required": true, "schema": {"$ref": "#/definitions/subscription.CreateRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/subscription.Subscription"}},
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/subscription.Subscription"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/subscriptions/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["subscriptions"],
                "summary": "Get a subscription",
                "parameters": [{"type": "string", "description": "Subscription ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/subscription.Subscription"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            },
            "delete": {
                "tags": ["subscriptions"],
                "summary": "Delete a subscription",
                "parameters": [{"type": "string", "description": "Subscription ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            },
            "patch": {
                "description": "Patch filters, expression, config or status. Omitted fields are left untouched.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["subscriptions"],
                "summary": "Update a subscription",
                "parameters": [
                    {"type": "string", "description": "Subscription ID", "name": "id", "in": "path", "required": true},
                    {"description": "Fields to change", "name": "update", "in": "body", "required": true, "schema": {"$ref": "#/definitions/subscription.UpdateRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/subscription.Subscription"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/subscriptions/{id}/pause": {
            "post": {
                "description": "Stop deliveries. Persistent subscriptions keep queuing matched events.",
                "produces": ["application/json"],
                "tags": ["subscriptions"],
                "summary": "Pause a subscription",
                "parameters": [{"type": "string", "description": "Subscription ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/subscription.Subscription"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/subscriptions/{id}/resume": {
            "post": {
                "produces": ["application/json"],
                "tags": ["subscriptions"],
                "summary": "Resume a subscription",
                "parameters": [{"type": "string", "description": "Subscription ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/subscription.Subscription"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/connections": {
            "get": {
                "produces": ["application/json"],
                "tags": ["connections"],
                "summary": "List live connections",
                "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/connection.Info"}}}}
            }
        },
        "/connections/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["connections"],
                "summary": "Get a live connection",
                "parameters": [{"type": "string", "description": "Connection ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/connection.Info"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/queues": {
            "get": {
                "produces": ["application/json"],
                "tags": ["queues"],
                "summary": "List message queues",
                "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/queue.Info"}}}}
            }
        },
        "/queues/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["queues"],
                "summary": "Get a message queue",
                "parameters": [{"type": "string", "description": "Queue ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/queue.Info"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/queues/{id}/messages": {
            "get": {
                "produces": ["application/json"],
                "tags": ["queues"],
                "summary": "List pending messages of a queue",
                "parameters": [
                    {"type": "string", "description": "Queue ID", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "description": "Maximum messages returned (1-1000, default 100)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/queue.Message"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/queues/{id}/pause": {
            "post": {
                "description": "Stop the consumer from processing the queue. Enqueueing continues.",
                "produces": ["application/json"],
                "tags": ["queues"],
                "summary": "Pause a queue",
                "parameters": [{"type": "string", "description": "Queue ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/queue.Info"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/queues/{id}/resume": {
            "post": {
                "produces": ["application/json"],
                "tags": ["queues"],
                "summary": "Resume a paused queue",
                "parameters": [{"type": "string", "description": "Queue ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/queue.Info"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/queues/{id}/drain": {
            "post": {
                "description": "Refuse new messages and process what is left",
                "produces": ["application/json"],
                "tags": ["queues"],
                "summary": "Drain a queue",
                "parameters": [{"type": "string", "description": "Queue ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/queue.Info"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/metrics/current": {
            "get": {
                "produces": ["application/json"],
                "tags": ["metrics"],
                "summary": "Current metrics snapshot",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/monitoring.Snapshot"}}}
            }
        },
        "/metrics/history": {
            "get": {
                "produces": ["application/json"],
                "tags": ["metrics"],
                "summary": "Metrics history",
                "parameters": [{"type": "integer", "default": 1, "description": "Window in hours", "name": "hours", "in": "query"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/monitoring.Snapshot"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/metrics/breakdown/{domain}": {
            "get": {
                "description": "Current, average and peak values for connections, subscriptions, queues or performance",
                "produces": ["application/json"],
                "tags": ["metrics"],
                "summary": "Metrics of one domain",
                "parameters": [{"type": "string", "description": "Domain", "name": "domain", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/monitoring.Breakdown"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/metrics/health-score": {
            "get": {
                "produces": ["application/json"],
                "tags": ["metrics"],
                "summary": "Hub health score",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/monitoring.Health"}}}
            }
        },
        "/metrics/trend": {
            "get": {
                "produces": ["application/json"],
                "tags": ["metrics"],
                "summary": "Trend of one metric",
                "parameters": [
                    {"type": "string", "description": "Metric path, e.g. queues.total_size", "name": "path", "in": "query", "required": true},
                    {"type": "integer", "default": 1, "description": "Window in hours", "name": "hours", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/monitoring.Trend"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/metrics/export": {
            "get": {
                "description": "One \"name value\" line per metric of the current snapshot",
                "produces": ["text/plain"],
                "tags": ["metrics"],
                "summary": "Export metrics as text",
                "responses": {"200": {"description": "OK", "schema": {"type": "string"}}}
            }
        },
        "/alerts/rules": {
            "get": {
                "produces": ["application/json"],
                "tags": ["alerts"],
                "summary": "List alert rules",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/monitoring.Rule"}}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["alerts"],
                "summary": "Create an alert rule",
                "parameters": [{"description": "Rule data", "name": "rule", "in": "body", "required": true, "schema": {"$ref": "#/definitions/monitoring.RuleRequest"}}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/monitoring.Rule"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/alerts/rules/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["alerts"],
                "summary": "Get an alert rule",
                "parameters": [{"type": "string", "description": "Rule ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/monitoring.Rule"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            },
            "put": {
                "description": "Replacing a rule resets any alert it has in flight",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["alerts"],
                "summary": "Replace an alert rule",
                "parameters": [
                    {"type": "string", "description": "Rule ID", "name": "id", "in": "path", "required": true},
                    {"description": "Rule data", "name": "rule", "in": "body", "required": true, "schema": {"$ref": "#/definitions/monitoring.RuleRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/monitoring.Rule"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            },
            "delete": {
                "tags": ["alerts"],
                "summary": "Delete an alert rule",
                "parameters": [{"type": "string", "description": "Rule ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/ws": {
            "get": {
                "description": "Upgrades to a websocket that carries subscribe, unsubscribe and ping frames in and event frames out. Reusing a session_id resumes its persistent subscriptions.",
                "tags": ["websocket"],
                "summary": "Open a websocket connection",
                "parameters": [
                    {"type": "string", "description": "Owner ID", "name": "owner_id", "in": "query", "required": true},
                    {"type": "string", "description": "Session ID to resume", "name": "session_id", "in": "query"}
                ],
                "responses": {
                    "101": {"description": "Switching Protocols"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/alerts/active": {
            "get": {
                "produces": ["application/json"],
                "tags": ["alerts"],
                "summary": "Alerts currently firing",
                "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/monitoring.Alert"}}}}
            }
        }
    },
    "definitions": {
        "connection.Info": {
            "type": "object",
            "properties": {
                "buffered": {"type": "integer"},
                "connectedAt": {"type": "string"},
                "id": {"type": "string"},
                "idle": {"type": "boolean"},
                "metadata": {"type": "object", "additionalProperties": {"type": "string"}},
                "metrics": {"type": "object"},
                "ownerId": {"type": "string"},
                "sessionId": {"type": "string"},
                "status": {"type": "string"},
                "subscribedTopics": {"type": "array", "items": {"type": "string"}}
            }
        },
        "errors.ErrorResponse": {
            "type": "object",
            "properties": {
                "details": {"type": "object", "additionalProperties": true},
                "error": {"type": "string"},
                "error_code": {"type": "string"}
            }
        },
        "models.Event": {
            "type": "object",
            "properties": {
                "data": {"type": "object", "additionalProperties": true},
                "id": {"type": "string"},
                "metadata": {"type": "object"},
                "source": {"type": "object"},
                "timestamp": {"type": "string"},
                "topic": {"type": "string"},
                "type": {"type": "string"}
            }
        },
        "monitoring.Alert": {
            "type": "object",
            "properties": {
                "escalated": {"type": "boolean"},
                "lastEvaluated": {"type": "string"},
                "metricPath": {"type": "string"},
                "operator": {"type": "string"},
                "ruleId": {"type": "string"},
                "ruleName": {"type": "string"},
                "severity": {"type": "string"},
                "since": {"type": "string"},
                "threshold": {"type": "number"},
                "value": {"type": "number"}
            }
        },
        "monitoring.Breakdown": {
            "type": "object",
            "properties": {
                "average": {"type": "object", "additionalProperties": {"type": "number"}},
                "current": {"type": "object", "additionalProperties": {"type": "number"}},
                "domain": {"type": "string"},
                "peak": {"type": "object", "additionalProperties": {"type": "number"}},
                "samples": {"type": "integer"},
                "timestamp": {"type": "string"}
            }
        },
        "monitoring.Health": {
            "type": "object",
            "properties": {
                "penalties": {"type": "object", "additionalProperties": {"type": "number"}},
                "score": {"type": "number"},
                "status": {"type": "string"}
            }
        },
        "monitoring.Rule": {
            "type": "object",
            "properties": {
                "actions": {"type": "array", "items": {"type": "object"}},
                "createdAt": {"type": "string"},
                "description": {"type": "string"},
                "enabled": {"type": "boolean"},
                "id": {"type": "string"},
                "metricPath": {"type": "string"},
                "minDurationMinutes": {"type": "integer"},
                "name": {"type": "string"},
                "operator": {"type": "string"},
                "severity": {"type": "string"},
                "threshold": {"type": "number"},
                "updatedAt": {"type": "string"}
            }
        },
        "monitoring.RuleRequest": {
            "type": "object",
            "properties": {
                "actions": {"type": "array", "items": {"type": "object"}},
                "description": {"type": "string"},
                "enabled": {"type": "boolean"},
                "metricPath": {"type": "string"},
                "minDurationMinutes": {"type": "integer"},
                "name": {"type": "string"},
                "operator": {"type": "string"},
                "severity": {"type": "string"},
                "threshold": {"type": "number"}
            }
        },
        "monitoring.Snapshot": {
            "type": "object",
            "properties": {
                "connections": {"type": "object"},
                "dispatcher": {"type": "object"},
                "errorRate": {"type": "number"},
                "healthScore": {"type": "number"},
                "healthStatus": {"type": "string"},
                "queues": {"type": "object"},
                "resources": {"type": "object"},
                "subscriptions": {"type": "object"},
                "timestamp": {"type": "string"}
            }
        },
        "monitoring.Trend": {
            "type": "object",
            "properties": {
                "avg": {"type": "number"},
                "change": {"type": "number"},
                "changePercent": {"type": "number"},
                "direction": {"type": "string"},
                "hours": {"type": "integer"},
                "max": {"type": "number"},
                "min": {"type": "number"},
                "path": {"type": "string"},
                "points": {"type": "array", "items": {"type": "object"}}
            }
        },
        "queue.Info": {
            "type": "object",
            "properties": {
                "config": {"type": "object"},
                "createdAt": {"type": "string"},
                "id": {"type": "string"},
                "lastEnqueueAt": {"type": "string"},
                "metrics": {"type": "object"},
                "status": {"type": "string"},
                "subscriptions": {"type": "integer"},
                "topic": {"type": "string"},
                "type": {"type": "string"}
            }
        },
        "queue.Message": {
            "type": "object",
            "properties": {
                "attempts": {"type": "integer"},
                "enqueuedAt": {"type": "string"},
                "event": {"$ref": "#/definitions/models.Event"},
                "id": {"type": "string"},
                "lastError": {"type": "string"},
                "maxAttempts": {"type": "integer"},
                "nextAttemptAt": {"type": "string"},
                "priority": {"type": "integer"},
                "queueId": {"type": "string"},
                "status": {"type": "string"},
                "subscriptionId": {"type": "string"}
            }
        },
        "subscription.CreateRequest": {
            "type": "object",
            "required": ["ownerId", "sessionId", "topic"],
            "properties": {
                "config": {"type": "object"},
                "connectionId": {"type": "string"},
                "dedup": {"type": "boolean"},
                "expression": {"type": "string"},
                "filters": {"type": "array", "items": {"type": "object"}},
                "ownerId": {"type": "string"},
                "sessionId": {"type": "string"},
                "topic": {"type": "string"},
                "type": {"type": "string"}
            }
        },
        "subscription.Subscription": {
            "type": "object",
            "properties": {
                "config": {"type": "object"},
                "connectionId": {"type": "string"},
                "createdAt": {"type": "string"},
                "expression": {"type": "string"},
                "filters": {"type": "array", "items": {"type": "object"}},
                "generation": {"type": "integer"},
                "id": {"type": "string"},
                "lastActivity": {"type": "string"},
                "metrics": {"type": "object"},
                "ownerId": {"type": "string"},
                "sessionId": {"type": "string"},
                "status": {"type": "string"},
                "topic": {"type": "string"},
                "type": {"type": "string"}
            }
        },
        "subscription.UpdateRequest": {
            "type": "object",
            "properties": {
                "config": {"type": "object"},
                "expression": {"type": "string"},
                "filters": {"type": "array", "items": {"type": "object"}},
                "status": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Event Hub API",
	Description:      "Publish events, manage topic subscriptions and watch hub metrics and alerts.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
