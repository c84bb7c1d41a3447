package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Header("Content-Type", "application/json")
		c.String(http.StatusOK, swaggerJSON)
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>chirpfeed API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "chirpfeed", "version": "v0.1.0" },
  "paths": {
    "/auth/signin": {
      "post": {
        "summary": "Sign in with email and password",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"email":{"type":"string"},"password":{"type":"string"}}}}}},
        "responses": { "200": { "description": "tokens and user returned" }, "401": { "description": "invalid credentials" } }
      }
    },
    "/auth/signup": {
      "post": {
        "summary": "Register with username, email, password and an avatar image",
        "requestBody": { "content": { "multipart/form-data": { "schema": {"type":"object","properties":{"username":{"type":"string"},"email":{"type":"string"},"password":{"type":"string"},"avatar":{"type":"string","format":"binary"}}}}}},
        "responses": { "200": { "description": "tokens and user returned" }, "409": { "description": "email already registered" } }
      }
    },
    "/auth/signout": {
      "post": { "summary": "Sign out and revoke the refresh session", "responses": { "200": { "description": "signed out" } } }
    },
    "/auth/reset": {
      "post": { "summary": "Send a password reset message", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"email":{"type":"string"}}}}}}, "responses": { "200": { "description": "reset sent" }, "404": { "description": "unknown account" } } }
    },
    "/auth/federated": {
      "post": { "summary": "Exchange an external ID token for a local session", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"id_token":{"type":"string"}}}}}}, "responses": { "200": { "description": "tokens and user returned" } } }
    },
    "/auth/refresh": {
      "post": { "summary": "Refresh access token", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"refresh_token":{"type":"string"}}}}}}, "responses": { "200": { "description": "new access token" }, "401": { "description": "invalid refresh" } } }
    },
    "/experience": {
      "get": { "summary": "Which experience the current session routes to", "responses": { "200": { "description": "feed or auth" } } }
    },
    "/feed/live": {
      "get": { "summary": "Live post feed over server-sent events", "responses": { "200": { "description": "event stream of full ordered snapshots" } } }
    },
    "/posts": {
      "post": { "summary": "Create a post (text required, image optional)", "responses": { "201": { "description": "posted" }, "400": { "description": "missing text" } } }
    },
    "/posts/{id}/comments/live": {
      "get": { "summary": "Live comment thread over server-sent events", "responses": { "200": { "description": "event stream of full ordered snapshots" } } }
    },
    "/posts/{id}/comments": {
      "post": { "summary": "Comment on a post", "responses": { "201": { "description": "commented" } } }
    }
  }
}`
