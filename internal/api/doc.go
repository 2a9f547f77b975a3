// Package api implements the HTTP surface: authentication endpoints, book
// CRUD, generation dispatch/polling, and the websocket push endpoint. Handlers
// translate transport concerns to service calls and map domain errors onto
// HTTP status codes; business rules live in the service and domain layers.
package api
