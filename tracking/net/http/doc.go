// Package http provides Fiber-oriented HTTP helpers, middleware, and error handling
// for services that receive tracking payloads.
//
// Every response uses the same envelope: {"success": bool, "data": any, "error": string}.
// Core entry points include response helpers (Respond, Success, RespondError, RenderError),
// middleware builders, and FiberErrorHandler for consistent request failure handling.
package http
