// Package api exposes search over HTTP.
//
// GET /search is public. Everything under /admin needs either an internal
// service token ("Authorization: Token <token>") or an HS256 JWT whose
// claims carry role=admin or is_staff=true ("Authorization: Bearer <jwt>").
package api
