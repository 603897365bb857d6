// Package middleware provides net/http middleware that guards routes with
// credvault secrets presented as Bearer tokens. It is a thin adapter over
// [credvault.Engine.Verify]; handlers read the verified owner from the
// request context.
package middleware
