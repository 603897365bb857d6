// Package rate implements fixed-window rate limiting over Redis counters:
// INCR plus a conditional EXPIRE on the first hit of each window. Keys are
// namespaced per purpose under the cvr: prefix. The window is anchored
// at the identifier's first request, not at wall-clock window
// boundaries, so two identifiers' windows rarely reset at the same
// moment.
//
// The limiter fails open: when Redis is unreachable the decision is
// "allowed", because availability of verification outranks strictness of
// throttling. Callers that need a closed failure mode must layer it above.
package rate
