// Package models defines the replicated entity shape: schema descriptors for
// the two entity kinds, records with their per-field update maps, and the
// dirty bitmask that drives the push queue.
//
// Every Primary Entity (a book or a series) owns exactly one Sub-Entity, the
// per-user reading state, stored under the nested field "user". Merge code
// consults the Schema to decide which fields are nested instead of
// inspecting values.
package models
