// Package packs provides the domain pack system that backs the gateway's operations.
//
// # Overview
//
// A pack is the operation set of one accounting domain. Every operation name
// in a pack starts with the pack's prefix, and prefixes are pairwise disjoint,
// so the owning pack of any name can be found by prefix match alone.
//
// # Architecture
//
// The pack system has three main components:
//
//   - Registry: Tracks all registered packs and their tools
//   - Router: Routes operation calls to navigation or to the owning pack
//   - Domain packs: Declarative operation tables (see internal/domains)
//
// # Dispatch
//
// Router.Call resolves names in a fixed order: the navigation names
// qbo_select_domain and qbo_back match exactly, then the pack prefixes are
// consulted. Anything else is an UnknownOperationError. Navigation state
// decides what ListTools shows; it is not checked before a domain call.
//
// For a domain call the router resolves the caller's credential first. A
// missing credential fails the call before any client is built, so no
// upstream request is made. Otherwise a fresh client bound to that credential
// is handed to the tool handler.
//
// # Errors
//
// Registration fails with ErrPackAlreadyRegistered, ErrToolCollision,
// ErrPrefixOverlap or ErrToolOutsidePrefix. Calls fail with
// UnknownOperationError, InvalidArgumentsError, credential errors from the
// resolver, or upstream errors from the handler, all of which the transport
// layer reports as failed results.
package packs
