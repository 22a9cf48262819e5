// Package executor implements a breadth-first, batch-friendly GraphQL executor
// with explicit runtime hooks for synchronous resolution, depth-wise batching of
// asynchronous work, and leaf serialization.
//
// # Execution model
//
// The executor walks the operation level by level:
//
//	A. Sync expansion
//	   Fields marked schema.Field.Async == false are resolved immediately with
//	   Runtime.ResolveSync and completed in place, descending into their
//	   selection sets without adding depth.
//	B. Async collection
//	   Every async field met during the expansion is queued with its response
//	   path, return type and AST field nodes.
//	C. Flush
//	   Runtime.BatchResolveAsync is called once with all live queued tasks. Its
//	   results complete the queued paths; completing them may queue the next
//	   depth.
//
// The cycle ends when nothing is queued. A runtime that fronts a data store
// can therefore register every key of a depth before issuing one fetch per
// relationship.
//
// # Mutations
//
// Root fields of a mutation are executed one at a time in document order.
// Each root field, including its whole subtree, completes before the next one
// starts.
//
// # Null propagation
//
// A null (or an error) in a Non-Null position nullifies the nearest nullable
// ancestor slot, an object field or a list item. If no nullable ancestor
// exists the whole data entry becomes null. Queued tasks below a nullified
// slot are dropped before the next flush.
//
// # Errors
//
// Resolver errors become located GraphQL errors. An ErrorPresenter installed
// with WithErrorPresenter may attach extensions (such as a machine-readable
// code) to them.
//
// # Not supported
//
// Interfaces, unions and subscriptions are not executed. Introspection beyond
// __typename is supplied by wrapping the runtime (see package introspection).
package executor
