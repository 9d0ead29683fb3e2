// Package registry is the catalog of configuration actions a document can
// call.
//
// Modules populate a Registry explicitly through Register: each action is a
// Go function whose first parameter is the receiver category (for example
// *pipeline.SinkConfiguration) and whose remaining parameters are described
// by name, with optional defaults. The registry also keeps the named-type
// table used to instantiate values from literal type names, the static
// members reachable through Type::Member accessors, and the enum table.
//
// A Registry is built for one binding pass and is read-only once the pass
// starts resolving directives.
package registry
