// Package state provides a small generic reactive container.
//
// A Store holds one value of type S. Actions replace it through Set, which
// runs the registered middleware chain and then notifies subscribers. The
// chain is assembled by a Builder from an explicit, ordered list; the first
// middleware registered is the outermost wrapper.
//
// Actions are synchronous and serialized per store. Middleware that does
// I/O (such as persistence) must hand the work to its own goroutine and keep
// the action path non-blocking.
package state
