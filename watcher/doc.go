// Package watcher turns file system events under a set of roots into
// debounced change batches. Events are collected until the tree has been
// quiet for the debounce window; the batch is then handed to a single
// callback.
package watcher
