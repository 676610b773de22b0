// Package watch reports changes below a directory, collapsing bursts of
// file system events into a single callback.
package watch
