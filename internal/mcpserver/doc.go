// Package mcpserver exposes a running application server to AI assistants
// over the Model Context Protocol. The tools act on the HTTP management
// interface: they report the server state, deploy directories, list and
// remove deployments and resolve deployment addresses.
package mcpserver
