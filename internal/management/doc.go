// Package management is a client for the application server's HTTP
// management interface.
//
// Operations are posted as JSON to /management:
//
//	{"operation":"read-attribute","address":[{"deployment":"app.war"},{"subsystem":"undertow"}],"name":"context-root"}
//
// and answered with an outcome:
//
//	{"outcome":"success","result":"/app"}
//	{"outcome":"failed","failure-description":"WFLYCTL0216: ..."}
//
// Deployments are uploaded as multipart requests to /management-upload, with
// the archive attached as input stream 0 of the operation.
package management
