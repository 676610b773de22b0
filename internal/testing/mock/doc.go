// Package mock provides in-process fakes of the application server for tests.
//
// Key Components:
//
// ManagementServer: an httptest server speaking the HTTP management protocol.
// It keeps a small resource model of deployments, attributes and children,
// records every operation it receives (composites expanded), and can be told
// to fail specific operations.
//
// FakeHandle and FakeDomainHandle: api.ServerHandle implementations that count
// Start, Shutdown and Kill calls, notify listeners synchronously, and can be
// configured never to become ready.
//
// FakeLauncher: a handle factory that counts NewHandle calls.
//
// Usage:
//
//	srv := mock.NewManagementServer()
//	defer srv.Close()
//
//	client := management.NewClient(srv.Address())
//	h := mock.NewFakeHandle(api.TopologyStandalone, client,
//	    management.NewDeploymentManager(client, api.TopologyStandalone))
//
// The fakes live in a separate package so that the lifecycle, injection and
// facade tests share one definition of "a server".
package mock
