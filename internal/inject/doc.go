// Package inject produces server-derived resources for test code.
//
// A Registry holds Producers in registration order and asks each in turn
// whether it can serve a Request; the first one that can produces the value.
// DefaultRegistry registers the built-in producers for the server handle,
// management client, deployment manager, deployment address and settings.
//
// Values reach test code through tagged struct fields or function
// parameters:
//
//	type OrdersIT struct {
//	    Server api.ServerHandle `harness:"server,static"`
//	    Orders string           `harness:"address,path=orders"`
//	}
//
// Static fields are filled once per group, the rest once per case.
package inject
