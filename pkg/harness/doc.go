// Package harness is the entry point for integration tests that share one
// application server.
//
// A Suite is created once per test binary. Groups declare their deployment
// and receive server resources through tagged fields:
//
//	var suite *harness.Suite
//
//	func TestMain(m *testing.M) {
//	    var err error
//	    if suite, err = harness.NewSuite("orders"); err != nil {
//	        log.Fatal(err)
//	    }
//	    os.Exit(suite.Run(m))
//	}
//
//	type OrdersIT struct {
//	    Client api.ManagementClient `harness:"management-client,static"`
//	    Orders string               `harness:"address,path=orders"`
//	}
//
//	func TestOrders(t *testing.T) {
//	    var it OrdersIT
//	    g := suite.Group(t, &harness.Group{
//	        Name:    "OrdersIT",
//	        Methods: []harness.Method{deployment.Producer("orders", ordersWar)},
//	    }, &it)
//	    g.Case(t, &it)
//	    resp, err := http.Get(it.Orders)
//	    ...
//	}
//
// The server is started by the first group that needs it and stopped when
// the suite closes. Groups running in parallel share it.
package harness
