// Package deployment models deployable archives and finds the deployment a
// test group declares.
//
// A group declares at most one deployment, in one of two styles:
//
//	// producer: build the archive yourself
//	deployment.Producer("deployment", func(info deployment.TestInfo) *deployment.WebArchive {
//	    war := deployment.NewWebArchive("orders")
//	    war.AddString("index.html", "ok")
//	    return war
//	})
//
//	// generate: fill in an archive the harness creates, named after the group
//	deployment.Generate("deployment", deployment.KindInfer, func(a *deployment.WebArchive) {
//	    a.AddString("index.html", "ok")
//	})
//
// Declaring both styles, more than one declaration, or a function bound to the
// group instance is an api.ConfigurationError. Find reports it without running
// any user code.
package deployment
