// Package backpack wires a CRUD administration panel into a Fiber
// application.
//
// A Provider is registered in two phases. Register binds the "crud" and
// "widgets" singletons into the Container and installs the CRUD route
// macro on the Server. Boot loads views and translations with their
// published overrides, merges the backpack auth provider, password broker
// and guard into the auth configuration, and mounts the login, password
// reset and dashboard routes under the admin prefix.
//
// # Mounting resources
//
// Controllers are resolved through a routing.Registry keyed by their
// namespace-qualified identifier. Factories run when the resource is
// mounted, so they are registered where the booted Provider is in scope:
//
//	func mountRoutes(a *backpack.Application) error {
//	    a.Provider.Controllers().MustRegister(`App\Admin\ArticleCrudController`, func() (routing.Controller, error) {
//	        repo := crud.NewRepository[Article](a.DB, a.Logger)
//	        return crud.NewController(a.Provider.Panel(), repo, a.Provider.CrudDeps(), setupArticles)
//	    })
//
//	    a.Provider.Admin(func(s *backpack.Server) {
//	        s.Group(routing.Group{Name: routing.N("admin."), Namespace: `App\Admin`}, func(s *backpack.Server) {
//	            s.MustCRUD("article", "ArticleCrudController")
//	        })
//	    })
//	    return nil
//	}
//
// The route names registered above start with "admin.article". Each named
// group replaces the name prefix of the groups around it, so nesting
// Name "v2." inside "admin." yields "v2.article", not "admin.v2.article".
//
// # Applications
//
// NewApplication loads configuration from the environment, connects the
// database (SQLite or Postgres), builds the server and runs both provider
// phases:
//
//	app, err := backpack.NewApplication("shop",
//	    backpack.WithRoutes(mountRoutes),
//	    backpack.WithModels(&Article{}),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(app.Run())
package backpack
