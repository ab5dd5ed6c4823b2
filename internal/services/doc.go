// Package services registers the service implementations shipped with sight.
//
// Each implementation lives in its own subpackage and plugs into the
// lifecycle of internal/service through the service.Impl interface. The
// constructors declare the object keys, signals and slots of the service on
// the *service.Service they receive.
//
// # Implementations
//
//   - echo.Type (sight::module::Echo): copies a configured message, or the
//     value of its optional "source" input, into its "echo" output.
//   - counter.Type (sight::module::Counter): increments the integer held by
//     its required "value" inout on every update.
//   - copier.Type (sight::module::Copier): concatenates the members of its
//     "sources" input group into its "target" output.
//   - composite.Type (sight::module::Composite): spawns the child services
//     listed in its configuration when it starts and tears them down when it
//     stops.
//
// # Example Usage
//
//	factory := service.NewFactory()
//	if err := services.Register(factory); err != nil {
//	    return err
//	}
//	registry := service.NewRegistry(factory)
//	svc, err := registry.Add(echo.Type, "greeter")
package services
