// Package config provides configuration management for sight.
//
// It covers three kinds of configuration:
//
// # Global settings
//
// Settings for the sight process itself are loaded in layers, later layers
// overriding earlier ones:
//
//  1. Default configuration (built into the binary)
//  2. User configuration (~/.config/sight/config.yaml)
//  3. Project configuration (./.sight/config.yaml)
//
//	globalSettings:
//	  logLevel: "debug"
//	  logFormat: "json"
//	  metricsAddress: ":9090"
//	  defaultWorker: "main"
//	workers:
//	  - name: "main"
//	    kind: "loop"
//	  - name: "compute"
//	    kind: "pool"
//	    size: 4
//
// Workers merge by name: a project file can resize a pool declared by the
// user file.
//
// # Application definitions
//
// An application definition declares the workers, data objects, services,
// proxy connections and start order of one application. See AppDefinition.
//
// # Configuration trees
//
// Each service receives its own opaque configuration subtree as a *Tree.
// Services only read named children of their tree with typed accessors
// (String, Int, Bool, Duration) and never interpret the whole document.
package config
