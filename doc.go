// Package xcall is a cross-runtime call bridge: a host resolves entities
// (functions, methods, fields, globals) living in foreign runtimes by a
// textual path and calls them through a typed transfer block.
//
// # Architecture Overview
//
// The module is organized into packages with distinct responsibilities:
//
//	xcall/
//	├── types/           Type descriptors, their text form and Go mapping
//	├── entity/          Entity path parsing and shape checks
//	├── handle/          Opaque object handles, owner tables and policies
//	├── cdts/            Transfer blocks: arena, fill/drain, CBOR wire form
//	├── errors/          Structured error types
//	├── plugin/          Plugin contract, ref-counted registry, TOML config
//	├── runtime/         Resolver, Caller, host callable export, Bridge
//	├── plugins/gohost/  In-process plugin over registered Go values
//	├── plugins/wasm/    WebAssembly plugin on wazero
//	├── plugins/remote/  Out-of-process plugin over CBOR frames
//	└── cmd/xcall/       Command line front-end
//
// # Quick Start
//
//	b := runtime.NewBridge()
//	defer b.Close(ctx)
//
//	b.Registry().Register("wasm", wasm.Factory(wasm.Config{
//	    Modules: map[string]string{"calc": "calc.wasm"},
//	}))
//	rt := b.Runtime("wasm")
//	if err := rt.LoadRuntimePlugin(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	add, err := rt.LoadModule("calc").Load(ctx, "callable=add",
//	    []types.Descriptor{types.Int32, types.Int32},
//	    []types.Descriptor{types.Int32})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out, err := add.Call(ctx, 1, 2) // []any{int32(3)}
//
// # Entity Paths
//
// An entity path is "<category>=<name>" followed by comma separated
// modifiers, e.g. "callable=Point.Norm1,instance_required" or
// "field=Config.level,instance_required,getter". Constructors are named
// "<Type>.<init>".
//
// # Thread Safety
//
// Bridges, Callers and registries are safe for concurrent use. Whether two
// calls may run inside one foreign runtime at the same time is up to its
// plugin; the wasm plugin serializes calls per module instance.
//
// # Object Lifetime
//
// Handles are never collected. An object lives until the plugin's
// "release" binding is called with its handle or the plugin is unloaded.
package xcall
