// Package runtime is the host side of the bridge: it resolves entity paths
// against loaded plugins, invokes the resulting bindings and exports host
// functions that foreign runtimes can call back.
//
// # Usage
//
//	b := runtime.NewBridge()
//	defer b.Close(ctx)
//
//	b.Registry().Register("go", mods.Factory()) // mods is a *gohost.Registry
//	rt := b.Runtime("go")
//	if err := rt.LoadRuntimePlugin(ctx); err != nil {
//		return err
//	}
//	defer rt.ReleaseRuntimePlugin(ctx)
//
//	caller, err := rt.LoadModule("math").Load(ctx, "callable=add",
//		[]types.Descriptor{types.Int64, types.Int64},
//		[]types.Descriptor{types.Int64})
//	out, err := caller.Call(ctx, 1, 2) // out == []any{int64(3)}
//
// # Calls
//
// A Caller performs every call in the same order: the argument count is
// checked before anything is allocated, a transfer block is allocated only
// when the binding has parameters or returns, parameters are filled,
// exactly one of the four dispatch entry points runs, and return slots are
// drained in declared order. The block goes back to its arena on every exit
// path. Failures raised by the foreign side come back as ForeignCallFailed
// with the foreign text unchanged.
//
// Callers and CallContexts are immutable and safe for concurrent use as long
// as the plugin behind them tolerates concurrent entry.
//
// # Handles and callbacks
//
// Handles are opaque. The bridge never finalizes them: a handle lives until
// the foreign "release" binding is called or its plugin is torn down, and
// forgetting to release one leaks the foreign object. Host functions exported
// with Host.Export travel as handles owned by the host and are invoked back
// through Host.InvokeCallable.
package runtime
