// Command xcall loads a plugin from a bridge configuration file and calls
// one entity, lets the user pick an export interactively, or serves a
// configured plugin to remote bridges.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"github.com/wippyai/xcall/plugin"
	"github.com/wippyai/xcall/plugins/remote"
	"github.com/wippyai/xcall/plugins/wasm"
	"github.com/wippyai/xcall/runtime"
	"github.com/wippyai/xcall/types"
)

// kinds are the plugin kinds a configuration file may name.
var kinds = map[string]plugin.Constructor{
	"wasm":   wasm.Constructor,
	"remote": remote.Constructor,
}

func main() {
	var (
		configFile = flag.String("config", "xcall.toml", "Bridge configuration file")
		pluginName = flag.String("plugin", "", "Plugin to load")
		modulePath = flag.String("module", "", "Module path inside the plugin")
		entitySpec = flag.String("entity", "", "Entity path, e.g. callable=add")
		params     = flag.String("params", "", "Parameter descriptors (int64,string8[],...)")
		returns    = flag.String("returns", "", "Return descriptors")
		serve      = flag.String("serve", "", "Serve -plugin on this TCP address instead of calling")
		interact   = flag.Bool("i", false, "Pick an export of -module interactively")
		verbose    = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	if *pluginName == "" || (*serve == "" && !*interact && *entitySpec == "") {
		fmt.Fprintln(os.Stderr, "Usage: xcall -config <file> -plugin <name> -module <path> -entity <spec> [-params d,...] [-returns d,...] [args...]")
		fmt.Fprintln(os.Stderr, "       xcall -config <file> -plugin <name> -module <path> -i")
		fmt.Fprintln(os.Stderr, "       xcall -config <file> -plugin <name> -serve <addr>")
		os.Exit(1)
	}

	logger, err := newLogger(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out := newPrinter(os.Stdout)
	switch {
	case *serve != "":
		err = runServer(ctx, logger, *configFile, *pluginName, *serve)
	case *interact:
		err = runInteractive(ctx, logger, *configFile, *pluginName, *modulePath)
	default:
		err = run(ctx, logger, out, callFlags{
			config:  *configFile,
			plugin:  *pluginName,
			module:  *modulePath,
			entity:  *entitySpec,
			params:  *params,
			returns: *returns,
			args:    flag.Args(),
		})
	}
	if err != nil {
		out.failure(err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if !verbose {
		return zap.NewNop(), nil
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

type callFlags struct {
	config  string
	plugin  string
	module  string
	entity  string
	params  string
	returns string
	args    []string
}

// session is a bridge with one runtime plugin loaded.
type session struct {
	bridge *runtime.Bridge
	rt     *runtime.Runtime
}

func openSession(ctx context.Context, logger *zap.Logger, configFile, name string) (*session, error) {
	cfg, err := plugin.LoadConfig(configFile)
	if err != nil {
		return nil, err
	}
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}

	bridge := runtime.NewBridge(runtime.WithLogger(logger), runtime.WithPolicy(policy))
	if err := cfg.Apply(bridge.Registry(), kinds); err != nil {
		bridge.Close(ctx)
		return nil, err
	}
	rt := bridge.Runtime(name)
	if err := rt.LoadRuntimePlugin(ctx); err != nil {
		bridge.Close(ctx)
		return nil, err
	}
	return &session{bridge: bridge, rt: rt}, nil
}

func (s *session) Close(ctx context.Context) {
	s.rt.ReleaseRuntimePlugin(ctx)
	s.bridge.Close(ctx)
}

func run(ctx context.Context, logger *zap.Logger, out *printer, f callFlags) error {
	paramTypes, err := types.ParseList(f.params)
	if err != nil {
		return fmt.Errorf("params: %w", err)
	}
	returnTypes, err := types.ParseList(f.returns)
	if err != nil {
		return fmt.Errorf("returns: %w", err)
	}
	args, err := parseArgs(f.args, paramTypes)
	if err != nil {
		return err
	}

	sess, err := openSession(ctx, logger, f.config, f.plugin)
	if err != nil {
		return err
	}
	defer sess.Close(ctx)

	caller, err := sess.rt.LoadModule(f.module).Load(ctx, f.entity, paramTypes, returnTypes)
	if err != nil {
		return err
	}
	out.binding(caller.Context())

	results, err := caller.Call(ctx, args...)
	if err != nil {
		return err
	}
	out.results(returnTypes, results)
	return nil
}

func runServer(ctx context.Context, logger *zap.Logger, configFile, name, addr string) error {
	cfg, err := plugin.LoadConfig(configFile)
	if err != nil {
		return err
	}
	pc, ok := cfg.Plugins[name]
	if !ok {
		return fmt.Errorf("plugin %s is not configured", name)
	}
	ctor, ok := kinds[pc.Kind]
	if !ok {
		return fmt.Errorf("plugin %s: unknown kind %q", name, pc.Kind)
	}
	factory, err := ctor(name, pc)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	logger.Info("serving plugin", zap.String("plugin", name), zap.Stringer("addr", ln.Addr()))
	return remote.NewServer(factory, logger).Serve(ctx, ln)
}
