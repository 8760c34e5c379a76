package remote

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/xcall/cdts"
	"github.com/wippyai/xcall/entity"
	"github.com/wippyai/xcall/errors"
	"github.com/wippyai/xcall/handle"
	"github.com/wippyai/xcall/plugin"
)

// Server exposes plugins built by a factory to remote clients. Each
// connection gets its own plugin instance, created on the client's hello.
type Server struct {
	factory plugin.Factory
	logger  *zap.Logger
}

// NewServer creates a server. A nil logger uses the package logger.
func NewServer(factory plugin.Factory, logger *zap.Logger) *Server {
	if logger == nil {
		logger = Logger()
	}
	return &Server{factory: factory, logger: logger}
}

// Serve accepts connections until ctx is done or the listener fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})
	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			g.Go(func() error {
				if err := s.ServeConn(ctx, conn); err != nil {
					s.logger.Warn("connection ended", zap.Error(err))
				}
				return nil
			})
		}
	})
	return g.Wait()
}

// ServeConn handles one client until it unloads or the connection closes.
// Calls run concurrently; resolves and the unload are handled in order.
func (s *Server) ServeConn(ctx context.Context, conn io.ReadWriteCloser) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	sc := &serverConn{
		server:   s,
		r:        NewFrameReader(conn),
		w:        NewFrameWriter(conn),
		bindings: make(map[uint64]plugin.Context),
	}
	return sc.run(ctx)
}

type serverConn struct {
	server *Server
	r      *FrameReader
	w      *FrameWriter
	plugin plugin.Plugin
	logger *zap.Logger

	bindings map[uint64]plugin.Context
	next     uint64
	mu       sync.RWMutex
}

func (sc *serverConn) run(ctx context.Context) error {
	hello, err := sc.r.ReadFrame()
	if err != nil {
		return err
	}
	if hello.Type != FrameHello {
		return sc.fail(hello, errors.Transport("expected HELLO, got "+hello.Type.String(), nil))
	}
	if err := sc.hello(ctx, hello); err != nil {
		return err
	}

	var g errgroup.Group
	defer g.Wait()

	for {
		f, err := sc.r.ReadFrame()
		if err != nil {
			g.Wait()
			sc.unload(ctx)
			if stderrors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		switch f.Type {
		case FrameResolve:
			if err := sc.resolve(ctx, f); err != nil {
				return err
			}
		case FrameCall:
			g.Go(func() error {
				return sc.call(ctx, f)
			})
		case FrameUnload:
			if err := g.Wait(); err != nil {
				return err
			}
			if err := sc.unload(ctx); err != nil {
				return sc.fail(f, err)
			}
			return sc.w.WriteFrame(&Frame{Type: FrameResult, ID: f.ID})
		default:
			if err := sc.fail(f, errors.Transport("unexpected "+f.Type.String(), nil)); err != nil {
				return err
			}
		}
	}
}

func (sc *serverConn) hello(ctx context.Context, f *Frame) error {
	sc.logger = sc.server.logger.With(zap.String("plugin", f.Name))
	p, err := sc.server.factory(plugin.Env{
		Name:      f.Name,
		RuntimeID: handle.RuntimeID(f.RuntimeID),
		Logger:    sc.logger,
	})
	if err != nil {
		return sc.fail(f, errors.Wrap(errors.PhaseLoad, errors.KindPluginNotLoaded, err, "factory failed"))
	}
	if err := p.Load(ctx); err != nil {
		return sc.fail(f, errors.Wrap(errors.PhaseLoad, errors.KindPluginNotLoaded, err, "load failed"))
	}
	sc.plugin = p
	sc.logger.Debug("client connected", zap.Uint64("runtime_id", f.RuntimeID))
	return sc.w.WriteFrame(&Frame{Type: FrameResult, ID: f.ID})
}

func (sc *serverConn) unload(ctx context.Context) error {
	if sc.plugin == nil {
		return nil
	}
	p := sc.plugin
	sc.plugin = nil
	sc.mu.Lock()
	sc.bindings = make(map[uint64]plugin.Context)
	sc.mu.Unlock()
	return p.Unload(ctx)
}

func (sc *serverConn) resolve(ctx context.Context, f *Frame) error {
	path, err := entity.Parse(f.Entity)
	if err != nil {
		return sc.fail(f, err)
	}
	params, err := parseDescriptors(f.Params)
	if err != nil {
		return sc.fail(f, errors.Wrap(errors.PhaseParse, errors.KindMalformedSpec, err, "parameter descriptors"))
	}
	returns, err := parseDescriptors(f.Returns)
	if err != nil {
		return sc.fail(f, errors.Wrap(errors.PhaseParse, errors.KindMalformedSpec, err, "return descriptors"))
	}
	if sc.plugin == nil {
		return sc.fail(f, errors.PluginNotLoaded(errors.PhaseResolve, f.Module))
	}

	pc, err := sc.plugin.Resolve(ctx, plugin.ResolveRequest{
		ModulePath: f.Module,
		Entity:     path,
		Params:     params,
		Returns:    returns,
	})
	if err != nil {
		return sc.fail(f, err)
	}

	sc.mu.Lock()
	sc.next++
	id := sc.next
	sc.bindings[id] = pc
	sc.mu.Unlock()

	sc.logger.Debug("binding resolved", zap.String("module", f.Module), zap.String("entity", f.Entity), zap.Uint64("binding", id))
	return sc.w.WriteFrame(&Frame{Type: FrameResult, ID: f.ID, Binding: id})
}

func (sc *serverConn) call(ctx context.Context, f *Frame) error {
	sc.mu.RLock()
	pc, ok := sc.bindings[f.Binding]
	sc.mu.RUnlock()
	if !ok {
		return sc.fail(f, errors.Closed(errors.PhaseDispatch, "binding"))
	}

	if f.Block == nil {
		if err := pc.CallNoParamsNoRet(ctx); err != nil {
			return sc.fail(f, err)
		}
		return sc.w.WriteFrame(&Frame{Type: FrameResult, ID: f.ID})
	}

	var b cdts.Block
	if err := cdts.UnmarshalBlock(f.Block, &b); err != nil {
		return sc.fail(f, errors.Transport("decode block", err))
	}

	var err error
	switch {
	case len(b.Params) > 0 && len(b.Returns) > 0:
		err = pc.CallParamsRet(ctx, &b)
	case len(b.Params) > 0:
		err = pc.CallParamsNoRet(ctx, &b)
	default:
		err = pc.CallNoParamsRet(ctx, &b)
	}
	if err != nil {
		return sc.fail(f, err)
	}

	data, err := cdts.MarshalBlock(&cdts.Block{Returns: b.Returns})
	if err != nil {
		return sc.fail(f, errors.Transport("encode block", err))
	}
	return sc.w.WriteFrame(&Frame{Type: FrameResult, ID: f.ID, Block: data})
}

// fail answers f with err. Only a write failure is returned.
func (sc *serverConn) fail(f *Frame, err error) error {
	return sc.w.WriteFrame(&Frame{Type: FrameError, ID: f.ID, Error: toWireError(err)})
}
