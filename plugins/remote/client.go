package remote

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/xcall/cdts"
	"github.com/wippyai/xcall/errors"
	"github.com/wippyai/xcall/handle"
	"github.com/wippyai/xcall/plugin"
)

// Dialer opens the connection to a plugin server.
type Dialer func(ctx context.Context) (io.ReadWriteCloser, error)

// Factory returns a plugin factory whose plugins reach their runtime
// through connections opened by dial.
func Factory(dial Dialer) plugin.Factory {
	return func(env plugin.Env) (plugin.Plugin, error) {
		return NewClient(dial, env), nil
	}
}

// Constructor builds remote plugins from configuration files. network
// defaults to "tcp".
func Constructor(name string, pc plugin.PluginConfig) (plugin.Factory, error) {
	if pc.Address == "" {
		return nil, errors.InvalidInput(errors.PhaseConfig, "plugin "+name+" has no address")
	}
	network := pc.Network
	if network == "" {
		network = "tcp"
	}
	return Factory(func(ctx context.Context) (io.ReadWriteCloser, error) {
		var d net.Dialer
		return d.DialContext(ctx, network, pc.Address)
	}), nil
}

// Client is a plugin whose runtime lives in another process. Requests are
// multiplexed over one connection and matched to responses by id.
type Client struct {
	dial      Dialer
	logger    *zap.Logger
	name      string
	runtimeID handle.RuntimeID

	conn    io.ReadWriteCloser
	w       *FrameWriter
	pending map[uuid.UUID]chan *Frame
	err     error
	done    chan struct{}
	mu      sync.Mutex
}

var _ plugin.Plugin = (*Client)(nil)

// NewClient creates a client. The connection is opened on Load.
func NewClient(dial Dialer, env plugin.Env) *Client {
	l := env.Logger
	if l == nil {
		l = Logger()
	}
	return &Client{
		dial:      dial,
		logger:    l.With(zap.String("plugin", env.Name)),
		name:      env.Name,
		runtimeID: env.RuntimeID,
	}
}

// Load implements plugin.Plugin. It connects and announces the runtime id
// the server must stamp on the handles it mints.
func (c *Client) Load(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return errors.Transport("dial "+c.name, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.w = NewFrameWriter(conn)
	c.pending = make(map[uuid.UUID]chan *Frame)
	c.err = nil
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.readLoop(conn, c.done)

	if _, err := c.roundTrip(ctx, &Frame{Type: FrameHello, Name: c.name, RuntimeID: uint64(c.runtimeID)}); err != nil {
		c.shutdown(conn, err)
		return err
	}
	c.logger.Debug("remote plugin connected")
	return nil
}

// Unload implements plugin.Plugin.
func (c *Client) Unload(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	_, err := c.roundTrip(ctx, &Frame{Type: FrameUnload})
	c.shutdown(conn, errors.Closed(errors.PhaseTransport, "connection"))
	return err
}

// Resolve implements plugin.Plugin.
func (c *Client) Resolve(ctx context.Context, req plugin.ResolveRequest) (plugin.Context, error) {
	resp, err := c.roundTrip(ctx, &Frame{
		Type:    FrameResolve,
		Module:  req.ModulePath,
		Entity:  req.Entity.String(),
		Params:  descriptorStrings(req.Params),
		Returns: descriptorStrings(req.Returns),
	})
	if err != nil {
		return nil, err
	}
	return plugin.ContextFunc(func(ctx context.Context, b *cdts.Block) error {
		return c.call(ctx, resp.Binding, b)
	}), nil
}

func (c *Client) call(ctx context.Context, binding uint64, b *cdts.Block) error {
	f := &Frame{Type: FrameCall, Binding: binding}
	if b != nil {
		data, err := cdts.MarshalBlock(b)
		if err != nil {
			return errors.Transport("encode block", err)
		}
		f.Block = data
	}

	resp, err := c.roundTrip(ctx, f)
	if err != nil {
		return err
	}
	if b == nil || len(b.Returns) == 0 {
		return nil
	}

	var out cdts.Block
	if err := cdts.UnmarshalBlock(resp.Block, &out); err != nil {
		return errors.Transport("decode block", err)
	}
	if len(out.Returns) != len(b.Returns) {
		return errors.Transport("server returned a block of the wrong size", nil)
	}
	copy(b.Returns, out.Returns)
	return nil
}

// roundTrip sends a request and waits for its response. Error frames become
// errors.
func (c *Client) roundTrip(ctx context.Context, f *Frame) (*Frame, error) {
	id := uuid.New()
	f.ID = id[:]
	ch := make(chan *Frame, 1)

	c.mu.Lock()
	if c.conn == nil || c.err != nil {
		err := c.err
		c.mu.Unlock()
		if err == nil {
			err = errors.Closed(errors.PhaseTransport, "connection")
		}
		return nil, err
	}
	c.pending[id] = ch
	w, done := c.w, c.done
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := w.WriteFrame(f); err != nil {
		return nil, errors.Transport("write "+f.Type.String(), err)
	}

	select {
	case resp := <-ch:
		return response(resp)
	case <-done:
		// the response may have arrived just before the connection closed
		select {
		case resp := <-ch:
			return response(resp)
		default:
		}
		c.mu.Lock()
		err := c.err
		c.mu.Unlock()
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func response(f *Frame) (*Frame, error) {
	if f.Type != FrameError {
		return f, nil
	}
	if f.Error == nil {
		return nil, errors.Transport("error frame without error", nil)
	}
	return nil, f.Error.err()
}

func (c *Client) readLoop(conn io.ReadWriteCloser, done chan struct{}) {
	r := NewFrameReader(conn)
	for {
		f, err := r.ReadFrame()
		if err != nil {
			c.shutdown(conn, errors.Transport("read", err))
			return
		}
		id, err := uuid.FromBytes(f.ID)
		if err != nil {
			c.logger.Warn("dropping frame with invalid id", zap.Stringer("type", f.Type))
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[id]
		c.mu.Unlock()
		if !ok {
			c.logger.Debug("dropping response without a pending request", zap.Stringer("id", id))
			continue
		}
		ch <- f

		select {
		case <-done:
			return
		default:
		}
	}
}

// shutdown fails pending requests with err and closes conn. Only the first
// call for the current connection has an effect.
func (c *Client) shutdown(conn io.ReadWriteCloser, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil || c.conn == nil || c.conn != conn {
		return
	}
	c.err = err
	close(c.done)
	if cerr := c.conn.Close(); cerr != nil {
		c.logger.Debug("close connection", zap.Error(cerr))
	}
}
