// Package bridge owns every connection to external MCP tool servers.
//
// All MCP I/O happens on a single actor goroutine that owns the clients,
// the tool table, and the name maps. The public methods are a blocking,
// goroutine-safe facade: each one marshals a closure onto the actor's
// job channel and waits for it to run. External servers are untrusted
// and slow; confining them to one goroutine keeps the rest of the
// system free of their failure modes.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/tranminh/seibot/internal/config"
	"github.com/tranminh/seibot/internal/mcp"
	"github.com/tranminh/seibot/internal/tools"
)

// toolServer is the slice of the MCP client the bridge drives. Tests
// substitute fakes.
type toolServer interface {
	Initialize(ctx context.Context) error
	ListTools(ctx context.Context) ([]mcp.ToolDefinition, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	Close() error
}

// connectFunc builds a client for one configured server entry.
type connectFunc func(name string, spec config.MCPServerSpec) toolServer

// entry ties a sanitized tool name back to its owning server.
type entry struct {
	server string
	tool   string
	desc   tools.Descriptor
}

// Bridge is the external tool registry. Zero value is not usable; use New.
type Bridge struct {
	specs   map[string]config.MCPServerSpec
	connect connectFunc
	logger  *slog.Logger

	jobs      chan func()
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	// Actor-owned state. Only the run goroutine touches these.
	clients   map[string]toolServer
	entries   map[string]entry // sanitized name -> entry
	order     []string         // sanitized names in discovery order
	sanToFull map[string]string
	fullToSan map[string]string
	started   bool
}

// New creates a bridge over the given server specs and starts its actor
// goroutine. No connections are made until Start.
func New(specs map[string]config.MCPServerSpec, logger *slog.Logger) *Bridge {
	return newBridge(specs, logger, nil)
}

// newBridge lets tests inject a fake connector.
func newBridge(specs map[string]config.MCPServerSpec, logger *slog.Logger, connect connectFunc) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{
		specs:     specs,
		connect:   connect,
		logger:    logger.With("component", "bridge"),
		jobs:      make(chan func()),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
		clients:   make(map[string]toolServer),
		entries:   make(map[string]entry),
		sanToFull: make(map[string]string),
		fullToSan: make(map[string]string),
	}
	if b.connect == nil {
		b.connect = func(name string, spec config.MCPServerSpec) toolServer {
			return mcp.NewClient(name, mcp.NewStdioTransport(mcp.StdioConfig{
				Command: spec.Command,
				Args:    spec.Args,
				Env:     spec.Env,
				Logger:  b.logger,
			}), b.logger)
		}
	}
	go b.run()
	return b
}

// run is the actor loop.
func (b *Bridge) run() {
	defer close(b.stopped)
	for {
		select {
		case job := <-b.jobs:
			job()
		case <-b.done:
			for name, c := range b.clients {
				if err := c.Close(); err != nil {
					b.logger.Warn("closing mcp server", "server", name, "error", err)
				}
			}
			b.clients = nil
			return
		}
	}
}

// do runs fn on the actor goroutine and waits for it to finish.
func (b *Bridge) do(fn func()) {
	ran := make(chan struct{})
	select {
	case b.jobs <- func() { fn(); close(ran) }:
		<-ran
	case <-b.done:
	}
}

// Start connects every configured server and lists its tools. A server
// that fails to launch, handshake, or list contributes zero tools — the
// failure is logged, never returned. Calling Start again after a
// successful start is a no-op.
func (b *Bridge) Start(ctx context.Context) {
	b.do(func() {
		if b.started {
			return
		}
		for name, spec := range b.specs {
			if spec.Command == "" {
				b.logger.Warn("mcp server missing command, skipping", "server", name)
				continue
			}
			if err := b.connectAndList(ctx, name, spec); err != nil {
				b.logger.Warn("mcp server unavailable", "server", name, "error", err)
			}
		}
		b.started = true
		b.logger.Info("bridge started", "servers", len(b.clients), "tools", len(b.entries))
	})
}

// connectAndList runs on the actor goroutine.
func (b *Bridge) connectAndList(ctx context.Context, name string, spec config.MCPServerSpec) error {
	client := b.connect(name, spec)
	if err := client.Initialize(ctx); err != nil {
		client.Close()
		return fmt.Errorf("initialize: %w", err)
	}
	defs, err := client.ListTools(ctx)
	if err != nil {
		client.Close()
		return fmt.Errorf("list tools: %w", err)
	}

	b.clients[name] = client
	for _, def := range defs {
		full := name + ":" + def.Name
		san := sanitizeName(full)
		if _, dup := b.entries[san]; dup {
			b.logger.Warn("duplicate tool name, keeping first", "tool", full)
			continue
		}
		b.sanToFull[san] = full
		b.fullToSan[full] = san
		b.entries[san] = entry{
			server: name,
			tool:   def.Name,
			desc: tools.Descriptor{
				Name:        san,
				Description: def.Description,
				InputSchema: def.InputSchema,
				Origin:      tools.OriginExternal,
			},
		}
		b.order = append(b.order, san)
	}
	b.logger.Info("mcp server ready", "server", name, "tools", len(defs))
	return nil
}

// Catalog returns a snapshot of every known external tool descriptor in
// discovery order.
func (b *Bridge) Catalog() []tools.Descriptor {
	var out []tools.Descriptor
	b.do(func() {
		out = make([]tools.Descriptor, 0, len(b.order))
		for _, san := range b.order {
			out = append(out, b.entries[san].desc)
		}
	})
	return out
}

// IsKnown reports whether name (sanitized or server:tool form) resolves
// to a registered external tool.
func (b *Bridge) IsKnown(name string) bool {
	var known bool
	b.do(func() {
		_, known = b.resolve(name)
	})
	return known
}

// resolve maps a sanitized or full name to its entry. Actor goroutine only.
func (b *Bridge) resolve(name string) (entry, bool) {
	if e, ok := b.entries[name]; ok {
		return e, true
	}
	if san, ok := b.fullToSan[name]; ok {
		return b.entries[san], true
	}
	return entry{}, false
}

// Invoke calls an external tool and normalizes whatever comes back into
// a Result. It never returns a Go error: unknown names, transport
// failures, and malformed replies all become error results the model
// can read.
func (b *Bridge) Invoke(ctx context.Context, name string, args map[string]any) tools.Result {
	var res tools.Result
	b.do(func() {
		e, ok := b.resolve(name)
		if !ok {
			res = tools.Errorf("unknown tool: %s", name)
			return
		}
		client, ok := b.clients[e.server]
		if !ok {
			res = tools.Errorf("server %q not connected", e.server)
			return
		}
		raw, err := client.CallTool(ctx, e.tool, args)
		if err != nil {
			res = tools.Errorf("%s:%s: %v", e.server, e.tool, err)
			return
		}
		res = normalizeResult(raw)
	})
	return res
}

// imageHintWords pair with "table" to flag a tool that draws tables.
var imageHintWords = []string{"image", "png", "render", "plot", "chart"}

// FindImageTableTool scans the catalog for a tool that appears to
// render tabular data to an image and returns its sanitized name, or ""
// when none matches.
func (b *Bridge) FindImageTableTool() string {
	var found string
	b.do(func() {
		for _, san := range b.order {
			e := b.entries[san]
			nm := strings.ToLower(e.desc.Name)
			desc := strings.ToLower(e.desc.Description)
			if !strings.Contains(nm, "table") && !strings.Contains(desc, "table") {
				continue
			}
			for _, hint := range imageHintWords {
				if strings.Contains(nm, hint) || strings.Contains(desc, hint) {
					found = san
					return
				}
			}
		}
	})
	return found
}

// Close stops the actor and tears down every client, blocking until
// teardown completes. Safe to call more than once.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() { close(b.done) })
	<-b.stopped
}

var (
	invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
	underscoreRuns   = regexp.MustCompile(`_+`)
)

// sanitizeName transliterates a server:tool pair into the restricted
// character set the model API accepts for tool names.
func sanitizeName(full string) string {
	s := invalidNameChars.ReplaceAllString(full, "_")
	s = underscoreRuns.ReplaceAllString(s, "_")
	if len(s) > 128 {
		s = s[:128]
	}
	return s
}
