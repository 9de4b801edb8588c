// Package mcp implements MCP (Model Context Protocol) client support,
// allowing seibot to connect to external tool servers and surface their
// tools to the model.
//
// MCP uses JSON-RPC 2.0 over a stdio (subprocess) transport. The client
// discovers tools via tools/list and invokes them via tools/call.
// Discovered tools are owned by the bridge package, which sanitizes
// their names and normalizes their results.
//
// This implementation covers the client/host side only — seibot does
// not act as an MCP server.
package mcp
