package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// MCPServerSpec describes how to launch a single MCP server subprocess.
type MCPServerSpec struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env"`
}

// mcpServersDoc mirrors the on-disk JSON document. Both "mcpServers"
// (the conventional key) and "servers" are accepted.
type mcpServersDoc struct {
	MCPServers map[string]MCPServerSpec `json:"mcpServers"`
	Servers    map[string]MCPServerSpec `json:"servers"`
}

// LoadMCPServers reads the MCP server document at path. A missing file
// is not an error — it returns an empty map so the caller degrades to
// zero external tools. A present but unparsable file is an error.
func LoadMCPServers(path string) (map[string]MCPServerSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]MCPServerSpec{}, nil
		}
		return nil, fmt.Errorf("read MCP servers file: %w", err)
	}

	// Same treatment as the YAML config: env references in the document
	// (for example server API keys) are expanded before parsing.
	expanded := os.ExpandEnv(string(data))

	var doc mcpServersDoc
	if err := json.Unmarshal([]byte(expanded), &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if len(doc.MCPServers) > 0 {
		return doc.MCPServers, nil
	}
	if len(doc.Servers) > 0 {
		return doc.Servers, nil
	}
	return map[string]MCPServerSpec{}, nil
}
