package tools

import "testing"

func names(ds []Descriptor) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Name
	}
	return out
}

func TestAssemble(t *testing.T) {
	local := []Descriptor{
		WebSearch(),
		MakeTableImage(),
	}
	external := []Descriptor{
		{Name: "sei:get_chain_status", Description: "Current chain status", Origin: OriginExternal},
		{Name: "sei:search_docs", Description: "Search SEI documentation", Origin: OriginExternal},
	}

	tests := []struct {
		name     string
		local    []Descriptor
		external []Descriptor
		gates    Gates
		want     []string
	}{
		{
			name:     "live data suppresses web search",
			local:    local,
			external: external,
			gates:    Gates{NeedLiveData: true, NeedWebSearch: true},
			want:     []string{"make_table_image", "sei:get_chain_status"},
		},
		{
			name:     "web search kept without external tools",
			local:    local,
			external: nil,
			gates:    Gates{NeedLiveData: true, NeedWebSearch: true},
			want:     []string{"web_search", "make_table_image"},
		},
		{
			name:     "search gate closed drops web search",
			local:    local,
			external: nil,
			gates:    Gates{},
			want:     []string{"make_table_image"},
		},
		{
			name:     "docs gate opens documentation tools",
			local:    local,
			external: external,
			gates:    Gates{NeedDocs: true},
			want:     []string{"make_table_image", "sei:get_chain_status", "sei:search_docs"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := names(Assemble(tt.local, tt.external, tt.gates))
			if len(got) != len(tt.want) {
				t.Fatalf("catalog = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("catalog[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestAssembleDedupesAndDropsNameless(t *testing.T) {
	local := []Descriptor{
		{Name: "make_table_image", Origin: OriginLocalClient},
	}
	external := []Descriptor{
		{Name: "MAKE_TABLE_IMAGE", Description: "duplicate, different case", Origin: OriginExternal},
		{Name: "", Description: "nameless", Origin: OriginExternal},
		{Name: "sei:get_validators", Origin: OriginExternal},
	}

	got := Assemble(local, external, Gates{NeedLiveData: true})
	want := []string{"make_table_image", "sei:get_validators"}
	if len(got) != len(want) {
		t.Fatalf("catalog = %v, want %v", names(got), want)
	}
	for i, d := range got {
		if d.Name != want[i] {
			t.Errorf("catalog[%d] = %q, want %q", i, d.Name, want[i])
		}
	}
	// First occurrence wins, so the local origin survives.
	if got[0].Origin != OriginLocalClient {
		t.Errorf("duplicate collapsed to wrong entry")
	}
}
