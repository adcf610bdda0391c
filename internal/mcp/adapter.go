package mcp

import (
	"encoding/json"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/eino-contrib/jsonschema"
)

// ToolInfos converts the registry into eino tool schemas for the model. A
// descriptor's inputSchema is passed through so the model sees parameter
// shapes; a schema that fails to decode degrades to a parameterless tool.
func (r *Registry) ToolInfos() []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(r.order))
	for _, desc := range r.Descriptors() {
		infos = append(infos, toolInfo(desc))
	}
	return infos
}

func toolInfo(desc ToolDescriptor) *schema.ToolInfo {
	docDesc := strings.TrimSpace(desc.Description)
	if docDesc == "" {
		docDesc = desc.Name
	}

	info := &schema.ToolInfo{
		Name: desc.Name,
		Desc: docDesc,
		Extra: map[string]any{
			"server": desc.Conn.Name(),
		},
	}

	if len(desc.InputSchema) > 0 {
		js := &jsonschema.Schema{}
		if err := json.Unmarshal(desc.InputSchema, js); err == nil {
			info.ParamsOneOf = schema.NewParamsOneOfByJSONSchema(js)
		}
	}
	return info
}
