package codegen

// fileData holds everything needed to render one generated workflow script.
type fileData struct {
	FlowName    string
	PackageName string
	SDKImport   string
	EntryName   string
	InputParam  string
	InputType   string
	Records     []recordData
	Agents      []agentData
	Tools       []toolData
	Body        []string
}

// recordData renders one structured record type.
type recordData struct {
	Name   string
	Fields []recordFieldData
}

type recordFieldData struct {
	Name string
	Type string
	Tag  string
}

// agentData renders one file-scope delegate construction. Options are
// pre-rendered sdk option calls.
type agentData struct {
	VarName string
	Options []string
}

// toolData renders one tool-function stub delegating to the registry.
type toolData struct {
	FuncName string
	Params   string
	Results  string
	Body     []string
}

const fileTemplate = `// Generated from workflow "{{ .FlowName }}".
package {{ .PackageName }}

import (
	"context"

	"{{ .SDKImport }}"
)

{{ range .Records -}}
type {{ .Name }} struct {
{{- range .Fields }}
	{{ .Name }} {{ .Type }} ` + "`{{ .Tag }}`" + `
{{- end }}
}

{{ end -}}
{{ range .Agents -}}
var {{ .VarName }} = sdk.NewAgent(
{{- range .Options }}
	{{ . }},
{{- end }}
)

{{ end -}}
{{ range .Tools -}}
func {{ .FuncName }}(ctx context.Context, tools sdk.ToolRegistry{{ .Params }}) ({{ .Results }}) {
{{- range .Body }}
	{{ . }}
{{- end }}
}

{{ end -}}
// {{ .EntryName }} runs the "{{ .FlowName }}" workflow.
func {{ .EntryName }}(ctx context.Context{{ if .InputType }}, {{ .InputParam }} {{ .InputType }}{{ end }}, tools sdk.ToolRegistry) (map[string]any, error) {
	return sdk.Trace(ctx, "{{ .FlowName }}", func(ctx context.Context) (map[string]any, error) {
{{- range .Body }}
		{{ . }}
{{- end }}
	})
}
`
