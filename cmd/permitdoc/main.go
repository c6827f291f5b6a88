// Package main generates the wire contract documentation for permission
// providers. It emits a JSON Schema per wire shape plus a Markdown contract
// page covering channels, methods, error codes and the capability
// vocabulary. Native hosts implement against these artifacts.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/go-permit/permit/pkg/permit"
)

// QueryArgs is the payload of the query method on the permissions channel.
type QueryArgs struct {
	Name            string `json:"name" jsonschema:"required,description=Capability name being queried"`
	Sysex           *bool  `json:"sysex,omitempty" jsonschema:"description=MIDI only: whether system-exclusive access is requested"`
	UserVisibleOnly *bool  `json:"userVisibleOnly,omitempty" jsonschema:"description=Push only: whether the subscription is restricted to user-visible pushes"`
}

// QueryResult is the provider's answer to a query.
type QueryResult struct {
	State string `json:"state" jsonschema:"required,enum=granted,enum=prompt,enum=denied,description=Current decision for the capability"`
	ID    string `json:"id,omitempty" jsonschema:"description=Stable descriptor id for the capability"`
}

// ChangeEvent is one notification on the changes event channel.
type ChangeEvent struct {
	Name  string `json:"name" jsonschema:"required,description=Capability whose decision moved"`
	State string `json:"state" jsonschema:"required,enum=granted,enum=prompt,enum=denied,description=New decision"`
}

// WireError is the structured error a provider returns for a failed query.
type WireError struct {
	Code    string `json:"code" jsonschema:"required,enum=unsupported_permission,enum=invalid_request,description=Machine-readable failure class"`
	Message string `json:"message,omitempty" jsonschema:"description=Human-readable detail"`
	Details any    `json:"details,omitempty" jsonschema:"description=Provider-specific extra data"`
}

// shapes lists every wire shape to document, in contract order.
var shapes = []struct {
	Name  string
	Value any
}{
	{Name: "query_args", Value: &QueryArgs{}},
	{Name: "query_result", Value: &QueryResult{}},
	{Name: "change_event", Value: &ChangeEvent{}},
	{Name: "wire_error", Value: &WireError{}},
}

func main() {
	out := flag.String("out", filepath.Join("docs", "wire"), "output directory for contract artifacts")
	flag.Parse()

	if err := os.MkdirAll(*out, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}

	for _, shape := range shapes {
		data, err := generateSchema(shape.Value)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating schema for %s: %v\n", shape.Name, err)
			os.Exit(1)
		}
		path := filepath.Join(*out, shape.Name+".schema.json")
		if err := os.WriteFile(path, data, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %s\n", path)
	}

	contractPath := filepath.Join(*out, "contract.md")
	if err := os.WriteFile(contractPath, []byte(contractPage()), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", contractPath, err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s\n", contractPath)
}

// generateSchema reflects a wire shape into a JSON Schema (Draft 2020-12).
func generateSchema(v any) ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true, // inline the struct instead of a $defs reference
	}
	schema := reflector.Reflect(v)

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}

// contractPage renders the human-readable side of the contract.
func contractPage() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Permission provider wire contract\n\n")
	fmt.Fprintf(&b, "A provider serves one method channel and one event channel through the host bridge.\n\n")

	fmt.Fprintf(&b, "## Channels\n\n")
	fmt.Fprintf(&b, "| Channel | Kind | Purpose |\n")
	fmt.Fprintf(&b, "|---------|------|---------|\n")
	fmt.Fprintf(&b, "| `%s` | method | `query` resolves the current decision for one capability |\n", permit.ChannelName)
	fmt.Fprintf(&b, "| `%s` | event | pushes a `change_event` whenever a decision moves |\n\n", permit.ChangesChannelName)

	fmt.Fprintf(&b, "## Methods\n\n")
	fmt.Fprintf(&b, "### query\n\n")
	fmt.Fprintf(&b, "Takes `query_args`, answers `query_result`. The provider validates the\n")
	fmt.Fprintf(&b, "request; the client passes it through untouched. Failures carry a\n")
	fmt.Fprintf(&b, "`wire_error` with one of the codes below.\n\n")

	fmt.Fprintf(&b, "## Error codes\n\n")
	fmt.Fprintf(&b, "| Code | Meaning |\n")
	fmt.Fprintf(&b, "|------|---------|\n")
	fmt.Fprintf(&b, "| `%s` | the capability name is not recognized in this environment |\n", permit.CodeUnsupportedPermission)
	fmt.Fprintf(&b, "| `%s` | the request failed shape or type validation |\n\n", permit.CodeInvalidRequest)
	fmt.Fprintf(&b, "Codes outside this table are treated as `%s` by clients.\n\n", permit.CodeInvalidRequest)

	fmt.Fprintf(&b, "## Capability vocabulary\n\n")
	fmt.Fprintf(&b, "Providers may extend this set; clients forward unknown names as-is.\n\n")
	for _, name := range permit.Names() {
		fmt.Fprintf(&b, "- `%s`\n", name)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## Schemas\n\n")
	for _, shape := range shapes {
		fmt.Fprintf(&b, "- [`%s`](./%s.schema.json)\n", shape.Name, shape.Name)
	}

	return b.String()
}
