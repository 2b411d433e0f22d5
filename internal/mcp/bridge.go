package mcpbridge

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"corrade/internal/service"
	"corrade/internal/wire"
)

type Options struct {
	App *service.App
	// Identifier is reported as the command identifier of every MCP call.
	Identifier string
}

// Bridge exposes the command dispatcher as MCP tools.
type Bridge struct {
	app        *service.App
	identifier string
	server     *mcpserver.MCPServer
}

func New(opts Options) *Bridge {
	b := &Bridge{
		app:        opts.App,
		identifier: strings.TrimSpace(opts.Identifier),
	}
	if b.identifier == "" {
		b.identifier = "mcp"
	}
	b.server = mcpserver.NewMCPServer(
		"corrade",
		opts.App.Config.Get().Agent.Version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithInstructions("Send key=value commands to the agent. Every command needs group, password and command fields."),
	)
	b.registerTools()
	return b
}

func (b *Bridge) MCPServer() *mcpserver.MCPServer {
	return b.server
}

func (b *Bridge) ServeStdio() error {
	return mcpserver.ServeStdio(b.server)
}

func (b *Bridge) HTTPHandler() http.Handler {
	return mcpserver.NewStreamableHTTPServer(
		b.server,
		mcpserver.WithEndpointPath(b.app.Config.Get().MCP.Path),
	)
}

func (b *Bridge) registerTools() {
	b.server.AddTool(mcptypes.NewTool("command",
		mcptypes.WithDescription("Run one command. The message is the wire form: filter-escaped key=value pairs joined by &."),
		mcptypes.WithString("message", mcptypes.Required(), mcptypes.Description("Encoded command, e.g. group=G&password=P&command=version")),
	), b.command)

	b.server.AddTool(mcptypes.NewTool("command_fields",
		mcptypes.WithDescription("Run one command given as plain fields. Values are escaped with the configured input filters."),
		mcptypes.WithObject("fields", mcptypes.Required(), mcptypes.Description("Command fields including group, password and command")),
	), b.commandFields)

	b.server.AddTool(mcptypes.NewTool("list_commands",
		mcptypes.WithDescription("List the command names the agent understands"),
	), b.listCommands)
}

func (b *Bridge) command(ctx context.Context, request mcptypes.CallToolRequest) (*mcptypes.CallToolResult, error) {
	message, err := request.RequireString("message")
	if err != nil {
		return mcptypes.NewToolResultError(err.Error()), nil
	}
	return b.dispatch(ctx, message), nil
}

func (b *Bridge) commandFields(ctx context.Context, request mcptypes.CallToolRequest) (*mcptypes.CallToolResult, error) {
	raw, ok := request.GetArguments()["fields"].(map[string]any)
	if !ok || len(raw) == 0 {
		return mcptypes.NewToolResultError("fields must be a non-empty object"), nil
	}
	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		fields[k] = fmt.Sprint(v)
	}
	return b.dispatch(ctx, wire.Encode(encodeInput(b.app, fields))), nil
}

func (b *Bridge) listCommands(context.Context, mcptypes.CallToolRequest) (*mcptypes.CallToolResult, error) {
	return mcptypes.NewToolResultText(wire.CSV(b.app.Commands.Names())), nil
}

func (b *Bridge) dispatch(ctx context.Context, message string) *mcptypes.CallToolResult {
	result := b.app.Dispatch(ctx, service.Request{
		Message:    message,
		Sender:     b.identifier,
		Identifier: b.identifier,
		Origin:     service.OriginMCP,
	})
	if result == nil {
		return mcptypes.NewToolResultError("request dropped")
	}
	text := b.app.EncodeResult(result)
	if result["success"] != "True" {
		return mcptypes.NewToolResultError(text)
	}
	return mcptypes.NewToolResultText(text)
}

// encodeInput escapes plain values so the dispatcher's input filters
// decode them back to what the caller sent.
func encodeInput(app *service.App, fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = app.Pipeline.EncodeInput(v)
	}
	return out
}
