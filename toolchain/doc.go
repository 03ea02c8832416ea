// Package toolchain maps tool calls requested by the model onto the query and export
// capabilities.
//
// Tools form a closed set: [*QueryTool] and [*ExportTool]. Anything else is unknown. The
// [Registry] resolves a request to one of them, validates the arguments against the tool's
// JSON Schema, decodes them into the tool's typed argument record and runs it. Dispatch never
// returns an error; every failure becomes the error descriptor of the ToolCallResult so the
// model can correct itself.
//
//	tools := toolchain.NewRegistry(toolchain.Config{Logger: logger}).
//	    Register(toolchain.NewQueryTool(g, pool, s)).
//	    Register(toolchain.NewExportTool(g, pool, sink))
//
//	result := tools.Dispatch(ctx, analyst.ToolCallRequest{
//	    ID:        "call_1",
//	    Name:      "query_database",
//	    Arguments: map[string]any{"sql": "SELECT COUNT(*) FROM events LIMIT 1"},
//	})
//
// Query tools always pass SQL through the guard first; a rejected statement never reaches
// the executor. Export tools persist rows to a sink and return only a receipt.
package toolchain
