// Package mcptool serves monster generation as Model Context Protocol tools,
// so MCP-capable assistants can ask for a stat block directly.
//
// Two tools are registered:
//
//   - generate_monster: runs the pipeline for five narrative answers and
//     returns the validated record as structured output.
//   - narrative_questions: lists the questions the answers respond to.
package mcptool

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/bestiary/internal/monster"
	"github.com/MrWong99/bestiary/internal/narrative"
	"github.com/MrWong99/bestiary/internal/observe"
	"github.com/MrWong99/bestiary/internal/pipeline"
)

const (
	serverName = "bestiary"

	// GenerateToolName is the name of the generation tool.
	GenerateToolName = "generate_monster"

	// QuestionsToolName is the name of the question listing tool.
	QuestionsToolName = "narrative_questions"
)

// GenerateInput is the input of generate_monster. Omitted answers are empty.
type GenerateInput struct {
	DarkSecret  string `json:"dark_secret,omitempty" jsonschema:"what dark secret haunts the monster's past"`
	Environment string `json:"environment,omitempty" jsonschema:"the unique environment the monster thrives in"`
	Motivation  string `json:"motivation,omitempty" jsonschema:"the monster's most unexpected motivation"`
	Interaction string `json:"interaction,omitempty" jsonschema:"how the monster interacts with other creatures"`
	Terror      string `json:"terror,omitempty" jsonschema:"what makes the monster truly terrifying"`
}

func (in GenerateInput) answers() narrative.Answers {
	return narrative.Set{
		DarkSecret:  in.DarkSecret,
		Environment: in.Environment,
		Motivation:  in.Motivation,
		Interaction: in.Interaction,
		Terror:      in.Terror,
	}.Answers()
}

// GenerateResult is the structured output of generate_monster.
type GenerateResult struct {
	RunID   string          `json:"run_id" jsonschema:"identifier of the generation run"`
	Concept string          `json:"concept" jsonschema:"the prose concept the stat block was built from"`
	Record  *monster.Record `json:"record" jsonschema:"the validated stat block"`
}

// QuestionsInput is the (empty) input of narrative_questions.
type QuestionsInput struct{}

// QuestionsResult is the structured output of narrative_questions.
type QuestionsResult struct {
	Questions []narrative.Question `json:"questions" jsonschema:"the narrative questions in answer order"`
}

// GenerateTool defines the MCP tool schema for generating a monster.
func GenerateTool() *mcp.Tool {
	return &mcp.Tool{
		Name: GenerateToolName,
		Description: "Generates a complete, validated tabletop monster stat block from five narrative answers. " +
			"Generation makes several model calls and may take a minute.",
	}
}

// QuestionsTool defines the MCP tool schema for listing the narrative questions.
func QuestionsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        QuestionsToolName,
		Description: "Lists the five narrative questions whose answers seed generate_monster.",
	}
}

// GenerateHandler runs one generation per call. A failed run becomes a tool
// error naming the failed stage and its cause.
func GenerateHandler(gen pipeline.Runner) mcp.ToolHandlerFor[GenerateInput, GenerateResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in GenerateInput) (*mcp.CallToolResult, GenerateResult, error) {
		st, err := gen.Run(ctx, in.answers())
		if st == nil || st.Record() == nil {
			if err == nil {
				err = fmt.Errorf("generation produced no monster")
			}
			return nil, GenerateResult{}, fmt.Errorf("generate monster: %w", err)
		}
		if err != nil {
			// The monster exists; only delivery to an output failed.
			observe.Logger(ctx).Warn("tool call output delivery failed", "tool", GenerateToolName, "err", err)
		}
		return nil, GenerateResult{RunID: st.RunID, Concept: st.Concept, Record: st.Record()}, nil
	}
}

// QuestionsHandler returns the fixed narrative questions.
func QuestionsHandler() mcp.ToolHandlerFor[QuestionsInput, QuestionsResult] {
	return func(context.Context, *mcp.CallToolRequest, QuestionsInput) (*mcp.CallToolResult, QuestionsResult, error) {
		return nil, QuestionsResult{Questions: narrative.Questions[:]}, nil
	}
}

// instrumented times h and counts its calls by outcome.
func instrumented[In, Out any](name string, m *observe.Metrics, h mcp.ToolHandlerFor[In, Out]) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		start := time.Now()
		res, out, err := h(ctx, req, in)
		elapsed := time.Since(start)

		status := "ok"
		log := observe.Logger(ctx)
		if err != nil {
			status = "error"
			log.Warn("tool call failed", "tool", name, "duration", elapsed, "err", err)
		} else {
			log.Info("tool call completed", "tool", name, "duration", elapsed)
		}
		m.RecordToolCall(ctx, name, status, elapsed.Seconds())
		return res, out, err
	}
}

// NewServer creates an MCP server with both tools registered.
func NewServer(gen pipeline.Runner, version string, m *observe.Metrics) *mcp.Server {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	s := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version}, nil)
	mcp.AddTool(s, GenerateTool(), instrumented(GenerateToolName, m, GenerateHandler(gen)))
	mcp.AddTool(s, QuestionsTool(), instrumented(QuestionsToolName, m, QuestionsHandler()))
	return s
}

// Serve runs s on stdio until the client disconnects or ctx ends.
func Serve(ctx context.Context, s *mcp.Server) error {
	if err := s.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcptool: serve: %w", err)
	}
	return nil
}
