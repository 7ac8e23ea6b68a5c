package mcptool_test

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/bestiary/internal/mcptool"
	"github.com/MrWong99/bestiary/internal/monster"
	"github.com/MrWong99/bestiary/internal/narrative"
	"github.com/MrWong99/bestiary/internal/observe"
	"github.com/MrWong99/bestiary/internal/pipeline"
	"github.com/MrWong99/bestiary/internal/stage"
)

type runFunc func(ctx context.Context, a narrative.Answers) (*pipeline.State, error)

func (f runFunc) Run(ctx context.Context, a narrative.Answers) (*pipeline.State, error) {
	return f(ctx, a)
}

func testRecord() *monster.Record {
	return &monster.Record{
		Name:       "Ash Moth Queen",
		Size:       monster.SizeHuge,
		Type:       "Monstrosity",
		Alignment:  "Neutral Evil",
		ArmorClass: 16,
		HitPoints:  150,
		Abilities: monster.Abilities{
			Strength: 16, Dexterity: 18, Constitution: 15,
			Intelligence: 9, Wisdom: 14, Charisma: 17,
		},
		Speed:            monster.Speed{"walk": 20, "fly": 60},
		SpecialAbilities: []monster.Feature{{Name: "Cinder Dust", Description: "Creatures within 10 feet are blinded."}},
		Actions:          []monster.Feature{{Name: "Wing Buffet", Description: "+8 to hit, 3d6+4 bludgeoning."}},
		Lore:             "Burned forests are her nurseries.",
	}
}

// connect serves s over in-memory transports and returns a client session.
func connect(t *testing.T, s *mcp.Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	ss, err := s.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func decode(t *testing.T, structured any, into any) {
	t.Helper()
	b, err := json.Marshal(structured)
	if err != nil {
		t.Fatalf("marshal structured content: %v", err)
	}
	if err := json.Unmarshal(b, into); err != nil {
		t.Fatalf("unmarshal structured content: %v", err)
	}
}

func TestServer_ListsTools(t *testing.T) {
	t.Parallel()
	cs := connect(t, mcptool.NewServer(nil, "test", nil))

	res, err := cs.ListTools(context.Background(), &mcp.ListToolsParams{})
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	slices.Sort(names)
	if want := []string{mcptool.GenerateToolName, mcptool.QuestionsToolName}; !slices.Equal(names, want) {
		t.Errorf("tools = %v, want %v", names, want)
	}
}

func TestGenerateMonster(t *testing.T) {
	t.Parallel()
	var got narrative.Answers
	gen := runFunc(func(_ context.Context, a narrative.Answers) (*pipeline.State, error) {
		got = a
		return &pipeline.State{RunID: "run-7", Concept: "A moth of ash.", Draft: testRecord(), Stage: stage.Finalized}, nil
	})
	cs := connect(t, mcptool.NewServer(gen, "test", nil))

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name: mcptool.GenerateToolName,
		Arguments: map[string]any{
			"dark_secret": "It ate its siblings.",
			"environment": "Burning forests.",
			"terror":      "Its dust remembers you.",
		},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %+v", res.Content)
	}

	want := narrative.Answers{"It ate its siblings.", "Burning forests.", "", "", "Its dust remembers you."}
	if got != want {
		t.Errorf("answers = %q, want %q", got, want)
	}

	var out mcptool.GenerateResult
	decode(t, res.StructuredContent, &out)
	if out.RunID != "run-7" || out.Concept != "A moth of ash." {
		t.Errorf("result = %+v", out)
	}
	if diff := cmp.Diff(testRecord(), out.Record); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateMonster_FailedRunIsToolError(t *testing.T) {
	t.Parallel()
	gen := runFunc(func(context.Context, narrative.Answers) (*pipeline.State, error) {
		re := &pipeline.RunError{Stage: stage.Refine, Kind: pipeline.KindExhausted, Attempts: 3, Err: errors.New("bad json")}
		return &pipeline.State{Stage: stage.Failed, Failure: re}, re
	})
	cs := connect(t, mcptool.NewServer(gen, "test", nil))

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      mcptool.GenerateToolName,
		Arguments: map[string]any{},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected IsError for a failed run")
	}
	if len(res.Content) == 0 {
		t.Fatal("tool error has no content")
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok || !strings.Contains(text.Text, "refine") {
		t.Errorf("content = %+v, want the failed stage named", res.Content[0])
	}
}

func TestNarrativeQuestions(t *testing.T) {
	t.Parallel()
	cs := connect(t, mcptool.NewServer(nil, "test", nil))

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      mcptool.QuestionsToolName,
		Arguments: map[string]any{},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	var out mcptool.QuestionsResult
	decode(t, res.StructuredContent, &out)
	if diff := cmp.Diff(narrative.Questions[:], out.Questions); diff != "" {
		t.Errorf("questions mismatch (-want +got):\n%s", diff)
	}
}

func TestServer_RecordsToolCalls(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	gen := runFunc(func(context.Context, narrative.Answers) (*pipeline.State, error) {
		return nil, errors.New("provider down")
	})
	cs := connect(t, mcptool.NewServer(gen, "test", m))

	for _, name := range []string{mcptool.QuestionsToolName, mcptool.GenerateToolName} {
		if _, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: map[string]any{}}); err != nil {
			t.Fatalf("CallTool(%s): %v", name, err)
		}
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	got := map[string]string{}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "bestiary.tool.calls" {
				continue
			}
			for _, dp := range met.Data.(metricdata.Sum[int64]).DataPoints {
				tool, _ := dp.Attributes.Value("tool")
				status, _ := dp.Attributes.Value("status")
				got[tool.AsString()] = status.AsString()
			}
		}
	}
	want := map[string]string{
		mcptool.QuestionsToolName: "ok",
		mcptool.GenerateToolName:  "error",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tool call statuses (-want +got):\n%s", diff)
	}
}
