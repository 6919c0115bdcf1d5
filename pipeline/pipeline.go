package pipeline

import (
	"context"

	"github.com/querylab/biflow/graph"
	"github.com/querylab/biflow/graph/model"
	"github.com/querylab/biflow/pipeline/dbexec"
)

// ReasonNodeError is the terminal reason when a pipeline node fails with
// no repair loop to absorb it.
const ReasonNodeError = "node-error"

// Pipeline is the assembled ChatBI workflow over one completer and one
// database. It is safe for concurrent use; each Ask is an isolated run.
type Pipeline struct {
	exec *graph.Executor
	cfg  Config
}

// New assembles and validates the workflow graph.
//
// The topology follows the BI answering flow: classify the intent, and
// for data questions select schemas, plan, generate SQL, execute it, then
// derive chart, insights and the final answer. Execution failures loop
// back to SQL generation at most cfg.MaxSQLRetries times. Non-query
// intents terminate the run as unhandled.
//
// opts are passed through to the executor, after the config-derived step
// limit and node timeout, so callers can attach emitters, metrics or an
// archive.
func New(cfg Config, llm model.Completer, db dbexec.Executor, opts ...graph.Option) (*Pipeline, error) {
	cfg.applyDefaults()

	b := graph.NewBuilder()
	b.AddNode(NodeIntent, &IntentNode{LLM: llm},
		graph.Owns(graph.KeyIntent, graph.KeyAmbiguity))
	b.AddNode(NodeSchema, &SchemaNode{LLM: llm},
		graph.Owns(graph.KeySchemas))
	b.AddNode(NodeReasoning, &ReasoningNode{LLM: llm},
		graph.Owns(graph.KeyReasoning), graph.Reads(graph.KeySchemas))
	b.AddNode(NodeSQL, &SQLNode{LLM: llm},
		graph.Owns(graph.KeySQL), graph.Reads(graph.KeySchemas))
	b.AddNode(NodeExecution, &ExecutionNode{DB: db},
		graph.Owns(graph.KeyRows), graph.Reads(graph.KeySQL))
	b.AddNode(NodeChart, &ChartNode{LLM: llm, SampleRows: cfg.SampleRows},
		graph.Owns(graph.KeyChart), graph.Reads(graph.KeyRows))
	b.AddNode(NodeDiagnosis, &DiagnosisNode{LLM: llm, SampleRows: cfg.SampleRows},
		graph.Owns(graph.KeyDiagnosis), graph.Reads(graph.KeyRows))
	b.AddNode(NodeAnswer, &AnswerNode{LLM: llm, Language: cfg.Language, SampleRows: cfg.SampleRows},
		graph.Owns(graph.KeyAnswer), graph.Reads(graph.KeyRows))

	b.SetEntry(NodeIntent)
	b.AddEdge(NodeIntent, NodeSchema)
	b.AddEdge(NodeSchema, NodeReasoning)
	b.AddEdge(NodeReasoning, NodeSQL)
	b.AddEdge(NodeSQL, NodeExecution)
	b.AddEdge(NodeExecution, NodeChart)
	b.AddLoopEdge(NodeExecution, NodeSQL, EdgeSQLRepair, cfg.MaxSQLRetries)
	b.AddEdge(NodeChart, NodeDiagnosis)
	b.AddEdge(NodeDiagnosis, NodeAnswer)

	b.SetRouter(NodeIntent, failFirst(graph.FanOut{
		Select:   intentOf,
		Branches: map[string]string{IntentQuery: NodeSchema},
	}))
	b.SetRouter(NodeSchema, chain(NodeReasoning))
	b.SetRouter(NodeReasoning, chain(NodeSQL))
	b.SetRouter(NodeSQL, chain(NodeExecution))
	b.SetRouter(NodeExecution, graph.ErrorLoop{
		Edge:       EdgeSQLRepair,
		Repair:     NodeSQL,
		MaxRetries: cfg.MaxSQLRetries,
		Next:       graph.Static(NodeChart),
	})
	b.SetRouter(NodeChart, chain(NodeDiagnosis))
	b.SetRouter(NodeDiagnosis, chain(NodeAnswer))
	b.SetRouter(NodeAnswer, failFirst(graph.End()))

	g, err := b.Build()
	if err != nil {
		return nil, err
	}

	execOpts := append([]graph.Option{
		graph.WithStepLimit(cfg.StepLimit),
		graph.WithNodeTimeout(cfg.NodeTimeout()),
	}, opts...)
	return &Pipeline{exec: graph.NewExecutor(g, execOpts...), cfg: cfg}, nil
}

// Ask runs the workflow for one question and returns the terminal state.
func (p *Pipeline) Ask(ctx context.Context, input graph.Input) (graph.State, error) {
	return p.exec.Run(ctx, input)
}

// AskStream is Ask with the answer (and any other node output) streamed
// through onChunk as it is generated.
func (p *Pipeline) AskStream(ctx context.Context, input graph.Input, onChunk graph.ChunkHandler) (graph.State, error) {
	return p.exec.RunStream(ctx, input, onChunk)
}

func intentOf(s graph.State) string {
	if s.Intent == nil {
		return ""
	}
	return *s.Intent
}

// chain continues to next unless the step failed, in which case the run
// terminates; only the execution node has a repair loop to fall back on.
func chain(next string) graph.Router {
	return failFirst(graph.Static(next))
}

func failFirst(inner graph.Router) graph.Router {
	return graph.RouterFunc(func(s graph.State) graph.Decision {
		if s.Error != nil {
			return graph.Terminate(graph.OutcomeFailed, ReasonNodeError)
		}
		return inner.Decide(s)
	})
}
