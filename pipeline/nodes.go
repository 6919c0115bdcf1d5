package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/querylab/biflow/graph"
	"github.com/querylab/biflow/graph/model"
	"github.com/querylab/biflow/pipeline/dbexec"
)

// Node identifiers and the repair edge name.
const (
	NodeIntent    = "intent"
	NodeSchema    = "schema"
	NodeReasoning = "reasoning"
	NodeSQL       = "sql"
	NodeExecution = "execution"
	NodeChart     = "chart"
	NodeDiagnosis = "diagnosis"
	NodeAnswer    = "answer"

	EdgeSQLRepair = "sql-repair"
)

// Recognized intent labels.
const (
	IntentQuery         = "query"
	IntentGreeting      = "greeting"
	IntentHelp          = "help"
	IntentClarification = "clarification"
	IntentUnknown       = "unknown"
)

// IntentNode classifies the question and detects critical ambiguity in a
// single completion call.
type IntentNode struct {
	LLM model.Completer
}

// Run implements graph.Node.
func (n *IntentNode) Run(ctx context.Context, s graph.State, _ graph.StreamSink) graph.NodeResult {
	reply, err := n.LLM.Complete(ctx, intentPrompt(s.Input.Question))
	if err != nil {
		return graph.NodeResult{Err: fmt.Errorf("classify intent: %w", err)}
	}
	var parsed struct {
		Intent    string           `json:"intent"`
		Ambiguity *graph.Ambiguity `json:"ambiguity"`
	}
	if err := parseJSONObject(reply, &parsed); err != nil || parsed.Intent == "" {
		// An unparseable classification is routed as unknown rather
		// than failing the run.
		parsed.Intent = IntentUnknown
		parsed.Ambiguity = nil
	}
	delta := graph.Delta{Intent: graph.StringOf(strings.ToLower(parsed.Intent))}
	if parsed.Intent == IntentClarification && parsed.Ambiguity != nil {
		delta.Ambiguity = parsed.Ambiguity
	}
	return graph.NodeResult{Delta: delta}
}

// SchemaNode picks the tables relevant to the question from the input's
// full schema set.
type SchemaNode struct {
	LLM model.Completer
}

// Run implements graph.Node.
func (n *SchemaNode) Run(ctx context.Context, s graph.State, _ graph.StreamSink) graph.NodeResult {
	reply, err := n.LLM.Complete(ctx, schemaPrompt(s.Input.Question, s.Input.Schemas))
	if err != nil {
		return graph.NodeResult{Err: fmt.Errorf("select schemas: %w", err)}
	}
	var parsed struct {
		Tables []string `json:"tables"`
	}
	selected := s.Input.Schemas
	if err := parseJSONObject(reply, &parsed); err == nil && len(parsed.Tables) > 0 {
		wanted := make(map[string]bool, len(parsed.Tables))
		for _, name := range parsed.Tables {
			wanted[strings.ToLower(name)] = true
		}
		var picked []graph.TableSchema
		for _, table := range s.Input.Schemas {
			if wanted[strings.ToLower(table.Name)] {
				picked = append(picked, table)
			}
		}
		// A selection naming only unknown tables falls back to the
		// full set so SQL generation still has schema to work with.
		if len(picked) > 0 {
			selected = picked
		}
	}
	return graph.NodeResult{Delta: graph.Delta{Schemas: graph.SchemasOf(selected)}}
}

// ReasoningNode produces the step-by-step query plan.
type ReasoningNode struct {
	LLM model.Completer
}

// Run implements graph.Node.
func (n *ReasoningNode) Run(ctx context.Context, s graph.State, _ graph.StreamSink) graph.NodeResult {
	reasoning, err := n.LLM.Complete(ctx, reasoningPrompt(s.Input.Question, s.SelectedSchemas()))
	if err != nil {
		return graph.NodeResult{Err: fmt.Errorf("plan query: %w", err)}
	}
	return graph.NodeResult{Delta: graph.Delta{Reasoning: graph.StringOf(reasoning)}}
}

// SQLNode generates SQL, or corrects the previous attempt when the state
// carries an execution error alongside a generated query.
type SQLNode struct {
	LLM model.Completer
}

// Run implements graph.Node.
func (n *SQLNode) Run(ctx context.Context, s graph.State, _ graph.StreamSink) graph.NodeResult {
	var prompt string
	if s.Error != nil && s.SQL != nil {
		errMsg := s.Error.Message
		if s.Error.RawDetail != "" {
			errMsg = s.Error.RawDetail
		}
		prompt = sqlCorrectionPrompt(s.Input.Question, *s.SQL, errMsg, s.SelectedSchemas())
	} else {
		var reasoning string
		if s.Reasoning != nil {
			reasoning = *s.Reasoning
		}
		prompt = sqlPrompt(s.Input.Question, reasoning, s.SelectedSchemas())
	}
	reply, err := n.LLM.Complete(ctx, prompt)
	if err != nil {
		return graph.NodeResult{Err: fmt.Errorf("generate sql: %w", err)}
	}
	sql := stripFences(reply)
	if sql == "" {
		return graph.NodeResult{Err: errors.New("generate sql: empty reply")}
	}
	return graph.NodeResult{Delta: graph.Delta{SQL: graph.StringOf(sql)}}
}

// ExecutionNode runs the generated SQL against the database. A database
// failure comes back as the node error; the repair loop reads its detail
// out of the state's error record.
type ExecutionNode struct {
	DB dbexec.Executor
}

// Run implements graph.Node.
func (n *ExecutionNode) Run(ctx context.Context, s graph.State, _ graph.StreamSink) graph.NodeResult {
	rows, err := n.DB.Query(ctx, *s.SQL)
	if err != nil {
		return graph.NodeResult{Err: err}
	}
	return graph.NodeResult{Delta: graph.Delta{Rows: graph.RowsOf(rows)}}
}

// ChartNode derives a chart configuration from the result set. Chart
// generation is decorative: when the call or parse fails the node falls
// back to a table rendering instead of failing the run.
type ChartNode struct {
	LLM        model.Completer
	SampleRows int
}

// Run implements graph.Node.
func (n *ChartNode) Run(ctx context.Context, s graph.State, _ graph.StreamSink) graph.NodeResult {
	fallback := graph.Delta{Chart: &graph.ChartSpec{ChartType: "table"}}
	reply, err := n.LLM.Complete(ctx, chartPrompt(s.Input.Question, s.ResultRows(), n.SampleRows))
	if err != nil {
		return graph.NodeResult{Delta: fallback}
	}
	var spec graph.ChartSpec
	if err := parseJSONObject(reply, &spec); err != nil || spec.ChartType == "" {
		return graph.NodeResult{Delta: fallback}
	}
	return graph.NodeResult{Delta: graph.Delta{Chart: &spec}}
}

// DiagnosisNode extracts insights from a sample of the result set. Like
// the chart, it degrades to a row-count summary rather than failing.
type DiagnosisNode struct {
	LLM        model.Completer
	SampleRows int
}

// Run implements graph.Node.
func (n *DiagnosisNode) Run(ctx context.Context, s graph.State, _ graph.StreamSink) graph.NodeResult {
	rows := s.ResultRows()
	fallback := graph.Delta{Diagnosis: &graph.Diagnosis{
		Summary: fmt.Sprintf("The query returned %d rows.", len(rows)),
	}}
	var sql string
	if s.SQL != nil {
		sql = *s.SQL
	}
	reply, err := n.LLM.Complete(ctx, diagnosisPrompt(s.Input.Question, sql, rows, n.SampleRows))
	if err != nil {
		return graph.NodeResult{Delta: fallback}
	}
	var diag graph.Diagnosis
	if err := parseJSONObject(reply, &diag); err != nil || diag.Summary == "" {
		return graph.NodeResult{Delta: fallback}
	}
	return graph.NodeResult{Delta: graph.Delta{Diagnosis: &diag}}
}

// AnswerNode writes the final natural-language answer, streaming it chunk
// by chunk as the completion arrives.
type AnswerNode struct {
	LLM        model.Completer
	Language   string
	SampleRows int
}

// Run implements graph.Node.
func (n *AnswerNode) Run(ctx context.Context, s graph.State, sink graph.StreamSink) graph.NodeResult {
	language := n.Language
	if s.Input.Language != "" {
		language = s.Input.Language
	}
	prompt := answerPrompt(s.Input.Question, s.ResultRows(), s.Chart, language, n.SampleRows)
	stream, err := n.LLM.CompleteStream(ctx, prompt)
	if err != nil {
		return graph.NodeResult{Err: fmt.Errorf("generate answer: %w", err)}
	}
	var sb strings.Builder
	for chunk := range stream {
		if chunk.Err != nil {
			return graph.NodeResult{Err: fmt.Errorf("generate answer: %w", chunk.Err)}
		}
		sink.Push(chunk.Text)
		sb.WriteString(chunk.Text)
	}
	return graph.NodeResult{Delta: graph.Delta{Answer: graph.StringOf(sb.String())}}
}
