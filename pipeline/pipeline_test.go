package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/querylab/biflow/graph"
	"github.com/querylab/biflow/graph/model"
	"github.com/querylab/biflow/pipeline/dbexec"
)

var testSchemas = []graph.TableSchema{
	{
		Name:    "sales",
		Comment: "order line items",
		Columns: []graph.Column{
			{Name: "product_name", Type: "varchar"},
			{Name: "amount", Type: "decimal"},
		},
	},
	{
		Name: "customers",
		Columns: []graph.Column{
			{Name: "id", Type: "int"},
			{Name: "name", Type: "varchar"},
		},
	},
}

var testRows = []graph.Row{
	{"product_name": "Laptop", "total": "1500.00"},
	{"product_name": "Monitor", "total": "890.00"},
}

// happyReplies scripts the full query path: intent, schema selection,
// reasoning, SQL, chart, diagnosis, answer.
func happyReplies() []string {
	return []string{
		`{"intent":"query"}`,
		`{"tables":["sales"]}`,
		"1. Aggregate amount by product. 2. Order descending.",
		"SELECT product_name, SUM(amount) AS total FROM sales GROUP BY product_name ORDER BY total DESC LIMIT 5",
		`{"chartType":"bar","title":"Top products","xField":"product_name","yField":"total"}`,
		`{"summary":"Laptops dominate sales.","findings":["Laptop is the top product"]}`,
		"Laptops lead with $1,500 in sales.",
	}
}

func newTestPipeline(t *testing.T, llm model.Completer, db dbexec.Executor) *Pipeline {
	t.Helper()
	p, err := New(DefaultConfig(), llm, db)
	require.NoError(t, err)
	return p
}

func TestPipelineHappyPath(t *testing.T) {
	llm := &model.MockCompleter{Replies: happyReplies()}
	db := &dbexec.MockExecutor{Outcomes: []dbexec.MockOutcome{{Rows: testRows}}}
	p := newTestPipeline(t, llm, db)

	state, err := p.Ask(context.Background(), graph.Input{
		Question: "What are the top products by sales?",
		Schemas:  testSchemas,
	})
	require.NoError(t, err)

	assert.True(t, state.Terminated)
	assert.Equal(t, graph.OutcomeSucceeded, state.Outcome)
	assert.Equal(t, graph.ReasonCompleted, state.Reason)

	require.NotNil(t, state.Intent)
	assert.Equal(t, IntentQuery, *state.Intent)

	require.NotNil(t, state.Schemas)
	require.Len(t, *state.Schemas, 1)
	assert.Equal(t, "sales", (*state.Schemas)[0].Name)

	require.NotNil(t, state.SQL)
	assert.Contains(t, *state.SQL, "GROUP BY product_name")

	require.NotNil(t, state.Rows)
	assert.Len(t, *state.Rows, 2)

	require.NotNil(t, state.Chart)
	assert.Equal(t, "bar", state.Chart.ChartType)

	require.NotNil(t, state.Diagnosis)
	assert.Equal(t, "Laptops dominate sales.", state.Diagnosis.Summary)

	require.NotNil(t, state.Answer)
	assert.Contains(t, *state.Answer, "Laptops lead")

	assert.Nil(t, state.Error)
	assert.Empty(t, state.RetryCounts[EdgeSQLRepair])

	wantOrder := []string{
		NodeIntent, NodeSchema, NodeReasoning, NodeSQL,
		NodeExecution, NodeChart, NodeDiagnosis, NodeAnswer,
	}
	require.Len(t, state.History, len(wantOrder))
	for i, rec := range state.History {
		assert.Equal(t, wantOrder[i], rec.NodeID)
		assert.Equal(t, graph.StepOK, rec.Outcome)
	}

	// One completion per LLM-backed node; execution hits the database only.
	assert.Equal(t, 7, llm.CallCount())
	assert.Len(t, db.Queries, 1)
}

func TestPipelineNonQueryIntents(t *testing.T) {
	for _, intent := range []string{IntentGreeting, IntentHelp, IntentUnknown} {
		t.Run(intent, func(t *testing.T) {
			llm := &model.MockCompleter{Replies: []string{`{"intent":"` + intent + `"}`}}
			db := &dbexec.MockExecutor{}
			p := newTestPipeline(t, llm, db)

			state, err := p.Ask(context.Background(), graph.Input{Question: "hello", Schemas: testSchemas})
			require.NoError(t, err)

			assert.Equal(t, graph.OutcomeUnhandledIntent, state.Outcome)
			assert.Equal(t, graph.ReasonUnhandled, state.Reason)
			assert.Len(t, state.History, 1, "nothing past intent may run")
			assert.Empty(t, db.Queries)
		})
	}
}

func TestPipelineClarification(t *testing.T) {
	llm := &model.MockCompleter{Replies: []string{
		`{"intent":"clarification","ambiguity":{"type":"completely_vague","clarification":"Which metric do you mean?","options":["sales","profit"]}}`,
	}}
	p := newTestPipeline(t, llm, &dbexec.MockExecutor{})

	state, err := p.Ask(context.Background(), graph.Input{Question: "show me data", Schemas: testSchemas})
	require.NoError(t, err)

	assert.Equal(t, graph.OutcomeUnhandledIntent, state.Outcome)
	require.NotNil(t, state.Ambiguity)
	assert.Equal(t, "completely_vague", state.Ambiguity.Type)
	assert.Equal(t, "Which metric do you mean?", state.Ambiguity.Clarification)
}

func TestPipelineUnparseableIntent(t *testing.T) {
	llm := &model.MockCompleter{Replies: []string{"I think this is a data question!"}}
	p := newTestPipeline(t, llm, &dbexec.MockExecutor{})

	state, err := p.Ask(context.Background(), graph.Input{Question: "q", Schemas: testSchemas})
	require.NoError(t, err)

	require.NotNil(t, state.Intent)
	assert.Equal(t, IntentUnknown, *state.Intent)
	assert.Equal(t, graph.OutcomeUnhandledIntent, state.Outcome)
}

func TestPipelineSQLRepair(t *testing.T) {
	llm := &model.MockCompleter{Replies: []string{
		`{"intent":"query"}`,
		`{"tables":["sales"]}`,
		"plan",
		"SELECT prodct_name FROM sales",
		"SELECT product_name FROM sales",
		`{"chartType":"table"}`,
		`{"summary":"Fine."}`,
		"All good.",
	}}
	db := &dbexec.MockExecutor{Outcomes: []dbexec.MockOutcome{
		{Err: &dbexec.ExecError{Code: "1054", Message: "Unknown column 'prodct_name'", Query: "SELECT prodct_name FROM sales"}},
		{Rows: testRows},
	}}
	p := newTestPipeline(t, llm, db)

	state, err := p.Ask(context.Background(), graph.Input{Question: "q", Schemas: testSchemas})
	require.NoError(t, err)

	assert.Equal(t, graph.OutcomeSucceeded, state.Outcome)
	assert.Equal(t, 1, state.RetryCounts[EdgeSQLRepair])
	assert.Nil(t, state.Error, "repair must clear the error record")
	require.NotNil(t, state.SQL)
	assert.Equal(t, "SELECT product_name FROM sales", *state.SQL)
	assert.Len(t, db.Queries, 2)

	// The correction prompt must quote the failed statement and the
	// database's complaint.
	correction := llm.Prompts[4]
	assert.Contains(t, correction, "Fix the failed SQL")
	assert.Contains(t, correction, "SELECT prodct_name FROM sales")
	assert.Contains(t, correction, "Unknown column 'prodct_name'")
}

func TestPipelineRetriesExhausted(t *testing.T) {
	replies := []string{
		`{"intent":"query"}`,
		`{"tables":["sales"]}`,
		"plan",
	}
	// initial generation plus one correction per retry
	for i := 0; i < 4; i++ {
		replies = append(replies, "SELECT broken FROM sales")
	}
	llm := &model.MockCompleter{Replies: replies}
	db := &dbexec.MockExecutor{Outcomes: []dbexec.MockOutcome{
		{Err: &dbexec.ExecError{Code: "1054", Message: "Unknown column 'broken'"}},
	}}
	p := newTestPipeline(t, llm, db)

	state, err := p.Ask(context.Background(), graph.Input{Question: "q", Schemas: testSchemas})
	require.NoError(t, err, "exhaustion is a terminal state, not an engine error")

	assert.Equal(t, graph.OutcomeRetriesExhausted, state.Outcome)
	assert.Equal(t, graph.ReasonExhausted, state.Reason)
	assert.Equal(t, DefaultConfig().MaxSQLRetries, state.RetryCounts[EdgeSQLRepair])
	require.NotNil(t, state.Error)
	assert.Equal(t, NodeExecution, state.Error.SourceNode)
	assert.Nil(t, state.Answer)
	// 1 initial + 3 retries
	assert.Len(t, db.Queries, 4)
}

func TestPipelineNodeFailure(t *testing.T) {
	llm := &model.MockCompleter{Replies: []string{`{"intent":"query"}`, `{"tables":["sales"]}`}}
	failing := &flakyCompleter{inner: llm, failAfter: 2}
	p := newTestPipeline(t, failing, &dbexec.MockExecutor{})

	state, err := p.Ask(context.Background(), graph.Input{Question: "q", Schemas: testSchemas})
	require.NoError(t, err)

	assert.Equal(t, graph.OutcomeFailed, state.Outcome)
	assert.Equal(t, ReasonNodeError, state.Reason)
	require.NotNil(t, state.Error)
	assert.Equal(t, NodeReasoning, state.Error.SourceNode)
}

func TestPipelineChartDegradesGracefully(t *testing.T) {
	llm := &model.MockCompleter{Replies: []string{
		`{"intent":"query"}`,
		`{"tables":["sales"]}`,
		"plan",
		"SELECT product_name FROM sales",
		"this is not chart json at all",
		"neither is this diagnosis",
		"The answer.",
	}}
	db := &dbexec.MockExecutor{Outcomes: []dbexec.MockOutcome{{Rows: testRows}}}
	p := newTestPipeline(t, llm, db)

	state, err := p.Ask(context.Background(), graph.Input{Question: "q", Schemas: testSchemas})
	require.NoError(t, err)

	assert.Equal(t, graph.OutcomeSucceeded, state.Outcome)
	require.NotNil(t, state.Chart)
	assert.Equal(t, "table", state.Chart.ChartType)
	require.NotNil(t, state.Diagnosis)
	assert.Contains(t, state.Diagnosis.Summary, "2 rows")
}

func TestPipelineStreaming(t *testing.T) {
	llm := &model.MockCompleter{Replies: happyReplies()}
	db := &dbexec.MockExecutor{Outcomes: []dbexec.MockOutcome{{Rows: testRows}}}
	p := newTestPipeline(t, llm, db)

	var nodes []string
	var sb strings.Builder
	state, err := p.AskStream(context.Background(),
		graph.Input{Question: "q", Schemas: testSchemas},
		func(nodeID, text string) {
			nodes = append(nodes, nodeID)
			sb.WriteString(text)
		})
	require.NoError(t, err)

	assert.Equal(t, graph.OutcomeSucceeded, state.Outcome)
	require.NotEmpty(t, nodes)
	for _, n := range nodes {
		assert.Equal(t, NodeAnswer, n, "only the answer node streams")
	}
	assert.Equal(t, *state.Answer, sb.String(), "streamed chunks must reassemble to the answer")
}

func TestPipelineSQLFenceStripping(t *testing.T) {
	replies := happyReplies()
	replies[3] = "```sql\nSELECT product_name FROM sales\n```"
	llm := &model.MockCompleter{Replies: replies}
	db := &dbexec.MockExecutor{Outcomes: []dbexec.MockOutcome{{Rows: testRows}}}
	p := newTestPipeline(t, llm, db)

	state, err := p.Ask(context.Background(), graph.Input{Question: "q", Schemas: testSchemas})
	require.NoError(t, err)
	require.NotNil(t, state.SQL)
	assert.Equal(t, "SELECT product_name FROM sales", *state.SQL)
	require.Len(t, db.Queries, 1)
	assert.Equal(t, "SELECT product_name FROM sales", db.Queries[0])
}

// flakyCompleter fails every call after the first n.
type flakyCompleter struct {
	inner     *model.MockCompleter
	failAfter int
	calls     int
}

func (f *flakyCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	f.calls++
	if f.calls > f.failAfter {
		return "", errors.New("model unavailable")
	}
	return f.inner.Complete(ctx, prompt)
}

func (f *flakyCompleter) CompleteStream(ctx context.Context, prompt string) (<-chan model.Chunk, error) {
	f.calls++
	if f.calls > f.failAfter {
		return nil, errors.New("model unavailable")
	}
	return f.inner.CompleteStream(ctx, prompt)
}
