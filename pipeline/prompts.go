package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/querylab/biflow/graph"
)

// Prompt builders for the pipeline's LLM calls. Each node makes exactly
// one completion call, so classification and ambiguity detection share a
// single prompt with a combined JSON reply.

func intentPrompt(question string) string {
	var sb strings.Builder
	sb.WriteString("You are an intent classifier for a Business Intelligence (BI) system.\n\n")
	sb.WriteString("Classify the user's question into one of these intents:\n\n")
	sb.WriteString("1. query: The user is asking for data, metrics, or analysis. This requires database access.\n")
	sb.WriteString("   Examples: \"What are the top 5 products by sales?\", \"Show me revenue trends\"\n")
	sb.WriteString("2. greeting: The user is greeting or engaging in casual conversation.\n")
	sb.WriteString("3. help: The user is asking for help or documentation.\n")
	sb.WriteString("4. clarification: The question is critically ambiguous and cannot be answered without more information.\n")
	sb.WriteString("   This should be RARE. Only use it when the question is impossibly vague, like \"show me data\" with no context.\n")
	sb.WriteString("5. unknown: The intent is unclear and fits no other category.\n\n")
	sb.WriteString("When the intent is clarification, also describe the ambiguity:\n")
	sb.WriteString("type is one of completely_vague, multiple_interpretations, missing_critical_context.\n\n")
	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\n\nRespond ONLY with a JSON object, no markdown:\n")
	sb.WriteString(`{"intent":"query","ambiguity":{"type":"","clarification":"","options":[]}}`)
	sb.WriteString("\nOmit the ambiguity field unless the intent is clarification.")
	return sb.String()
}

func schemaPrompt(question string, schemas []graph.TableSchema) string {
	var sb strings.Builder
	sb.WriteString("You are a database schema selector for a Business Intelligence system.\n\n")
	sb.WriteString("Select which tables are relevant to answering the question. Be selective: ")
	sb.WriteString("only include tables that are truly necessary. If one table suffices, do not include unrelated tables.\n\n")
	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\n\nAvailable Tables:\n")
	sb.WriteString(formatSchemas(schemas))
	sb.WriteString("\nRespond ONLY with a JSON object listing the selected table names:\n")
	sb.WriteString(`{"tables":["orders","products"]}`)
	return sb.String()
}

func reasoningPrompt(question string, schemas []graph.TableSchema) string {
	var sb strings.Builder
	sb.WriteString("You are a Business Intelligence query planner.\n\n")
	sb.WriteString("Given the user's question and the available tables, produce a step-by-step reasoning plan:\n")
	sb.WriteString("1. Understand the question: key metrics, dimensions, time periods and filters.\n")
	sb.WriteString("2. Identify required data: which tables, which columns, what aggregations.\n")
	sb.WriteString("3. Outline the query: joins, grouping, ordering, limits.\n\n")
	sb.WriteString("### AVAILABLE TABLES ###\n")
	sb.WriteString(formatSchemas(schemas))
	sb.WriteString("\n### QUESTION ###\n")
	sb.WriteString(question)
	return sb.String()
}

func sqlPrompt(question, reasoning string, schemas []graph.TableSchema) string {
	var sb strings.Builder
	sb.WriteString("You are a MySQL expert. Generate a SQL query to answer the question based on the provided table schema.\n\n")
	sb.WriteString("===Response Guidelines===\n")
	sb.WriteString("1. CRITICAL: You MUST generate a valid SQL query. Do NOT return explanations or error messages.\n")
	sb.WriteString("2. CRITICAL: Do NOT query information_schema or system catalogs. Use the provided table schema.\n")
	sb.WriteString("3. If you are unsure about column names, make educated guesses based on the schema provided.\n")
	sb.WriteString("4. Ensure the output SQL is MySQL-compliant, executable and free of syntax errors.\n")
	sb.WriteString("5. For TOP N queries, use ORDER BY and LIMIT clauses.\n")
	sb.WriteString("6. Your response must contain ONLY the SQL query, nothing else.\n\n")
	sb.WriteString("===Table Schema===\n")
	sb.WriteString(formatSchemas(schemas))
	if reasoning != "" {
		sb.WriteString("\n===Query Plan===\n")
		sb.WriteString(reasoning)
		sb.WriteString("\n")
	}
	sb.WriteString("\nQuestion: ")
	sb.WriteString(question)
	return sb.String()
}

func sqlCorrectionPrompt(question, failedSQL, errMsg string, schemas []graph.TableSchema) string {
	var sb strings.Builder
	sb.WriteString("You are a MySQL expert. Fix the failed SQL query below.\n\n")
	sb.WriteString("===Table Schema===\n")
	sb.WriteString(formatSchemas(schemas))
	sb.WriteString("\n===Instructions===\n")
	sb.WriteString("1. Fix the error while keeping the original intent of the query.\n")
	sb.WriteString("2. Use valid MySQL syntax.\n")
	sb.WriteString("3. Output ONLY the corrected SQL query. No explanation.\n\n")
	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\nFailed SQL: ")
	sb.WriteString(failedSQL)
	sb.WriteString("\nError: ")
	sb.WriteString(errMsg)
	return sb.String()
}

func chartPrompt(question string, rows []graph.Row, sample int) string {
	var sb strings.Builder
	sb.WriteString("You are a data visualization expert. Choose the BEST chart configuration for the given data.\n\n")
	sb.WriteString("Chart type selection rules:\n")
	sb.WriteString("bar: categorical comparisons, fewer than 20 categories.\n")
	sb.WriteString("line: trends over a time dimension.\n")
	sb.WriteString("pie: proportions, fewer than 7 categories.\n")
	sb.WriteString("area: trends with volume emphasis.\n")
	sb.WriteString("table: anything that does not chart well.\n\n")
	sb.WriteString("### QUESTION ###\n")
	sb.WriteString(question)
	sb.WriteString("\n\n### QUERY RESULT (sample) ###\n")
	sb.WriteString(sampleJSON(rows, sample))
	fmt.Fprintf(&sb, "\n\nTotal rows: %d\n\n", len(rows))
	sb.WriteString("Respond ONLY with a JSON object, no markdown:\n")
	sb.WriteString(`{"chartType":"bar","title":"...","xField":"...","yField":"..."}`)
	return sb.String()
}

func diagnosisPrompt(question, sql string, rows []graph.Row, sample int) string {
	var sb strings.Builder
	sb.WriteString("You are a data analyst. Analyze the provided data sample for the given question and SQL.\n\n")
	sb.WriteString("===Response Guidelines===\n")
	sb.WriteString("1. Provide a clear, concise summary of the answer (2-3 sentences).\n")
	sb.WriteString("2. Identify key trends, anomalies, or interesting facts (3-5 bullet points).\n")
	sb.WriteString("3. Focus on business value and insights, not just describing the numbers.\n")
	sb.WriteString("4. Do NOT verify the SQL correctness; assume the data is correct.\n\n")
	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\nSQL: ")
	sb.WriteString(sql)
	sb.WriteString("\n\n### DATA SAMPLE ###\n")
	sb.WriteString(sampleJSON(rows, sample))
	fmt.Fprintf(&sb, "\n\nTotal rows: %d\n\n", len(rows))
	sb.WriteString("Respond ONLY with a JSON object, no markdown:\n")
	sb.WriteString(`{"summary":"...","findings":["..."]}`)
	return sb.String()
}

func answerPrompt(question string, rows []graph.Row, chart *graph.ChartSpec, language string, sample int) string {
	var sb strings.Builder
	if strings.HasPrefix(language, "zh") {
		sb.WriteString("你是一个数据分析专家。用简洁、专业的中文总结查询结果。\n\n")
		sb.WriteString("### 输出要求 ###\n")
		sb.WriteString("1. 开头直接回答用户问题（1-2句话）\n")
		sb.WriteString("2. 数据摘要：关键发现和数字（3-5个要点）\n")
		sb.WriteString("3. 洞察：数据背后的含义（可选）\n")
		sb.WriteString("4. 语气：专业、客观、易懂\n\n")
		sb.WriteString("问题: ")
	} else {
		sb.WriteString("You are a data analysis expert. Summarize the query results concisely and professionally.\n\n")
		sb.WriteString("### OUTPUT REQUIREMENTS ###\n")
		sb.WriteString("1. Opening: directly answer the user's question (1-2 sentences).\n")
		sb.WriteString("2. Data summary: key findings with numbers (3-5 bullet points).\n")
		sb.WriteString("3. Insights: what the data means, when there are clear trends or anomalies.\n")
		sb.WriteString("4. Tone: professional, objective, clear.\n\n")
		sb.WriteString("Question: ")
	}
	sb.WriteString(question)
	sb.WriteString("\n\n### QUERY RESULT ###\n")
	sb.WriteString(sampleJSON(rows, sample*4))
	fmt.Fprintf(&sb, "\n\nTotal rows: %d\n", len(rows))
	if chart != nil {
		fmt.Fprintf(&sb, "Chart: %s\n", chart.ChartType)
	}
	return sb.String()
}

func formatSchemas(schemas []graph.TableSchema) string {
	var sb strings.Builder
	for _, table := range schemas {
		sb.WriteString("Table: ")
		sb.WriteString(table.Name)
		if table.Comment != "" {
			sb.WriteString(" -- ")
			sb.WriteString(table.Comment)
		}
		sb.WriteString("\nColumns: ")
		cols := make([]string, len(table.Columns))
		for i, col := range table.Columns {
			cols[i] = col.Name + " " + col.Type
		}
		sb.WriteString(strings.Join(cols, ", "))
		sb.WriteString("\n")
	}
	return sb.String()
}

func sampleJSON(rows []graph.Row, n int) string {
	if len(rows) == 0 {
		return "[]"
	}
	if n > 0 && len(rows) > n {
		rows = rows[:n]
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// stripFences removes a surrounding markdown code fence, with or without
// a language tag, so fenced LLM replies parse cleanly.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		first := strings.TrimSpace(s[:idx])
		// A language tag has no spaces; anything else is content.
		if !strings.ContainsAny(first, " \t") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// parseJSONObject decodes the first JSON object found in an LLM reply,
// tolerating fences and surrounding prose.
func parseJSONObject(reply string, v any) error {
	text := stripFences(reply)
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in reply")
	}
	return json.Unmarshal([]byte(text[start:end+1]), v)
}
