package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"github.com/openai/openai-go/shared/constant"
	"github.com/shopspring/decimal"

	"projectbooks/internal/core"
)

// ExpenseDraft is the structured proposal the assistant produces from free
// text. It is only ever a suggestion: nothing is persisted until a user
// reviews it and files the expense through the normal create path.
type ExpenseDraft struct {
	ProjectCode string  `json:"project_code" jsonschema_description:"Code of the project the expense belongs to, from the provided list"`
	Description string  `json:"description" jsonschema_description:"Short human-readable description of the expense"`
	Amount      string  `json:"amount" jsonschema_description:"Exact decimal amount as a string, e.g. \"42.50\""`
	Currency    string  `json:"currency" jsonschema_description:"ISO currency code, empty string if not mentioned"`
	Confidence  float64 `json:"confidence" jsonschema_description:"Confidence score between 0.0 and 1.0"`
	Reasoning   string  `json:"reasoning" jsonschema_description:"One or two sentences explaining the interpretation"`
}

// Validate checks a draft for internal consistency before it is shown to
// the user. Null project codes and non-decimal amounts are model mistakes.
func (d *ExpenseDraft) Validate() error {
	if d.ProjectCode == "" {
		return fmt.Errorf("draft has no project code")
	}
	if d.Description == "" {
		return fmt.Errorf("draft has no description")
	}
	amount, err := decimal.NewFromString(d.Amount)
	if err != nil {
		return fmt.Errorf("draft amount %q is not a decimal: %w", d.Amount, err)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("draft amount must be > 0, got %s", d.Amount)
	}
	return nil
}

type AgentService interface {
	DraftExpense(ctx context.Context, naturalLanguage string, projects []core.Project) (*ExpenseDraft, error)
}

type Agent struct {
	client *openai.Client
}

func NewAgent(apiKey string) *Agent {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Agent{client: &client}
}

// DraftExpense interprets a free-text expense description (for example a
// pasted receipt summary or a one-line chat message) into a structured
// draft, constrained to the caller's visible projects.
func (a *Agent) DraftExpense(ctx context.Context, naturalLanguage string, projects []core.Project) (*ExpenseDraft, error) {
	var codes strings.Builder
	for _, p := range projects {
		fmt.Fprintf(&codes, "- %s: %s\n", p.Code, p.Name)
	}

	prompt := fmt.Sprintf(`You are an assistant that files expense claims for a services company.
Your goal is to interpret an expense described in natural language and propose a structured draft.
Rules:
1. Use ONLY project codes from the list below.
2. The amount must be an exact decimal string (e.g. "42.50").
3. Leave currency empty unless the text names one.
4. Provide a confidence score (0.0-1.0).
5. Explain your reasoning.

Projects:
%s
Expense: %s`, codes.String(), naturalLanguage)

	// Dynamically generate the JSON schema from the Go struct
	schemaStruct := generateSchema()
	schemaJSON, err := json.Marshal(schemaStruct)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(schemaJSON, &schemaMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema to map: %w", err)
	}

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(shared.ChatModelGPT4o),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: param.NewOpt(prompt),
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Type:        constant.JSONSchema("json_schema"),
					Name:        "expense_draft",
					Strict:      param.NewOpt(true),
					Schema:      schemaMap,
					Description: param.NewOpt("A structured draft of an expense claim"),
				},
			},
		},
	}

	resp, err := a.client.Responses.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai responses error: %w", err)
	}

	content := resp.OutputText()
	if content == "" {
		return nil, fmt.Errorf("empty response content")
	}

	var draft ExpenseDraft
	if err := json.Unmarshal([]byte(content), &draft); err != nil {
		return nil, fmt.Errorf("failed to parse completion: %w", err)
	}
	if err := draft.Validate(); err != nil {
		return nil, fmt.Errorf("draft validation failed: %w", err)
	}

	return &draft, nil
}

func generateSchema() interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v ExpenseDraft
	return reflector.Reflect(v)
}
