package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/dvloznov/finance-assistant/internal/ledger"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Definition describes a tool to the reasoning backend.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Draft is a proposal produced by a propose tool that has not been stored yet.
type Draft struct {
	Type    domain.ProposalType `json:"proposal_type"`
	Payload domain.Payload      `json:"payload"`
}

// Outcome is the result of executing one tool call. Data is fed back to the
// reasoning backend; Drafts is only set for proposal tools.
type Outcome struct {
	Data     map[string]any
	Drafts   []Draft
	Warnings []string
}

// ErrUnknownTool is returned for tool names missing from the capability table.
var ErrUnknownTool = errors.New("unknown tool")

// Registry classifies, validates and executes assistant tool calls against
// a ledger reader.
type Registry struct {
	reader  ledger.Reader
	now     func() time.Time
	byName  map[string]Capability
	schemas map[string]*jsonschema.Schema
	defs    []Definition
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the clock used for date defaults.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry compiles the argument schema of every tool.
func NewRegistry(reader ledger.Reader, opts ...Option) (*Registry, error) {
	r := &Registry{
		reader:  reader,
		now:     time.Now,
		byName:  make(map[string]Capability, len(capabilities)),
		schemas: make(map[string]*jsonschema.Schema, len(capabilities)),
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, c := range capabilities {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		url := fmt.Sprintf("https://finance-assistant.local/tools/%s.schema.json", c.Name)
		if err := compiler.AddResource(url, strings.NewReader(c.Schema)); err != nil {
			return nil, fmt.Errorf("NewRegistry: load schema %s: %w", c.Name, err)
		}
		compiled, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("NewRegistry: compile schema %s: %w", c.Name, err)
		}

		var params map[string]any
		if err := json.Unmarshal([]byte(c.Schema), &params); err != nil {
			return nil, fmt.Errorf("NewRegistry: decode schema %s: %w", c.Name, err)
		}

		r.byName[c.Name] = c
		r.schemas[c.Name] = compiled
		r.defs = append(r.defs, Definition{Name: c.Name, Description: c.Description, Parameters: params})
	}
	return r, nil
}

// Capability looks a tool up in the capability table.
func (r *Registry) Capability(name string) (Capability, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// Definitions returns every tool in table order.
func (r *Registry) Definitions() []Definition {
	return append([]Definition(nil), r.defs...)
}

// Validate checks args against the tool's schema and returns them in their
// JSON-normalized form (numbers as float64, nested maps as map[string]any).
func (r *Registry) Validate(name string, args map[string]any) (map[string]any, error) {
	schema, ok := r.schemas[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if args == nil {
		args = map[string]any{}
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return nil, domain.Invalid("arguments", "not JSON-compatible: %v", err)
	}
	var normalized map[string]any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return nil, domain.Invalid("arguments", "%v", err)
	}

	if err := schema.Validate(normalized); err != nil {
		return nil, schemaError(err)
	}
	return normalized, nil
}

// Execute validates and runs a tool call. Read-only tools query the ledger;
// proposal tools return drafts without touching any store.
func (r *Registry) Execute(ctx context.Context, call domain.ToolCall) (*Outcome, error) {
	c, ok := r.byName[call.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
	}
	args, err := r.Validate(call.Name, call.Arguments)
	if err != nil {
		return nil, err
	}

	switch c.Name {
	case GetTransactions:
		return r.getTransactions(ctx, args)
	case GetBudgetOverview:
		return r.getBudgetOverview(ctx, args)
	case GetCashflowSummary:
		return r.getCashflowSummary(ctx, args)
	case GetAccounts:
		return r.getAccounts(ctx)
	case GetCategories:
		return r.getCategories(ctx, args)
	case ProposeTransaction:
		return r.proposeTransaction(ctx, args)
	case ProposeBudgetPlan:
		return r.proposeBudgetPlan(ctx, args)
	case ProposeCategoryChanges:
		return r.proposeCategoryChanges(ctx, args)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
}

// schemaError reduces a schema failure to the deepest cause so the field
// name points at the offending argument.
func schemaError(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return domain.Invalid("arguments", "%v", err)
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	field := strings.ReplaceAll(strings.TrimPrefix(ve.InstanceLocation, "/"), "/", ".")
	if field == "" {
		field = "arguments"
	}
	return domain.Invalid(field, "%s", ve.Message)
}

func (r *Registry) today() string {
	return r.now().Format("2006-01-02")
}

func (r *Registry) currentMonth() string {
	return r.now().Format("2006-01")
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

func numberArg(args map[string]any, key string) (float64, bool) {
	f, ok := args[key].(float64)
	return f, ok
}

func boolArg(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}
