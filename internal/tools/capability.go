package tools

import "github.com/dvloznov/finance-assistant/internal/domain"

// Kind classifies what a tool call does to the session.
type Kind string

const (
	// KindReadOnly tools run immediately and only feed data back to the model.
	KindReadOnly Kind = "read_only"
	// KindProposal tools materialize proposals awaiting user confirmation.
	KindProposal Kind = "proposal"
)

// Tool names understood by the assistant.
const (
	GetTransactions        = "get_transactions"
	GetBudgetOverview      = "get_budget_overview"
	GetCashflowSummary     = "get_cashflow_summary"
	GetAccounts            = "get_accounts"
	GetCategories          = "get_categories"
	ProposeTransaction     = "propose_transaction"
	ProposeBudgetPlan      = "propose_budget_plan"
	ProposeCategoryChanges = "propose_category_changes"
)

// Capability is one row of the tool table.
type Capability struct {
	Name         string
	Kind         Kind
	ProposalType domain.ProposalType // set for KindProposal only
	Description  string
	Schema       string // JSON Schema of the arguments
}

// capabilities is the authoritative tool table. Dispatch between
// display-only and proposal tools goes through this table, never through
// name prefixes.
var capabilities = []Capability{
	{
		Name: GetTransactions,
		Kind: KindReadOnly,
		Description: "Retrieve the user's transactions with optional filters. Use this to look up recent " +
			"transactions, search by description, filter by category or account, or get transactions in a date range.",
		Schema: getTransactionsSchema,
	},
	{
		Name: GetBudgetOverview,
		Kind: KindReadOnly,
		Description: "Get budgets vs actual spending for a month: each category's limit, amount spent, " +
			"remaining amount and percentage used.",
		Schema: getBudgetOverviewSchema,
	},
	{
		Name: GetCashflowSummary,
		Kind: KindReadOnly,
		Description: "Get income, expenses and net cashflow for a period with a breakdown by category.",
		Schema:      getCashflowSummarySchema,
	},
	{
		Name:        GetAccounts,
		Kind:        KindReadOnly,
		Description: "List the user's accounts with their type, currency and balance.",
		Schema:      getAccountsSchema,
	},
	{
		Name: GetCategories,
		Kind: KindReadOnly,
		Description: "Get the user's categories split into income and expense. Use this to find category ids " +
			"for transactions or category changes.",
		Schema: getCategoriesSchema,
	},
	{
		Name:         ProposeTransaction,
		Kind:         KindProposal,
		ProposalType: domain.ProposalTypeTransaction,
		Description: "Propose a new income or expense transaction parsed from the user's message. " +
			"The user must confirm it before it is recorded.",
		Schema: proposeTransactionSchema,
	},
	{
		Name:         ProposeBudgetPlan,
		Kind:         KindProposal,
		ProposalType: domain.ProposalTypeBudget,
		Description: "Propose a monthly budget plan from income, savings target and mandatory payments. " +
			"The proposal shows suggested allocations per category.",
		Schema: proposeBudgetPlanSchema,
	},
	{
		Name:         ProposeCategoryChanges,
		Kind:         KindProposal,
		ProposalType: domain.ProposalTypeCategory,
		Description: "Propose creating, renaming, deleting or merging categories. " +
			"Each change becomes a separate proposal.",
		Schema: proposeCategoryChangesSchema,
	},
}
