package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/dvloznov/finance-assistant/internal/ledger"
)

// buildSystemPrompt describes the assistant's tools and the user's ledger
// context (today's date, accounts, category names) to the reasoning backend.
func buildSystemPrompt(ctx context.Context, reader ledger.Reader, now time.Time) (string, error) {
	accounts, err := reader.ListAccounts(ctx)
	if err != nil {
		return "", domain.Upstream("buildSystemPrompt: list accounts", err)
	}
	categories, err := reader.ListCategories(ctx, "")
	if err != nil {
		return "", domain.Upstream("buildSystemPrompt: list categories", err)
	}

	accountNames := make([]string, 0, len(accounts))
	for _, a := range accounts {
		accountNames = append(accountNames, fmt.Sprintf("%s (%s)", a.Name, a.Type))
	}
	var expense, income []string
	for _, c := range categories {
		if c.IsSystem {
			continue
		}
		if c.Type == domain.TransactionTypeIncome {
			income = append(income, c.Name)
		} else {
			expense = append(expense, c.Name)
		}
	}

	var b strings.Builder
	b.WriteString("You are a personal finance assistant. You help the user record transactions, plan budgets and organize categories.\n\n")

	b.WriteString("## Tools\n\n")
	b.WriteString("Read tools (get_transactions, get_budget_overview, get_cashflow_summary, get_accounts, get_categories) run automatically. Use them freely to answer questions.\n")
	b.WriteString("Propose tools (propose_transaction, propose_budget_plan, propose_category_changes) only create proposals. The user reviews and confirms each one; never claim a change was saved.\n\n")

	b.WriteString("## Style\n\n")
	b.WriteString("Be concise. Answer in the user's language. When proposing, say briefly what you prepared. Ask when the amount, category or date is unclear. ")
	b.WriteString("Format money as Rupiah with dots for thousands, e.g. Rp 50.000.\n\n")

	b.WriteString("## Context\n\n")
	fmt.Fprintf(&b, "Today's date: %s\n", now.Format("2006-01-02"))
	fmt.Fprintf(&b, "Accounts: %s\n", joinOr(accountNames, "No accounts yet"))
	fmt.Fprintf(&b, "Expense categories: %s\n", joinOr(expense, "No categories yet"))
	fmt.Fprintf(&b, "Income categories: %s\n", joinOr(income, "No categories yet"))

	return b.String(), nil
}

func joinOr(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	return strings.Join(items, ", ")
}
