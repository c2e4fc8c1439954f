package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/dvloznov/finance-assistant/internal/domain"
)

const maxDescriptionRunes = 200

func (r *Registry) proposeTransaction(ctx context.Context, args map[string]any) (*Outcome, error) {
	source := stringArg(args, "source_text")

	amount, ok := transactionAmount(args, source)
	if !ok || amount <= 0 {
		return nil, domain.Invalid("amount", "could not determine a positive amount from %q", source)
	}

	txType := domain.TransactionType(stringArg(args, "transaction_type"))
	if txType == "" {
		txType = domain.TransactionTypeExpense
	}

	categories, err := r.reader.ListCategories(ctx, txType)
	if err != nil {
		return nil, domain.Upstream("propose_transaction: list categories", err)
	}
	var candidates []named
	for _, c := range categories {
		if !c.IsSystem {
			candidates = append(candidates, named{id: c.ID, name: c.Name})
		}
	}
	category := matchOrFirst(stringArg(args, "category_hint"), candidates)

	accounts, err := r.reader.ListAccounts(ctx)
	if err != nil {
		return nil, domain.Upstream("propose_transaction: list accounts", err)
	}
	accountNames := make([]named, 0, len(accounts))
	for _, a := range accounts {
		accountNames = append(accountNames, named{id: a.ID, name: a.Name})
	}
	account := matchOrFirst(stringArg(args, "account_hint"), accountNames)

	description := stringArg(args, "description")
	if description == "" {
		description = truncateRunes(source, maxDescriptionRunes)
	}

	date := stringArg(args, "date")
	if date == "" {
		date = stringArg(args, "fallback_date")
	}
	if date == "" {
		date = r.today()
	}

	payload := &domain.TransactionPayload{
		Date:        date,
		Type:        txType,
		Amount:      amount,
		Description: description,
		Tags:        []string{},
	}
	if category != nil {
		payload.CategoryID = domain.StringPtr(category.id)
		payload.CategoryName = domain.StringPtr(category.name)
	}
	if account != nil {
		payload.AccountID = domain.StringPtr(account.id)
		payload.AccountName = domain.StringPtr(account.name)
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	drafts := []Draft{{Type: domain.ProposalTypeTransaction, Payload: payload}}
	return &Outcome{
		Data: map[string]any{
			"message":   "Transaction proposal created",
			"proposals": drafts,
		},
		Drafts: drafts,
	}, nil
}

// transactionAmount prefers an explicit amount argument, given either as a
// number or as text, and falls back to parsing the source text.
func transactionAmount(args map[string]any, source string) (float64, bool) {
	switch v := args["amount"].(type) {
	case float64:
		if v > 0 {
			return v, true
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f > 0 {
			return f, true
		}
		if f, ok := ParseAmount(v); ok && f > 0 {
			return f, true
		}
	}
	return ParseAmount(source)
}

func (r *Registry) proposeBudgetPlan(ctx context.Context, args map[string]any) (*Outcome, error) {
	income, _ := numberArg(args, "income")
	savings, _ := numberArg(args, "target_savings")
	month := stringArg(args, "month")
	if month == "" {
		month = r.currentMonth()
	}

	mandatory := []domain.MandatoryPayment{}
	mandatoryTotal := 0.0
	if items, ok := args["mandatory_payments"].([]any); ok {
		for _, item := range items {
			m, _ := item.(map[string]any)
			name, _ := m["name"].(string)
			amount, _ := m["amount"].(float64)
			mandatory = append(mandatory, domain.MandatoryPayment{Name: name, Amount: amount})
			mandatoryTotal += amount
		}
	}

	available := income - savings - mandatoryTotal
	if available <= 0 {
		return nil, domain.Invalid("income",
			"No remaining budget after savings (%.0f) and mandatory payments (%.0f)", savings, mandatoryTotal)
	}

	categories, err := r.reader.ListCategories(ctx, domain.TransactionTypeExpense)
	if err != nil {
		return nil, domain.Upstream("propose_budget_plan: list categories", err)
	}
	var expense []domain.Category
	for _, c := range categories {
		if !c.IsSystem {
			expense = append(expense, c)
		}
	}
	if len(expense) == 0 {
		return nil, domain.Invalid("categories", "No expense categories found. Create categories first.")
	}

	budgets, err := r.reader.ListBudgets(ctx, month)
	if err != nil {
		return nil, domain.Upstream("propose_budget_plan: list budgets", err)
	}
	existing := make(map[string]domain.Budget, len(budgets))
	for _, b := range budgets {
		existing[b.CategoryID] = b
	}

	perCategory := available / float64(len(expense))
	allocations := make([]domain.BudgetAllocation, 0, len(expense))
	for _, c := range expense {
		suggested := perCategory
		b, has := existing[c.ID]
		if has {
			suggested = b.Limit
		}
		allocations = append(allocations, domain.BudgetAllocation{
			CategoryID:      c.ID,
			CategoryName:    c.Name,
			CategoryColor:   c.Color,
			CategoryIcon:    c.Icon,
			SuggestedAmount: math.Round(suggested),
			HasExisting:     has,
		})
	}
	sort.SliceStable(allocations, func(i, j int) bool {
		return allocations[i].SuggestedAmount > allocations[j].SuggestedAmount
	})

	payload := &domain.BudgetPayload{
		Month:               month,
		Income:              income,
		TargetSavings:       savings,
		MandatoryPayments:   mandatory,
		AvailableForBudgets: available,
		Allocations:         allocations,
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	drafts := []Draft{{Type: domain.ProposalTypeBudget, Payload: payload}}
	return &Outcome{
		Data: map[string]any{
			"message": "Budget plan proposal created",
			"summary": map[string]any{
				"income":     income,
				"savings":    savings,
				"mandatory":  mandatoryTotal,
				"available":  available,
				"categories": len(allocations),
			},
			"proposals": drafts,
		},
		Drafts: drafts,
	}, nil
}

func (r *Registry) proposeCategoryChanges(ctx context.Context, args map[string]any) (*Outcome, error) {
	changes, _ := args["changes"].([]any)
	if len(changes) == 0 {
		return nil, domain.Invalid("changes", "No changes specified")
	}

	categories, err := r.reader.ListCategories(ctx, "")
	if err != nil {
		return nil, domain.Upstream("propose_category_changes: list categories", err)
	}
	idx := newCategoryIndex(categories)

	var drafts []Draft
	var warnings []string
	for _, raw := range changes {
		change, _ := raw.(map[string]any)
		c, err := idx.change(change)
		if err != nil {
			warnings = append(warnings, err.Error())
			continue
		}
		payload := &domain.CategoryPayload{Change: c}
		if err := payload.Validate(); err != nil {
			warnings = append(warnings, err.Error())
			continue
		}
		drafts = append(drafts, Draft{Type: domain.ProposalTypeCategory, Payload: payload})
	}

	if len(drafts) == 0 {
		return nil, domain.Invalid("changes", "%s", strings.Join(warnings, "; "))
	}

	data := map[string]any{
		"message":   fmt.Sprintf("Created %d category change proposal(s)", len(drafts)),
		"proposals": drafts,
	}
	if len(warnings) > 0 {
		data["warnings"] = warnings
	}
	return &Outcome{Data: data, Drafts: drafts, Warnings: warnings}, nil
}

// categoryIndex resolves category references while a batch of changes is
// translated. Names created earlier in the same batch count as taken.
type categoryIndex struct {
	byID   map[string]domain.Category
	byName map[string]domain.Category
}

func newCategoryIndex(categories []domain.Category) *categoryIndex {
	idx := &categoryIndex{
		byID:   make(map[string]domain.Category, len(categories)),
		byName: make(map[string]domain.Category, len(categories)),
	}
	for _, c := range categories {
		idx.byID[c.ID] = c
		idx.byName[strings.ToLower(c.Name)] = c
	}
	return idx
}

// resolve finds a category by id, or by name when no id is given.
func (idx *categoryIndex) resolve(id, name string) (domain.Category, bool) {
	if id != "" {
		c, ok := idx.byID[id]
		return c, ok
	}
	if name != "" {
		c, ok := idx.byName[strings.ToLower(name)]
		return c, ok
	}
	return domain.Category{}, false
}

func (idx *categoryIndex) change(m map[string]any) (domain.CategoryChange, error) {
	action := domain.CategoryAction(stringArg(m, "action"))
	id := stringArg(m, "category_id")
	name := stringArg(m, "category_name")

	switch action {
	case domain.CategoryActionCreate:
		if name == "" {
			return nil, errors.New("Create action requires category_name")
		}
		if _, taken := idx.byName[strings.ToLower(name)]; taken {
			return nil, fmt.Errorf("Category '%s' already exists", name)
		}
		t := domain.TransactionType(stringArg(m, "type"))
		if t == "" {
			t = domain.TransactionTypeExpense
		}
		color := stringArg(m, "color")
		if color == "" {
			color = domain.DefaultCategoryColor
		}
		icon := stringArg(m, "icon")
		if icon == "" {
			icon = domain.DefaultCategoryIcon
		}
		idx.byName[strings.ToLower(name)] = domain.Category{Name: name, Type: t}
		return domain.CreateCategory{Name: name, Type: t, Color: color, Icon: icon}, nil

	case domain.CategoryActionRename:
		newName := stringArg(m, "new_name")
		if (id == "" && name == "") || newName == "" {
			return nil, errors.New("Rename action requires category_id and new_name")
		}
		c, ok := idx.resolve(id, name)
		if !ok {
			return nil, fmt.Errorf("Category %s not found", firstNonEmpty(id, name))
		}
		if c.IsSystem {
			return nil, fmt.Errorf("Cannot rename system category '%s'", c.Name)
		}
		if other, taken := idx.byName[strings.ToLower(newName)]; taken && other.ID != c.ID {
			return nil, fmt.Errorf("Category '%s' already exists", newName)
		}
		return domain.RenameCategory{CategoryID: c.ID, CurrentName: c.Name, NewName: newName}, nil

	case domain.CategoryActionDelete:
		if id == "" && name == "" {
			return nil, errors.New("Delete action requires category_id")
		}
		c, ok := idx.resolve(id, name)
		if !ok {
			return nil, fmt.Errorf("Category %s not found", firstNonEmpty(id, name))
		}
		if c.IsSystem {
			return nil, fmt.Errorf("Cannot delete system category '%s'", c.Name)
		}
		return domain.DeleteCategory{CategoryID: c.ID, CategoryName: c.Name}, nil

	case domain.CategoryActionMerge:
		targetID := stringArg(m, "merge_into_id")
		targetName := stringArg(m, "merge_into_name")
		if (id == "" && name == "") || (targetID == "" && targetName == "") {
			return nil, errors.New("Merge action requires category_id and merge_into_id")
		}
		source, ok := idx.resolve(id, name)
		if !ok {
			return nil, fmt.Errorf("Source category %s not found", firstNonEmpty(id, name))
		}
		target, ok := idx.resolve(targetID, targetName)
		if !ok {
			return nil, fmt.Errorf("Target category %s not found", firstNonEmpty(targetID, targetName))
		}
		if source.IsSystem {
			return nil, fmt.Errorf("Cannot merge system category '%s'", source.Name)
		}
		if source.ID == target.ID {
			return nil, fmt.Errorf("Cannot merge category '%s' into itself", source.Name)
		}
		return domain.MergeCategory{
			SourceCategoryID:   source.ID,
			SourceCategoryName: source.Name,
			TargetCategoryID:   target.ID,
			TargetCategoryName: target.Name,
		}, nil
	}
	return nil, fmt.Errorf("Unknown action: %s", action)
}

type named struct {
	id   string
	name string
}

// matchOrFirst matches hint case-insensitively, exact names first and then
// substrings in either direction. Without a match the first candidate wins.
func matchOrFirst(hint string, candidates []named) *named {
	if len(candidates) == 0 {
		return nil
	}
	if hint != "" {
		h := strings.ToLower(hint)
		for i := range candidates {
			if strings.ToLower(candidates[i].name) == h {
				return &candidates[i]
			}
		}
		for i := range candidates {
			n := strings.ToLower(candidates[i].name)
			if strings.Contains(n, h) || strings.Contains(h, n) {
				return &candidates[i]
			}
		}
	}
	return &candidates[0]
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
