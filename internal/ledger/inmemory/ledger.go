package inmemory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/dvloznov/finance-assistant/internal/ledger"
	"github.com/google/uuid"
)

// Ledger is an in-memory implementation of ledger.Ledger.
// It backs local development and tests; data is lost on restart.
type Ledger struct {
	mu           sync.RWMutex
	accounts     []domain.Account
	categories   []domain.Category
	transactions []domain.Transaction
	budgets      []domain.Budget
	clock        func() time.Time
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{clock: time.Now}
}

// NewSeededLedger creates a ledger with a cash account and a starter set of
// categories, mirroring what onboarding gives a new user.
func NewSeededLedger() *Ledger {
	l := NewLedger()
	l.AddAccount(domain.Account{ID: uuid.NewString(), Name: "Cash", Type: "cash", Currency: "IDR"})
	for _, c := range []domain.Category{
		{Name: "Food & Drinks", Type: domain.TransactionTypeExpense, Color: "#f97316", Icon: "Utensils"},
		{Name: "Transport", Type: domain.TransactionTypeExpense, Color: "#0ea5e9", Icon: "Car"},
		{Name: "Shopping", Type: domain.TransactionTypeExpense, Color: "#ec4899", Icon: "ShoppingBag"},
		{Name: "Bills", Type: domain.TransactionTypeExpense, Color: "#eab308", Icon: "Receipt"},
		{Name: "Salary", Type: domain.TransactionTypeIncome, Color: "#22c55e", Icon: "Wallet"},
		{Name: "Transfer Out", Type: domain.TransactionTypeExpense, IsSystem: true, Icon: "ArrowRight"},
		{Name: "Transfer In", Type: domain.TransactionTypeIncome, IsSystem: true, Icon: "ArrowLeft"},
	} {
		c.ID = uuid.NewString()
		l.AddCategory(c)
	}
	return l
}

// AddAccount seeds an account.
func (l *Ledger) AddAccount(a domain.Account) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts = append(l.accounts, a)
}

// AddCategory seeds a category.
func (l *Ledger) AddCategory(c domain.Category) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.categories = append(l.categories, c)
}

// AddTransaction seeds a transaction as-is.
func (l *Ledger) AddTransaction(tx domain.Transaction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transactions = append(l.transactions, tx)
}

// AddBudget seeds a budget.
func (l *Ledger) AddBudget(b domain.Budget) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.budgets = append(l.budgets, b)
}

// ListAccounts implements the ledger.Reader interface.
func (l *Ledger) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.Account{}, l.accounts...), nil
}

// ListCategories implements the ledger.Reader interface.
func (l *Ledger) ListCategories(ctx context.Context, t domain.TransactionType) ([]domain.Category, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []domain.Category
	for _, c := range l.categories {
		if t != "" && c.Type != t {
			continue
		}
		result = append(result, c)
	}
	return result, nil
}

// ListTransactions implements the ledger.Reader interface.
func (l *Ledger) ListTransactions(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	search := strings.ToLower(f.Search)
	var result []domain.Transaction
	for _, tx := range l.transactions {
		switch {
		case f.Month != "" && !strings.HasPrefix(tx.Date, f.Month):
			continue
		case f.DateFrom != "" && tx.Date < f.DateFrom:
			continue
		case f.DateTo != "" && tx.Date > f.DateTo:
			continue
		case f.CategoryID != "" && tx.CategoryID != f.CategoryID:
			continue
		case f.AccountID != "" && tx.AccountID != f.AccountID:
			continue
		case f.Type != "" && tx.Type != f.Type:
			continue
		case search != "" && !strings.Contains(strings.ToLower(tx.Description), search):
			continue
		}
		tx.CategoryName = l.categoryName(tx.CategoryID)
		tx.AccountName = l.accountName(tx.AccountID)
		result = append(result, tx)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Date != result[j].Date {
			return result[i].Date > result[j].Date
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

// ListBudgets implements the ledger.Reader interface.
func (l *Ledger) ListBudgets(ctx context.Context, month string) ([]domain.Budget, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []domain.Budget
	for _, b := range l.budgets {
		if b.Month != month {
			continue
		}
		b.CategoryName = l.categoryName(b.CategoryID)
		b.Spent = 0
		for _, tx := range l.transactions {
			if tx.CategoryID == b.CategoryID && tx.Type == domain.TransactionTypeExpense && strings.HasPrefix(tx.Date, month) {
				b.Spent += tx.Amount
			}
		}
		result = append(result, b)
	}
	return result, nil
}

// Cashflow implements the ledger.Reader interface. Transfers are excluded.
func (l *Ledger) Cashflow(ctx context.Context, dateFrom, dateTo string) (*domain.Cashflow, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	cf := &domain.Cashflow{DateFrom: dateFrom, DateTo: dateTo, ByCategory: []domain.CategoryTotal{}}
	byKey := map[string]int{}
	for _, tx := range l.transactions {
		if tx.IsTransfer || tx.Date < dateFrom || tx.Date > dateTo {
			continue
		}
		if tx.Type == domain.TransactionTypeIncome {
			cf.Income += tx.Amount
		} else {
			cf.Expense += tx.Amount
		}
		if tx.CategoryID == "" {
			continue
		}
		key := tx.CategoryID + "|" + string(tx.Type)
		idx, ok := byKey[key]
		if !ok {
			idx = len(cf.ByCategory)
			byKey[key] = idx
			cf.ByCategory = append(cf.ByCategory, domain.CategoryTotal{
				CategoryID:   tx.CategoryID,
				CategoryName: l.categoryName(tx.CategoryID),
				Type:         tx.Type,
			})
		}
		cf.ByCategory[idx].Amount += tx.Amount
	}
	cf.Net = cf.Income - cf.Expense
	sort.SliceStable(cf.ByCategory, func(i, j int) bool {
		return cf.ByCategory[i].Amount > cf.ByCategory[j].Amount
	})
	return cf, nil
}

// CreateTransaction implements the ledger.Writer interface.
func (l *Ledger) CreateTransaction(ctx context.Context, in domain.NewTransaction) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if in.CategoryID != "" && l.findCategory(in.CategoryID) < 0 {
		return "", fmt.Errorf("category %s does not exist", in.CategoryID)
	}
	if in.AccountID != "" && l.findAccount(in.AccountID) < 0 {
		return "", fmt.Errorf("account %s does not exist", in.AccountID)
	}

	tx := domain.Transaction{
		ID:          uuid.NewString(),
		Date:        in.Date,
		Type:        in.Type,
		Amount:      in.Amount,
		Description: in.Description,
		CategoryID:  in.CategoryID,
		AccountID:   in.AccountID,
		Tags:        append([]string{}, in.Tags...),
		CreatedAt:   l.clock(),
	}
	l.transactions = append(l.transactions, tx)
	return tx.ID, nil
}

// CreateTransfer implements the ledger.Writer interface. It records an
// outgoing and an incoming leg and returns the id of the outgoing one.
func (l *Ledger) CreateTransfer(ctx context.Context, in domain.NewTransfer) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.findAccount(in.FromAccountID) < 0 {
		return "", fmt.Errorf("account %s does not exist", in.FromAccountID)
	}
	if l.findAccount(in.ToAccountID) < 0 {
		return "", fmt.Errorf("account %s does not exist", in.ToAccountID)
	}

	now := l.clock()
	out := domain.Transaction{
		ID: uuid.NewString(), Date: in.Date, Type: domain.TransactionTypeExpense, Amount: in.Amount,
		Description: in.Description, AccountID: in.FromAccountID, IsTransfer: true, CreatedAt: now,
	}
	inLeg := domain.Transaction{
		ID: uuid.NewString(), Date: in.Date, Type: domain.TransactionTypeIncome, Amount: in.Amount,
		Description: in.Description, AccountID: in.ToAccountID, IsTransfer: true, CreatedAt: now,
	}
	l.transactions = append(l.transactions, out, inLeg)
	return out.ID, nil
}

// ApplyBudgetPlan implements the ledger.Writer interface.
func (l *Ledger) ApplyBudgetPlan(ctx context.Context, plan domain.BudgetPlan) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, a := range plan.Allocations {
		if a.Amount > 0 && l.findCategory(a.CategoryID) < 0 {
			return nil, fmt.Errorf("category %s does not exist", a.CategoryID)
		}
	}

	var ids []string
	for _, a := range plan.Allocations {
		if a.Amount <= 0 {
			continue
		}
		updated := false
		for i := range l.budgets {
			if l.budgets[i].CategoryID == a.CategoryID && l.budgets[i].Month == plan.Month {
				l.budgets[i].Limit = a.Amount
				ids = append(ids, l.budgets[i].ID)
				updated = true
				break
			}
		}
		if !updated {
			b := domain.Budget{ID: uuid.NewString(), CategoryID: a.CategoryID, Month: plan.Month, Limit: a.Amount}
			l.budgets = append(l.budgets, b)
			ids = append(ids, b.ID)
		}
	}
	return ids, nil
}

// CreateCategory implements the ledger.Writer interface.
func (l *Ledger) CreateCategory(ctx context.Context, in domain.NewCategory) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, c := range l.categories {
		if strings.EqualFold(c.Name, in.Name) && c.Type == in.Type {
			return "", fmt.Errorf("category %q already exists", in.Name)
		}
	}
	c := domain.Category{ID: uuid.NewString(), Name: in.Name, Type: in.Type, Color: in.Color, Icon: in.Icon}
	l.categories = append(l.categories, c)
	return c.ID, nil
}

// RenameCategory implements the ledger.Writer interface.
func (l *Ledger) RenameCategory(ctx context.Context, categoryID, newName string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.findCategory(categoryID)
	if idx < 0 {
		return fmt.Errorf("category %s does not exist", categoryID)
	}
	if l.categories[idx].IsSystem {
		return fmt.Errorf("system category %s cannot be renamed", categoryID)
	}
	l.categories[idx].Name = newName
	return nil
}

// DeleteCategory implements the ledger.Writer interface.
func (l *Ledger) DeleteCategory(ctx context.Context, categoryID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.deleteCategory(categoryID)
}

// MergeCategories implements the ledger.Writer interface.
func (l *Ledger) MergeCategories(ctx context.Context, sourceID, targetID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.findCategory(targetID) < 0 {
		return fmt.Errorf("category %s does not exist", targetID)
	}
	if idx := l.findCategory(sourceID); idx < 0 {
		return fmt.Errorf("category %s does not exist", sourceID)
	} else if l.categories[idx].IsSystem {
		return fmt.Errorf("system category %s cannot be merged", sourceID)
	}

	for i := range l.transactions {
		if l.transactions[i].CategoryID == sourceID {
			l.transactions[i].CategoryID = targetID
		}
	}
	return l.deleteCategory(sourceID)
}

func (l *Ledger) deleteCategory(id string) error {
	idx := l.findCategory(id)
	if idx < 0 {
		return fmt.Errorf("category %s does not exist", id)
	}
	if l.categories[idx].IsSystem {
		return fmt.Errorf("system category %s cannot be deleted", id)
	}
	l.categories = append(l.categories[:idx], l.categories[idx+1:]...)
	return nil
}

func (l *Ledger) findCategory(id string) int {
	for i, c := range l.categories {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (l *Ledger) findAccount(id string) int {
	for i, a := range l.accounts {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func (l *Ledger) categoryName(id string) string {
	if idx := l.findCategory(id); idx >= 0 {
		return l.categories[idx].Name
	}
	return ""
}

func (l *Ledger) accountName(id string) string {
	if idx := l.findAccount(id); idx >= 0 {
		return l.accounts[idx].Name
	}
	return ""
}

// Ensure Ledger implements ledger.Ledger interface.
var _ ledger.Ledger = (*Ledger)(nil)
