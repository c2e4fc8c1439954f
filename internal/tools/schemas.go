package tools

// Argument schemas for the assistant tools. They are sent verbatim to the
// reasoning backend and compiled for argument validation.

const datePattern = `^\\d{4}-\\d{2}-\\d{2}$`

const getTransactionsSchema = `{
  "type": "object",
  "properties": {
    "date_from": {"type": "string", "pattern": "` + datePattern + `", "description": "Start date (YYYY-MM-DD). Inclusive."},
    "date_to": {"type": "string", "pattern": "` + datePattern + `", "description": "End date (YYYY-MM-DD). Inclusive."},
    "month": {"type": "string", "pattern": "^\\d{4}-\\d{2}$", "description": "Filter by month (YYYY-MM). Alternative to the date range."},
    "category_id": {"type": "string", "description": "Filter by category id."},
    "account_id": {"type": "string", "description": "Filter by account id."},
    "type": {"type": "string", "enum": ["income", "expense"], "description": "Filter by transaction type."},
    "search": {"type": "string", "description": "Search text in the transaction description."},
    "limit": {"type": "integer", "minimum": 1, "description": "Maximum number of transactions to return. Default 20, max 100."}
  },
  "additionalProperties": false
}`

const getBudgetOverviewSchema = `{
  "type": "object",
  "properties": {
    "month": {"type": "string", "pattern": "^\\d{4}-\\d{2}$", "description": "Month (YYYY-MM). Defaults to the current month."}
  },
  "additionalProperties": false
}`

const getCashflowSummarySchema = `{
  "type": "object",
  "properties": {
    "period": {"type": "string", "enum": ["week", "month", "custom"], "description": "'week' (last 7 days), 'month' (current month) or 'custom'. Defaults to month."},
    "date_from": {"type": "string", "pattern": "` + datePattern + `", "description": "Start date for a custom period (YYYY-MM-DD)."},
    "date_to": {"type": "string", "pattern": "` + datePattern + `", "description": "End date for a custom period (YYYY-MM-DD)."}
  },
  "additionalProperties": false
}`

const getAccountsSchema = `{
  "type": "object",
  "properties": {}
}`

const getCategoriesSchema = `{
  "type": "object",
  "properties": {
    "type": {"type": "string", "enum": ["income", "expense"], "description": "Only return categories of this type."},
    "include_system": {"type": "boolean", "description": "Include system categories like Transfer In/Out. Defaults to false."}
  },
  "additionalProperties": false
}`

const proposeTransactionSchema = `{
  "type": "object",
  "properties": {
    "source_text": {"type": "string", "minLength": 1, "description": "The user's original message describing the transaction."},
    "amount": {"type": ["number", "string"], "description": "Transaction amount if you can extract it."},
    "transaction_type": {"type": "string", "enum": ["income", "expense"], "description": "Transaction type. Default to 'expense' for purchases."},
    "category_hint": {"type": "string", "description": "Category name or keyword from the user input."},
    "account_hint": {"type": "string", "description": "Account name or keyword from the user input."},
    "description": {"type": "string", "description": "Transaction description."},
    "date": {"type": "string", "pattern": "` + datePattern + `", "description": "Transaction date (YYYY-MM-DD). Defaults to today."},
    "fallback_date": {"type": "string", "pattern": "` + datePattern + `", "description": "Date to use when the text names none (YYYY-MM-DD)."}
  },
  "required": ["source_text"]
}`

const proposeBudgetPlanSchema = `{
  "type": "object",
  "properties": {
    "income": {"type": "number", "minimum": 0, "description": "Monthly income amount."},
    "target_savings": {"type": "number", "minimum": 0, "description": "Desired monthly savings amount."},
    "mandatory_payments": {
      "type": "array",
      "description": "Fixed payments like rent, loans or insurance.",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "amount": {"type": "number", "minimum": 0}
        },
        "required": ["name", "amount"]
      }
    },
    "preferences": {"type": "string", "description": "User preferences or constraints in natural language."},
    "month": {"type": "string", "pattern": "^\\d{4}-\\d{2}$", "description": "Target month (YYYY-MM). Defaults to the current month."}
  },
  "required": ["income"]
}`

const proposeCategoryChangesSchema = `{
  "type": "object",
  "properties": {
    "instructions": {"type": "string", "description": "Natural language instructions for the category changes."},
    "changes": {
      "type": "array",
      "minItems": 1,
      "description": "List of category changes to propose.",
      "items": {
        "type": "object",
        "properties": {
          "action": {"type": "string", "description": "One of create, rename, delete or merge."},
          "category_id": {"type": "string", "description": "Id of the category to modify (rename, delete, merge)."},
          "category_name": {"type": "string", "description": "Name of the category to create."},
          "new_name": {"type": "string", "description": "New name (rename)."},
          "type": {"type": "string", "enum": ["income", "expense"], "description": "Category type (create)."},
          "color": {"type": "string", "description": "Category color (create)."},
          "icon": {"type": "string", "description": "Category icon (create)."},
          "merge_into_id": {"type": "string", "description": "Target category id (merge)."},
          "merge_into_name": {"type": "string", "description": "Target category name (merge)."}
        },
        "required": ["action"]
      }
    }
  },
  "required": ["changes"]
}`
