package outbox

const savingsLoggedSchema = `{
  "type": "object",
  "title": "SavingsLogged",
  "properties": {
    "event_id": {"type": "string"},
    "user_id": {"type": "string"},
    "kind": {"type": "string", "enum": ["swap", "tip"]},
    "catalog_ref": {"type": "string"},
    "amount": {"type": "string"},
    "logged_at": {"type": "string", "format": "date-time"}
  },
  "required": ["event_id", "user_id", "kind", "catalog_ref", "amount", "logged_at"],
  "additionalProperties": false
}`

const streakUpdatedSchema = `{
  "type": "object",
  "title": "StreakUpdated",
  "properties": {
    "user_id": {"type": "string"},
    "streak_type": {"type": "string"},
    "current_count": {"type": "integer"},
    "longest_count": {"type": "integer"},
    "last_active_date": {"type": "string", "format": "date-time"},
    "outcome": {"type": "string", "enum": ["started", "extended", "reset"]},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "streak_type", "current_count", "longest_count", "last_active_date", "outcome", "occurred_at"],
  "additionalProperties": false
}`
