package auth

// Known OAuth scopes used by the savings backend.
const (
	ScopeSavingsWrite = "savings:write"
	ScopeSavingsRead  = "savings:read"
)
