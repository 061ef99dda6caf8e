package auth

const (
	ScopeOpenID    = "openid"
	ScopeProfile   = "profile"
	ScopeEmail     = "email"
	ScopeFlowsRead = "flows:read"
	ScopeFlowsRun  = "flows:run"
)

// AllScopes defines the full set of scopes requested by the browser login
var AllScopes = []string{
	ScopeOpenID,
	ScopeProfile,
	ScopeEmail,
	ScopeFlowsRead,
	ScopeFlowsRun,
}
