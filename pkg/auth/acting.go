package auth

import "strings"

// ResolveActingContext derives the effective user and customer for a request.
//
// Customer precedence: verified app_metadata claim, then the effective user's
// own customer, then none (system scope).
func ResolveActingContext(ac *AuthContext) ActingContext {
	if ac == nil {
		return ActingContext{}
	}

	acting := ActingContext{
		User:             ac.User,
		RealUser:         ac.User,
		HeaderCustomerID: ac.HeaderCustomerID,
	}

	if ac.IsImpersonating() {
		acting.User = ac.ImpersonatedUser
		acting.IsImpersonating = true
	}

	if ac.Claims != nil {
		if id := strings.TrimSpace(ac.Claims.AppMetadata.CustomerID); id != "" {
			acting.CustomerID = &id
			return acting
		}
	}

	if acting.User != nil && acting.User.CustomerID != nil && *acting.User.CustomerID != "" {
		id := *acting.User.CustomerID
		acting.CustomerID = &id
	}

	return acting
}
