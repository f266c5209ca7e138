package auth

import (
	"strings"
	"time"

	"civicledger/core/audit"
)

type Authorizer struct {
	Verifier    *Verifier
	AuditLogger audit.AuditLogger
	Now         func() time.Time
}

type AuthorizationResult struct {
	Authorized bool
	Reason     string
	Identity   *Identity
}

func (a *Authorizer) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// Authenticate verifies a bearer Authorization header value.
func (a *Authorizer) Authenticate(header string, action string) AuthorizationResult {
	token, ok := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		a.AuditLogger.LogEvent(audit.AuditEvent{
			EventType: "TokenVerification",
			EntityID:  "anonymous",
			Result:    "failure",
			Reason:    "missing bearer token",
			Metadata:  map[string]string{"action": action},
			Timestamp: a.now(),
		})
		return AuthorizationResult{Reason: "missing bearer token"}
	}
	claims, err := a.Verifier.VerifyToken(token)
	if err != nil {
		a.AuditLogger.LogEvent(audit.AuditEvent{
			EventType: "TokenVerification",
			EntityID:  "anonymous",
			Result:    "failure",
			Reason:    err.Error(),
			Metadata:  map[string]string{"action": action},
			Timestamp: a.now(),
		})
		return AuthorizationResult{Reason: "invalid token: " + err.Error()}
	}
	id := claims.Identity()
	a.AuditLogger.LogEvent(audit.AuditEvent{
		EventType: "Authorization",
		EntityID:  id.ID(),
		Result:    "success",
		Reason:    "Authorized",
		Metadata:  map[string]string{"action": action, "role": id.Role(), "mspid": id.MSPID()},
		Timestamp: a.now(),
	})
	return AuthorizationResult{Authorized: true, Reason: "Authorized", Identity: id}
}
