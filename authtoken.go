// FILE: authtoken.go
// Package main – Bearer tokens for calls to the remote service.
//
// Every request to the decision/reporting API carries a short-lived HS256 JWT
// signed with the agent secret (sub = agentId). Heartbeats still send the raw
// secret in the body, as the endpoint contract requires.
package main

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const agentTokenTTL = 2 * time.Minute

// AgentToken mints bearer tokens for one agent identity.
type AgentToken struct {
	agentID string
	secret  []byte
	ttl     time.Duration
	now     func() time.Time
}

func NewAgentToken(agentID, secret string) *AgentToken {
	return &AgentToken{agentID: agentID, secret: []byte(secret), ttl: agentTokenTTL, now: time.Now}
}

// Sign returns a fresh token. A nil receiver or empty secret yields "".
func (t *AgentToken) Sign() (string, error) {
	if t == nil || len(t.secret) == 0 {
		return "", nil
	}
	now := t.now().UTC()
	claims := jwt.MapClaims{
		"sub": t.agentID,
		"aud": "agent-api",
		"iat": now.Unix(),
		"exp": now.Add(t.ttl).Unix(),
		"nbf": now.Add(-5 * time.Second).Unix(),
		"jti": uuid.New().String(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Authorize sets the Authorization header on req. Signing failures leave the
// request unauthenticated; the server decides whether that is acceptable.
func (t *AgentToken) Authorize(req *http.Request) {
	tok, err := t.Sign()
	if err != nil || tok == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+tok)
}
