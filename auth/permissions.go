package auth

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// Requirement is an OR of AND-groups: it is satisfied when every permission of
// at least one inner group is held.
type Requirement [][]string

// Permission requires a single permission.
func Permission(name string) Requirement {
	return Requirement{{name}}
}

// AllOf requires every listed permission.
func AllOf(names ...string) Requirement {
	return Requirement{names}
}

// AnyOf is satisfied by any one fully held group.
func AnyOf(groups ...[]string) Requirement {
	return Requirement(groups)
}

// SatisfiedBy evaluates r against the held permissions.
func (r Requirement) SatisfiedBy(held []string) bool {
	return slices.ContainsFunc(r, func(group []string) bool {
		for _, p := range group {
			if !slices.Contains(held, p) {
				return false
			}
		}
		return true
	})
}

// ParseRequirement accepts a JSON string, list of strings or list of lists.
func ParseRequirement(raw []byte) (Requirement, error) {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return Permission(single), nil
	}
	var flat []string
	if err := json.Unmarshal(raw, &flat); err == nil {
		return AllOf(flat...), nil
	}
	var groups [][]string
	if err := json.Unmarshal(raw, &groups); err != nil {
		return nil, fmt.Errorf("permissions must be a string, a list of strings or a list of lists: %w", err)
	}
	return AnyOf(groups...), nil
}

// HasPermissions checks r against the permissions claim of the cached access
// token. The token payload is decoded without signature verification.
func (c *Client) HasPermissions(r Requirement) (bool, error) {
	held, err := c.Permissions()
	if err != nil {
		return false, err
	}
	return r.SatisfiedBy(held), nil
}

// Permissions returns the permissions claim of the cached access token.
func (c *Client) Permissions() ([]string, error) {
	token := c.session.Snapshot().AccessToken
	if token == "" {
		return nil, ErrNotLoggedIn
	}
	return tokenPermissions(token)
}

func tokenPermissions(token string) ([]string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("decode access token: %w", err)
	}
	switch v := claims["permissions"].(type) {
	case nil:
		return nil, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, p := range v {
			if s, ok := p.(string); ok {
				out = append(out, s)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("permissions claim has unexpected type %T", v)
	}
}
