package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sentinel.org/internal/api"
	"sentinel.org/internal/audit"
	"sentinel.org/internal/auth"
	"sentinel.org/internal/ids"
)

// TokenView is the API representation of a token.
type TokenView struct {
	TokenID     string `json:"tokenid"`
	Name        string `json:"name"`
	Description string `json:"description"`
	UserID      string `json:"userid"`
	Status      int    `json:"status"`
	ExpiresAt   int64  `json:"expires_at"`
	LastAccess  int64  `json:"lastaccess"`
	CreatedAt   int64  `json:"created_at"`
	CreatorID   string `json:"creator_userid"`
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func tokenView(t *auth.APIToken) TokenView {
	return TokenView{
		TokenID:     t.ID,
		Name:        t.Name,
		Description: t.Description,
		UserID:      t.UserID,
		Status:      t.Status,
		ExpiresAt:   unix(t.ExpiresAt),
		LastAccess:  unix(t.LastAccess),
		CreatedAt:   unix(t.CreatedAt),
		CreatorID:   t.CreatorID,
	}
}

type TokenGetParams struct {
	TokenIDs []string `json:"tokenids" validate:"omitempty,dive,required"`
	UserIDs  []string `json:"userids" validate:"omitempty,dive,required"`
	Output   any      `json:"output"`
}

// TokenGet lists tokens. Callers below super admin only see their own.
func (s *Service) TokenGet(ctx context.Context, p TokenGetParams) ([]TokenView, error) {
	principal, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	filter := auth.TokenFilter{TokenIDs: p.TokenIDs, UserIDs: p.UserIDs}
	if principal.UserType < auth.UserTypeSuperAdmin {
		if len(p.UserIDs) > 0 && !contains(p.UserIDs, principal.UserID) {
			return []TokenView{}, nil
		}
		filter.UserIDs = []string{principal.UserID}
	}
	toks, err := s.store.ListTokens(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	out := make([]TokenView, 0, len(toks))
	for _, t := range toks {
		out = append(out, tokenView(t))
	}
	return out, nil
}

// TokenIDs is the result of token write methods.
type TokenIDs struct {
	TokenIDs []string `json:"tokenids"`
}

type TokenCreateParams struct {
	Name        string `json:"name" validate:"required,max=64"`
	UserID      string `json:"userid"`
	Description string `json:"description" validate:"max=65535"`
	Status      *int   `json:"status" validate:"omitempty,oneof=0 1"`
	ExpiresAt   int64  `json:"expires_at" validate:"min=0"`
}

// TokenCreate registers a token without a secret; token.generate issues it.
func (s *Service) TokenCreate(ctx context.Context, p TokenCreateParams) (TokenIDs, error) {
	principal, err := caller(ctx)
	if err != nil {
		return TokenIDs{}, err
	}
	owner := p.UserID
	if owner == "" {
		owner = principal.UserID
	}
	if owner != principal.UserID && principal.UserType < auth.UserTypeSuperAdmin {
		return TokenIDs{}, api.PermissionError("Only super admins can create API tokens for other users.")
	}
	tok := &auth.APIToken{
		ID:          ids.New(),
		Name:        p.Name,
		Description: p.Description,
		UserID:      owner,
		Status:      auth.TokenStatusEnabled,
		CreatorID:   principal.UserID,
	}
	if p.Status != nil {
		tok.Status = *p.Status
	}
	if p.ExpiresAt > 0 {
		tok.ExpiresAt = time.Unix(p.ExpiresAt, 0).UTC()
	}
	switch err := s.store.CreateToken(ctx, tok); {
	case errors.Is(err, auth.ErrConflict):
		return TokenIDs{}, api.ParamError(`API token "%s" already exists for userid "%s".`, p.Name, owner)
	case errors.Is(err, auth.ErrNotFound):
		return TokenIDs{}, api.PermissionError(errNoObject)
	case err != nil:
		return TokenIDs{}, fmt.Errorf("create token: %w", err)
	}
	return TokenIDs{TokenIDs: []string{tok.ID}}, nil
}

// GeneratedToken carries a raw token. It is returned exactly once.
type GeneratedToken struct {
	TokenID string `json:"tokenid"`
	Token   string `json:"token"`
}

// TokenGenerate issues a new secret for each token, replacing the old one.
func (s *Service) TokenGenerate(ctx context.Context, tokenIDs []string) ([]GeneratedToken, error) {
	principal, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.checkTokenAccess(ctx, principal, tokenIDs); err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]GeneratedToken, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		raw, err := auth.GenerateToken()
		if err != nil {
			return nil, err
		}
		if err := s.store.SetTokenHash(ctx, id, auth.HashToken(raw), principal.UserID, now); err != nil {
			return nil, fmt.Errorf("store token: %w", err)
		}
		_ = audit.LogEvent(ctx, audit.EventTokenGenerated, map[string]any{"tokenid": id})
		out = append(out, GeneratedToken{TokenID: id, Token: raw})
	}
	return out, nil
}

// TokenDelete removes tokens by id.
func (s *Service) TokenDelete(ctx context.Context, tokenIDs []string) (TokenIDs, error) {
	principal, err := caller(ctx)
	if err != nil {
		return TokenIDs{}, err
	}
	if err := s.checkTokenAccess(ctx, principal, tokenIDs); err != nil {
		return TokenIDs{}, err
	}
	if err := s.store.DeleteTokens(ctx, tokenIDs); err != nil {
		return TokenIDs{}, fmt.Errorf("delete tokens: %w", err)
	}
	_ = audit.LogEvent(ctx, audit.EventTokenDeleted, map[string]any{"tokenids": tokenIDs})
	return TokenIDs{TokenIDs: tokenIDs}, nil
}

// checkTokenAccess requires every id to exist and, below super admin, to
// belong to the caller.
func (s *Service) checkTokenAccess(ctx context.Context, p auth.Principal, tokenIDs []string) error {
	if len(tokenIDs) == 0 {
		return api.ParamError(`Invalid parameter "/": cannot be empty.`)
	}
	seen := make(map[string]struct{}, len(tokenIDs))
	for _, id := range tokenIDs {
		if _, dup := seen[id]; dup {
			return api.ParamError(`Invalid parameter "/": value (%s) already exists.`, id)
		}
		seen[id] = struct{}{}
	}
	toks, err := s.store.ListTokens(ctx, auth.TokenFilter{TokenIDs: tokenIDs})
	if err != nil {
		return fmt.Errorf("list tokens: %w", err)
	}
	if len(toks) != len(tokenIDs) {
		return api.PermissionError(errNoObject)
	}
	if p.UserType >= auth.UserTypeSuperAdmin {
		return nil
	}
	for _, t := range toks {
		if t.UserID != p.UserID {
			return api.PermissionError(errNoObject)
		}
	}
	return nil
}
