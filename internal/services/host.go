package services

import (
	"context"
	"errors"
	"fmt"

	"sentinel.org/internal/api"
	"sentinel.org/internal/ids"
)

type HostGetParams struct {
	HostIDs []string `json:"hostids" validate:"omitempty,dive,required"`
	Filter  struct {
		Host []string `json:"host" validate:"omitempty,dive,required"`
	} `json:"filter"`
	Search struct {
		Name string `json:"name" validate:"max=128"`
	} `json:"search"`
	Limit  int `json:"limit" validate:"min=0"`
	Output any `json:"output"`
}

func (s *Service) HostGet(ctx context.Context, p HostGetParams) ([]Host, error) {
	hosts, err := s.store.ListHosts(ctx, HostFilter{
		IDs:        p.HostIDs,
		Hosts:      p.Filter.Host,
		NameSearch: p.Search.Name,
		Limit:      p.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list hosts: %w", err)
	}
	if hosts == nil {
		hosts = []Host{}
	}
	return hosts, nil
}

// HostIDs is the result of host write methods.
type HostIDs struct {
	HostIDs []string `json:"hostids"`
}

type HostCreateParams struct {
	Host        string `json:"host" validate:"required,max=128,excludesall=/:*?<>0x7C"`
	Name        string `json:"name" validate:"max=128"`
	Status      *int   `json:"status" validate:"omitempty,oneof=0 1"`
	Description string `json:"description" validate:"max=65535"`
}

func (s *Service) HostCreate(ctx context.Context, p HostCreateParams) (HostIDs, error) {
	h := Host{
		ID:          ids.New(),
		Host:        p.Host,
		Name:        p.Name,
		Status:      HostStatusMonitored,
		Description: p.Description,
	}
	if h.Name == "" {
		h.Name = h.Host
	}
	if p.Status != nil {
		h.Status = *p.Status
	}
	if err := s.store.CreateHost(ctx, &h); err != nil {
		if errors.Is(err, ErrConflict) {
			return HostIDs{}, api.ParamError(`Host with the same name "%s" already exists.`, p.Host)
		}
		return HostIDs{}, fmt.Errorf("create host: %w", err)
	}
	return HostIDs{HostIDs: []string{h.ID}}, nil
}

type HostUpdateParams struct {
	HostID      string  `json:"hostid" validate:"required"`
	Host        *string `json:"host" validate:"omitempty,min=1,max=128,excludesall=/:*?<>0x7C"`
	Name        *string `json:"name" validate:"omitempty,max=128"`
	Status      *int    `json:"status" validate:"omitempty,oneof=0 1"`
	Description *string `json:"description" validate:"omitempty,max=65535"`
}

func (s *Service) HostUpdate(ctx context.Context, p HostUpdateParams) (HostIDs, error) {
	err := s.store.UpdateHost(ctx, HostUpdate{
		ID:          p.HostID,
		Host:        p.Host,
		Name:        p.Name,
		Status:      p.Status,
		Description: p.Description,
	})
	switch {
	case errors.Is(err, ErrNotFound):
		return HostIDs{}, api.PermissionError(errNoObject)
	case errors.Is(err, ErrConflict):
		return HostIDs{}, api.ParamError(`Host with the same name "%s" already exists.`, *p.Host)
	case err != nil:
		return HostIDs{}, fmt.Errorf("update host: %w", err)
	}
	return HostIDs{HostIDs: []string{p.HostID}}, nil
}

// HostDelete takes a bare array of host ids.
func (s *Service) HostDelete(ctx context.Context, hostIDs []string) (HostIDs, error) {
	if len(hostIDs) == 0 {
		return HostIDs{}, api.ParamError(`Invalid parameter "/": cannot be empty.`)
	}
	if err := s.store.DeleteHosts(ctx, hostIDs); err != nil {
		if errors.Is(err, ErrNotFound) {
			return HostIDs{}, api.PermissionError(errNoObject)
		}
		return HostIDs{}, fmt.Errorf("delete hosts: %w", err)
	}
	return HostIDs{HostIDs: hostIDs}, nil
}
