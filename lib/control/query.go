// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"

	"github.com/queryd-project/queryd/lib/queryserver"
)

// Built-in action names.
const (
	ActionStatus   = "status"
	ActionHandlers = "handlers"
	ActionSessions = "sessions"
)

// Status is the result of the status action.
type Status struct {
	Version     string `cbor:"version"`
	State       string `cbor:"state"`
	Address     string `cbor:"address,omitempty"`
	StartedAt   int64  `cbor:"started_at,omitempty"`
	Sessions    int    `cbor:"sessions"`
	Handlers    int    `cbor:"handlers"`
	ActiveTasks int    `cbor:"active_tasks"`
	HostTasks   uint64 `cbor:"host_tasks"`
}

// Handler describes one registered query.
type Handler struct {
	Name     string `cbor:"name"`
	Affinity string `cbor:"affinity"`
	Owner    string `cbor:"owner"`
}

// Session describes one open connection. Times are unix seconds.
type Session struct {
	ID         uint64 `cbor:"id"`
	RemoteAddr string `cbor:"remote_addr"`
	OpenedAt   int64  `cbor:"opened_at"`
	LastActive int64  `cbor:"last_active"`
	Requests   uint64 `cbor:"requests"`
}

// QuerySource is what the built-in actions report on.
type QuerySource struct {
	Server  *queryserver.Server
	Version string

	// ActiveTasks and HostTasks, when set, fill the matching status
	// fields.
	ActiveTasks func() int
	HostTasks   func() uint64
}

// InstallQueryActions registers status, handlers and sessions on s.
func InstallQueryActions(s *Server, source QuerySource) {
	s.Handle(ActionStatus, func(ctx context.Context, raw []byte) (any, error) {
		return source.status(), nil
	})
	s.Handle(ActionHandlers, func(ctx context.Context, raw []byte) (any, error) {
		entries := source.Server.Registry().Entries()
		handlers := make([]Handler, 0, len(entries))
		for _, entry := range entries {
			handlers = append(handlers, Handler{
				Name:     entry.Name,
				Affinity: entry.Affinity.String(),
				Owner:    string(entry.Owner),
			})
		}
		return handlers, nil
	})
	s.Handle(ActionSessions, func(ctx context.Context, raw []byte) (any, error) {
		infos := source.Server.Sessions()
		sessions := make([]Session, 0, len(infos))
		for _, info := range infos {
			sessions = append(sessions, Session{
				ID:         info.ID,
				RemoteAddr: info.RemoteAddr,
				OpenedAt:   info.OpenedAt.Unix(),
				LastActive: info.LastActive.Unix(),
				Requests:   info.Requests,
			})
		}
		return sessions, nil
	})
}

func (q QuerySource) status() Status {
	server := q.Server
	status := Status{
		Version:  q.Version,
		State:    server.State().String(),
		Sessions: len(server.Sessions()),
		Handlers: server.Registry().Len(),
	}
	if addr := server.Addr(); addr != nil {
		status.Address = addr.String()
	}
	if started := server.StartedAt(); !started.IsZero() {
		status.StartedAt = started.Unix()
	}
	if q.ActiveTasks != nil {
		status.ActiveTasks = q.ActiveTasks()
	}
	if q.HostTasks != nil {
		status.HostTasks = q.HostTasks()
	}
	return status
}
