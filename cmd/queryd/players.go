// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/queryd-project/queryd/lib/codec"
	"github.com/queryd-project/queryd/lib/config"
	"github.com/queryd-project/queryd/lib/control"
	"github.com/queryd-project/queryd/lib/hostloop"
	"github.com/queryd-project/queryd/lib/queryserver"
)

// playersOwner owns the roster queries.
const playersOwner queryserver.Owner = "players"

// roster is the host's player list. It is confined to the host loop:
// every method must run on the host goroutine.
type roster struct {
	players []player
	ticks   uint64
}

type player struct {
	name   string
	online bool
}

func newRoster(seed []config.PlayerConfig) *roster {
	r := &roster{}
	for _, p := range seed {
		r.set(p.Name, p.Online)
	}
	return r
}

// set adds name or updates its online flag. Names match
// case-insensitively; the first spelling is kept.
func (r *roster) set(name string, online bool) {
	for i := range r.players {
		if strings.EqualFold(r.players[i].name, name) {
			r.players[i].online = online
			return
		}
	}
	r.players = append(r.players, player{name: name, online: online})
}

// names returns player names in join order, all of them or only the
// online ones.
func (r *roster) names(includeOffline bool) []string {
	var names []string
	for _, p := range r.players {
		if includeOffline || p.online {
			names = append(names, p.name)
		}
	}
	return names
}

func (r *roster) tick(time.Time) {
	r.ticks++
}

// playersModule registers the roster queries under playersOwner and can
// withdraw them at runtime.
type playersModule struct {
	server *queryserver.Server
	host   *hostloop.Loop
	roster *roster
	logger *slog.Logger

	mu      sync.Mutex
	enabled bool
}

func newPlayersModule(server *queryserver.Server, host *hostloop.Loop, roster *roster, logger *slog.Logger) *playersModule {
	return &playersModule{
		server: server,
		host:   host,
		roster: roster,
		logger: logger.With("owner", string(playersOwner)),
	}
}

// enable registers the module's queries. It reports false when the
// module was already enabled.
func (m *playersModule) enable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enabled {
		return false
	}
	m.server.Register("players", m.listPlayers, queryserver.HostThread, playersOwner)
	m.server.Register("ticks", m.reportTicks, queryserver.HostThread, playersOwner)
	m.enabled = true
	m.logger.Info("query owner enabled")
	return true
}

// disable unregisters every query the module owns.
func (m *playersModule) disable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled {
		return false
	}
	removed := m.server.UnregisterAll(playersOwner)
	m.enabled = false
	m.logger.Info("query owner disabled", "removed", removed)
	return true
}

// listPlayers answers "players" with the online players, one per line,
// and "players all" with every known player.
func (m *playersModule) listPlayers(ctx context.Context, request *queryserver.Request, response *queryserver.Response) error {
	var includeOffline bool
	switch args := request.Args(); {
	case len(args) == 0:
	case len(args) == 1 && strings.EqualFold(args[0], "all"):
		includeOffline = true
	default:
		if err := response.SetStatus(queryserver.StatusNotFound); err != nil {
			return err
		}
		return response.PrintLine("Wrong Arguments")
	}

	for _, name := range m.roster.names(includeOffline) {
		if err := response.PrintLine(name); err != nil {
			return err
		}
	}
	return nil
}

// reportTicks answers with the number of host ticks so far.
func (m *playersModule) reportTicks(ctx context.Context, request *queryserver.Request, response *queryserver.Response) error {
	return response.Print(strconv.FormatUint(m.roster.ticks, 10))
}

// Admin socket actions.
const (
	actionPlayersEnable  = "players-enable"
	actionPlayersDisable = "players-disable"
	actionPlayerSet      = "player-set"
)

// OwnerState is the result of the enable and disable actions.
type OwnerState struct {
	Owner   string `cbor:"owner"`
	Enabled bool   `cbor:"enabled"`
	Changed bool   `cbor:"changed"`
}

type playerSetRequest struct {
	Name   string `cbor:"name"`
	Online bool   `cbor:"online"`
}

// installActions adds the module's admin socket actions.
func (m *playersModule) installActions(s *control.Server) {
	s.Handle(actionPlayersEnable, func(ctx context.Context, raw []byte) (any, error) {
		changed := m.enable()
		return OwnerState{Owner: string(playersOwner), Enabled: true, Changed: changed}, nil
	})
	s.Handle(actionPlayersDisable, func(ctx context.Context, raw []byte) (any, error) {
		changed := m.disable()
		return OwnerState{Owner: string(playersOwner), Enabled: false, Changed: changed}, nil
	})
	s.Handle(actionPlayerSet, func(ctx context.Context, raw []byte) (any, error) {
		var request playerSetRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("invalid request: %w", err)
		}
		if strings.TrimSpace(request.Name) == "" {
			return nil, errors.New("missing required field: name")
		}

		var online []string
		err := m.onHost(ctx, func() error {
			m.roster.set(request.Name, request.Online)
			online = m.roster.names(false)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"online": online}, nil
	})
}

// onHost runs task on the host loop and waits for it or ctx. A task
// still waiting for mailbox space when ctx ends is dropped; one already
// queued runs anyway.
func (m *playersModule) onHost(ctx context.Context, task func() error) error {
	select {
	case err := <-m.host.SubmitContext(ctx, task):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
