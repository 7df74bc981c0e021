/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus distributes query events between train-agent nodes.
package eventbus

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/andref2015/train-agent/internal/events"
)

// Backend names accepted by New.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNATS   = "nats"
)

// Config selects and configures a backend.
type Config struct {
	Backend string
	NodeID  string
	Redis   RedisConfig
	NATS    NATSConfig
}

// New builds the bus for cfg.Backend. An empty backend means memory.
func New(cfg Config, logger zerolog.Logger) (events.PubSub, error) {
	nodeID := cfg.NodeID
	if nodeID == "" {
		nodeID = NodeID()
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendMemory:
		return events.NewBus(), nil
	case BackendRedis:
		return NewRedisBus(cfg.Redis, nodeID, logger), nil
	case BackendNATS:
		return NewNATSBus(cfg.NATS, nodeID, logger), nil
	default:
		return nil, fmt.Errorf("unknown event bus backend %q", cfg.Backend)
	}
}
