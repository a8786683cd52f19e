/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// State is the provider lifecycle. Transitions are one-way:
// uninitialized -> ready, or uninitialized -> failed.
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Opener builds a Handle from connection settings. Open is the default.
type Opener func(cfg *ConnectionConfig, logger Logger) (*Handle, error)

// Provider owns the single Handle of a process. It is passed explicitly to
// whatever needs database access instead of living in a package global.
type Provider struct {
	config *Config
	logger Logger
	opener Opener

	once   sync.Once
	handle *Handle
	err    error
	state  atomic.Int32
}

type ProviderOption func(*Provider)

// WithOpener replaces Open, typically with a fake in tests.
func WithOpener(opener Opener) ProviderOption {
	return func(p *Provider) {
		p.opener = opener
	}
}

func WithLogger(logger Logger) ProviderOption {
	return func(p *Provider) {
		p.logger = logger
	}
}

// NewProvider returns an uninitialized provider. Nothing is opened until the
// first Handle call.
func NewProvider(cfg *Config, opts ...ProviderOption) *Provider {
	p := &Provider{
		config: cfg,
		opener: Open,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = GetLogger()
	}
	return p
}

// Handle returns the provider's handle, building it on the first call.
// Every later call, from any goroutine, returns the same handle or the same
// error: a failed construction is permanent.
func (p *Provider) Handle() (*Handle, error) {
	p.once.Do(p.initialize)
	return p.handle, p.err
}

func (p *Provider) initialize() {
	if p.config == nil {
		p.fail(missingURLError())
		return
	}
	h, err := p.opener(&p.config.ConnectionConfig, p.logger)
	if err != nil {
		p.fail(err)
		return
	}
	if h == nil {
		p.fail(fmt.Errorf("database opener returned no handle"))
		return
	}
	p.handle = h
	p.state.Store(int32(StateReady))
}

func (p *Provider) fail(err error) {
	p.err = err
	p.state.Store(int32(StateFailed))
	p.logger.Error("Database initialization failed", "error", err.Error())
}

func (p *Provider) State() State {
	return State(p.state.Load())
}

func (p *Provider) Config() *Config {
	return p.config
}

// Close closes the handle if one was built. The provider stays in its
// current state; a closed handle is not rebuilt.
func (p *Provider) Close() error {
	if p.State() != StateReady {
		return nil
	}
	return p.handle.Close()
}

type handleKey struct{}

// ContextWithHandle returns a copy of ctx carrying h.
func ContextWithHandle(ctx context.Context, h *Handle) context.Context {
	return context.WithValue(ctx, handleKey{}, h)
}

// HandleFromContext returns the handle stored by ContextWithHandle.
func HandleFromContext(ctx context.Context) (*Handle, bool) {
	h, ok := ctx.Value(handleKey{}).(*Handle)
	return h, ok && h != nil
}
