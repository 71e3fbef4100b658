// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package pbs

import (
	"fmt"
	"sort"
	"sync"
)

// BaseKeyID is the well-known identifier under which the compiler registers
// the bootstrap key of the main circuit.
const BaseKeyID = "_base_context_bsk"

// RuntimeContext owns the evaluation keys of one compiled circuit for the
// lifetime of its executions. The bootstrap key is resolved per execution
// unit: in concurrent mode each distinct execution identity receives its own
// lazily cloned instance, so parallel bootstraps never contend on one
// device-resident key. The keyswitch key is shared; keyswitching only reads
// it.
type RuntimeContext struct {
	params Parameters
	ksk    *KeyswitchKey

	mu   sync.Mutex
	base map[string]*FourierBootstrapKey
	res  resolver
}

// ContextOption configures a RuntimeContext.
type ContextOption func(*RuntimeContext)

// WithConcurrentExecution makes BootstrapKey hand each execution identity its
// own clone of the requested key instead of the shared instance.
func WithConcurrentExecution() ContextOption {
	return func(c *RuntimeContext) {
		c.res = &clonedResolver{entries: map[cloneKey]*cloneEntry{}}
	}
}

// NewRuntimeContext creates a context holding base under BaseKeyID. By
// default every execution shares that instance.
func NewRuntimeContext(params Parameters, base *FourierBootstrapKey, opts ...ContextOption) *RuntimeContext {
	c := &RuntimeContext{
		params: params,
		base:   map[string]*FourierBootstrapKey{BaseKeyID: base},
		res:    sharedResolver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Parameters returns the context's parameter set.
func (c *RuntimeContext) Parameters() Parameters { return c.params }

// RegisterBootstrapKey adds a key under an additional identifier, for
// circuits carrying more than one bootstrap key.
func (c *RuntimeContext) RegisterBootstrapKey(keyID string, key *FourierBootstrapKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base[keyID] = key
}

// SetKeyswitchKey installs the circuit's keyswitch key.
func (c *RuntimeContext) SetKeyswitchKey(ksk *KeyswitchKey) { c.ksk = ksk }

// KeyswitchKey returns the shared keyswitch key, nil if none was installed.
func (c *RuntimeContext) KeyswitchKey() *KeyswitchKey { return c.ksk }

// BootstrapKey resolves the key registered under keyID for the given
// execution identity. It panics if keyID was never registered; a missing
// evaluation key is a wiring bug in the calling circuit, not a runtime
// condition.
func (c *RuntimeContext) BootstrapKey(keyID, identity string) *FourierBootstrapKey {
	c.mu.Lock()
	base, ok := c.base[keyID]
	c.mu.Unlock()
	if !ok {
		panic(fmt.Sprintf("pbs: no bootstrap key registered under %q", keyID))
	}
	return c.res.resolve(keyID, identity, base)
}

// ClonedIdentities lists the execution identities holding a clone of keyID,
// sorted. Empty in shared mode.
func (c *RuntimeContext) ClonedIdentities(keyID string) []string {
	return c.res.identities(keyID)
}

// Close releases all resolved clones. The context must not be used after.
func (c *RuntimeContext) Close() {
	c.res.reset()
}

type resolver interface {
	resolve(keyID, identity string, base *FourierBootstrapKey) *FourierBootstrapKey
	identities(keyID string) []string
	reset()
}

// sharedResolver hands every execution the registered instance.
type sharedResolver struct{}

func (sharedResolver) resolve(_, _ string, base *FourierBootstrapKey) *FourierBootstrapKey {
	return base
}
func (sharedResolver) identities(string) []string { return nil }
func (sharedResolver) reset()                     {}

type cloneKey struct {
	keyID    string
	identity string
}

type cloneEntry struct {
	once sync.Once
	key  *FourierBootstrapKey
}

// clonedResolver materializes one clone per (key, execution identity) pair,
// exactly once, however many executions race on the first resolution.
type clonedResolver struct {
	mu      sync.Mutex
	entries map[cloneKey]*cloneEntry
}

func (r *clonedResolver) resolve(keyID, identity string, base *FourierBootstrapKey) *FourierBootstrapKey {
	k := cloneKey{keyID: keyID, identity: identity}
	r.mu.Lock()
	e, ok := r.entries[k]
	if !ok {
		e = &cloneEntry{}
		r.entries[k] = e
	}
	r.mu.Unlock()
	e.once.Do(func() { e.key = base.Clone() })
	return e.key
}

func (r *clonedResolver) identities(keyID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for k := range r.entries {
		if k.keyID == keyID {
			ids = append(ids, k.identity)
		}
	}
	sort.Strings(ids)
	return ids
}

func (r *clonedResolver) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = map[cloneKey]*cloneEntry{}
}
