package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrOperationExists  = errors.New("dispatch: operation already registered")
	ErrInvalidOperation = errors.New("dispatch: invalid operation")
)

// Affinity declares where an operation must run.
type Affinity int

const (
	// AffinityInline runs on the serving goroutine that received the request.
	AffinityInline Affinity = iota
	// AffinityHost runs on the host thread during a tick drain.
	AffinityHost
)

func (a Affinity) String() string {
	if a == AffinityHost {
		return "host"
	}
	return "inline"
}

// hostDescriptionPrefix marks host-affine operations in listings.
const hostDescriptionPrefix = "(GameThread)"

// Handler executes one operation. ctx belongs to the remote request.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Operation is one catalog entry.
type Operation struct {
	Name        string
	Description string
	Affinity    Affinity
	Handler     Handler
}

// OperationInfo is the listing shape returned to remote callers.
type OperationInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Affinity    string `json:"affinity"`
}

// Catalog maps operation names to handlers and their declared affinity.
type Catalog struct {
	mu  sync.RWMutex
	ops map[string]Operation
}

func NewCatalog() *Catalog {
	return &Catalog{ops: make(map[string]Operation)}
}

// Register adds an operation. Names are unique.
func (c *Catalog) Register(op Operation) error {
	op.Name = strings.TrimSpace(op.Name)
	if op.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidOperation)
	}
	if op.Handler == nil {
		return fmt.Errorf("%w: %s: missing handler", ErrInvalidOperation, op.Name)
	}
	if op.Affinity != AffinityInline && op.Affinity != AffinityHost {
		return fmt.Errorf("%w: %s: unknown affinity %d", ErrInvalidOperation, op.Name, op.Affinity)
	}
	op.Description = strings.TrimSpace(op.Description)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.ops[op.Name]; ok {
		return fmt.Errorf("%w: %s", ErrOperationExists, op.Name)
	}
	c.ops[op.Name] = op
	return nil
}

// MustRegister is Register for static catalogs built at startup.
func (c *Catalog) MustRegister(ops ...Operation) {
	for _, op := range ops {
		if err := c.Register(op); err != nil {
			panic(err)
		}
	}
}

func (c *Catalog) Lookup(name string) (Operation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	op, ok := c.ops[strings.TrimSpace(name)]
	return op, ok
}

// IsHostAffine reports membership in the host-affine set.
func (c *Catalog) IsHostAffine(name string) bool {
	op, ok := c.Lookup(name)
	return ok && op.Affinity == AffinityHost
}

// HostAffine returns the host-affine operation names, sorted.
func (c *Catalog) HostAffine() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.ops))
	for name, op := range c.ops {
		if op.Affinity == AffinityHost {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// List returns every operation ordered by name.
func (c *Catalog) List() []OperationInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]OperationInfo, 0, len(c.ops))
	for _, op := range c.ops {
		desc := op.Description
		if op.Affinity == AffinityHost {
			desc = strings.TrimSpace(hostDescriptionPrefix + desc)
		}
		out = append(out, OperationInfo{
			Name:        op.Name,
			Description: desc,
			Affinity:    op.Affinity.String(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ops)
}
