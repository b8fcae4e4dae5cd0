package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrDuplicateCapability  = errors.New("capability already registered")
	ErrInvalidCapability    = errors.New("capability needs a resource, a method and an invoker")
	ErrCapabilityNotAllowed = errors.New("capability not allowed")
)

// Invoker runs one resource method with positional JSON arguments.
type Invoker func(ctx context.Context, args []json.RawMessage) (any, error)

// MessageError is implemented by capability errors that carry a message meant
// for the calling panel.
type MessageError interface {
	error
	ErrorMessage() string
}

// Capabilities is the allow-list of (resource, method) pairs a panel may invoke.
type Capabilities struct {
	mu        sync.RWMutex
	resources map[string]map[string]Invoker
}

func NewCapabilities() *Capabilities {
	return &Capabilities{resources: make(map[string]map[string]Invoker)}
}

// Register adds resource.method. Registering the same pair twice fails.
func (c *Capabilities) Register(resource, method string, fn Invoker) error {
	if resource == "" || method == "" || fn == nil {
		return fmt.Errorf("%w: %q.%q", ErrInvalidCapability, resource, method)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	methods, ok := c.resources[resource]
	if !ok {
		methods = make(map[string]Invoker)
		c.resources[resource] = methods
	}
	if _, exists := methods[method]; exists {
		return fmt.Errorf("%w: %s.%s", ErrDuplicateCapability, resource, method)
	}
	methods[method] = fn
	return nil
}

// Lookup returns the invoker for resource.method if it is allowed.
func (c *Capabilities) Lookup(resource, method string) (Invoker, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.resources[resource][method]
	return fn, ok
}

// Invoke calls resource.method, or returns ErrCapabilityNotAllowed.
func (c *Capabilities) Invoke(ctx context.Context, resource, method string, args []json.RawMessage) (any, error) {
	fn, ok := c.Lookup(resource, method)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrCapabilityNotAllowed, resource, method)
	}
	return fn(ctx, args)
}

// Names lists the registered pairs as "resource.method", sorted.
func (c *Capabilities) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for r, methods := range c.resources {
		for m := range methods {
			out = append(out, r+"."+m)
		}
	}
	sort.Strings(out)
	return out
}

func errorMessage(err error) string {
	var me MessageError
	if errors.As(err, &me) {
		return me.ErrorMessage()
	}
	return err.Error()
}
