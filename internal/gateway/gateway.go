package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rahul/homebot/internal/assistant"
)

// Messenger defines the interface for communication gateways (Telegram, Discord, etc.)
type Messenger interface {
	// Start begins the message listening loop
	Start() error
	// Send sends a message to a specific chat
	Send(chatID string, text string) error
	// Stop gracefully shuts down the gateway
	Stop() error
}

// Handler is what gateways feed incoming messages and button presses to.
// *assistant.Assistant implements it.
type Handler interface {
	HandleText(ctx context.Context, chatID, text string) (assistant.Reply, error)
	HandleCallback(ctx context.Context, chatID, data string) (assistant.Reply, error)
}

var ErrNoRoute = errors.New("no gateway for chat")

type route struct {
	prefix string
	m      Messenger
}

// Router fans Start and Stop out to every gateway and sends each outgoing
// message through the gateway whose chat ID prefix matches. Longer prefixes
// win; the empty prefix is the fallback.
type Router struct {
	mu     sync.RWMutex
	routes []route
}

func NewRouter() *Router {
	return &Router{}
}

func (r *Router) Handle(prefix string, m Messenger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route{prefix: prefix, m: m})
}

func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}

func (r *Router) Send(chatID, text string) error {
	r.mu.RLock()
	var best *route
	for i := range r.routes {
		rt := &r.routes[i]
		if !strings.HasPrefix(chatID, rt.prefix) {
			continue
		}
		if best == nil || len(rt.prefix) > len(best.prefix) {
			best = rt
		}
	}
	r.mu.RUnlock()

	if best == nil {
		return fmt.Errorf("%w %s", ErrNoRoute, chatID)
	}
	return best.m.Send(chatID, text)
}

// Start runs every gateway and returns when the first one fails or all of
// them have returned.
func (r *Router) Start() error {
	r.mu.RLock()
	routes := append([]route(nil), r.routes...)
	r.mu.RUnlock()

	errc := make(chan error, len(routes))
	for _, rt := range routes {
		go func() {
			errc <- rt.m.Start()
		}()
	}
	for range routes {
		if err := <-errc; err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) Stop() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var errs []error
	for _, rt := range r.routes {
		if err := rt.m.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
