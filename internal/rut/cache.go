package rut

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/rvaldes/tributario/internal/repository"
)

// NotAvailable is the sentinel returned when a RUT cannot be resolved.
const NotAvailable = "N/A"

// Resolver memoizes client-id to RUT lookups for the duration of one
// filter or export session. Lookup failures are absorbed and cached as
// "N/A" so a broken user document never blocks a report.
//
// A Resolver is not safe for concurrent use; confine it to one worker and
// call Clear (or discard it) between unrelated sessions, otherwise RUT
// changes made mid-session stay invisible.
type Resolver struct {
	users repository.UserRepository
	cache map[string]string
}

// NewResolver creates an empty session cache over the user repository.
func NewResolver(users repository.UserRepository) *Resolver {
	return &Resolver{
		users: users,
		cache: make(map[string]string),
	}
}

// Resolve returns the RUT for a client id, consulting the cache first.
// Blank ids resolve to "N/A" without a lookup or a cache entry.
func (r *Resolver) Resolve(ctx context.Context, clienteID string) string {
	if strings.TrimSpace(clienteID) == "" {
		return NotAvailable
	}
	if cached, ok := r.cache[clienteID]; ok {
		return cached
	}

	rut, err := r.users.GetRut(ctx, clienteID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Printf("[rut] lookup failed for client %s: %v", shortID(clienteID), err)
		}
		r.cache[clienteID] = NotAvailable
		return NotAvailable
	}
	if rut == "" {
		rut = NotAvailable
	}
	r.cache[clienteID] = rut
	return rut
}

// Clear empties the session cache.
func (r *Resolver) Clear() {
	r.cache = make(map[string]string)
}

// Len reports the number of cached entries.
func (r *Resolver) Len() int {
	return len(r.cache)
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}
