// Package middleware wraps prompt stores to transform records on their way
// to and from the backend.
package middleware

import "github.com/aretw0/comfyflow/pkg/ports"

// Middleware allows wrapping a PromptStore to add behavior.
type Middleware func(ports.PromptStore) ports.PromptStore

// Chain applies mws to store; the first one sees records first on Save.
func Chain(store ports.PromptStore, mws ...Middleware) ports.PromptStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
