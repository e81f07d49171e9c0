// Package objectdocument implements component C: the object-document
// factory. It resolves an aggregate name to the documentstore.Store that
// owns it and enforces the path-component validator before any storage
// key is built (spec.md §4.C).
package objectdocument

import (
	"encoding/json"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"eve.evalgo.org/eventledger/ledgererr"
)

// Router is the per-aggregate storage registry: a static
// aggregate_name -> store_name map, looked up case-insensitively
// (spec.md §4.B/§4.C). Grounded on the teacher's registry.Registry, which
// keeps a map guarded by sync.RWMutex and persists it as JSON; this
// generalizes that pattern from service endpoints to store names.
type Router struct {
	mu     sync.RWMutex
	routes map[string]string // lower(aggregate) -> store name
}

// NewRouter builds a Router from a static routing table. Keys are
// normalized to lower-case so lookups are case-insensitive.
func NewRouter(routes map[string]string) *Router {
	r := &Router{routes: make(map[string]string, len(routes))}
	for aggregate, store := range routes {
		r.routes[strings.ToLower(aggregate)] = store
	}
	return r
}

// Resolve returns the store name bound to aggregate, failing with
// ledgererr.CodeConfigInvalidRouting when no route exists.
func (r *Router) Resolve(aggregate string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	storeName, ok := r.routes[strings.ToLower(aggregate)]
	if !ok {
		return "", ledgererr.New(ledgererr.CodeConfigInvalidRouting,
			"no store routed for aggregate "+aggregate)
	}
	return storeName, nil
}

// Set adds or overwrites the route for aggregate. Used by tests and by
// config reloads; production routing is expected to be loaded once at
// startup via LoadRoutingFile.
func (r *Router) Set(aggregate, storeName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[strings.ToLower(aggregate)] = storeName
}

// Routes returns a snapshot copy of the routing table.
func (r *Router) Routes() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.routes))
	for k, v := range r.routes {
		out[k] = v
	}
	return out
}

// routingFile is the on-disk shape for a static routing table, following
// the teacher's flat JSON-object convention rather than registry.go's
// JSON-LD ItemList shape: a routing table has no need for schema.org
// framing, just aggregate -> store. The same shape serializes as either
// JSON or YAML depending on the file extension LoadRoutingFile/
// SaveRoutingFile are given.
type routingFile struct {
	Routes map[string]string `json:"routes" yaml:"routes"`
}

// LoadRoutingFile reads a routing table from path, in the form
// {"routes": {"order": "blob", "invoice": "table"}}. Files named *.yaml
// or *.yml are parsed as YAML; everything else is parsed as JSON.
func LoadRoutingFile(path string) (*Router, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.CodeConfigInvalidRouting, "read routing file", err)
	}
	var rf routingFile
	if isYAMLPath(path) {
		if err := yaml.Unmarshal(data, &rf); err != nil {
			return nil, ledgererr.Wrap(ledgererr.CodeConfigInvalidRouting, "parse routing file", err)
		}
	} else if err := json.Unmarshal(data, &rf); err != nil {
		return nil, ledgererr.Wrap(ledgererr.CodeConfigInvalidRouting, "parse routing file", err)
	}
	return NewRouter(rf.Routes), nil
}

// SaveRoutingFile writes the current routing table to path, mirroring
// registry.Registry.Save's persistence idiom. The format follows path's
// extension: *.yaml/*.yml write YAML, everything else writes indented
// JSON.
func (r *Router) SaveRoutingFile(path string) error {
	rf := routingFile{Routes: r.Routes()}
	var data []byte
	var err error
	if isYAMLPath(path) {
		data, err = yaml.Marshal(rf)
	} else {
		data, err = json.MarshalIndent(rf, "", "  ")
	}
	if err != nil {
		return ledgererr.Wrap(ledgererr.CodeConfigInvalidRouting, "marshal routing file", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ledgererr.Wrap(ledgererr.CodeConfigInvalidRouting, "write routing file", err)
	}
	return nil
}

func isYAMLPath(path string) bool {
	ext := strings.ToLower(path[strings.LastIndex(path, ".")+1:])
	return ext == "yaml" || ext == "yml"
}
