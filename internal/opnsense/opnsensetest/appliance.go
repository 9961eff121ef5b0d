// Package opnsensetest provides an in-process fake appliance for tests.
package opnsensetest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bcnelson/opnsense-access-control/internal/domain"
	"github.com/bcnelson/opnsense-access-control/internal/opnsense"
)

// Alias is one alias held by the fake appliance.
type Alias struct {
	Handle  string
	Name    string
	Members []string
}

// Appliance serves the alias and lease endpoints from memory in a chosen listing shape.
type Appliance struct {
	Server  *httptest.Server
	Variant opnsense.Variant

	mu       sync.Mutex
	aliases  []Alias
	leases   []domain.Lease
	fetches  int
	writes   int
	reloads  int
	failures map[string][]int // path prefix -> queued statuses
}

// New starts a fake appliance. The server is closed when the test ends.
func New(t testing.TB, variant opnsense.Variant, aliases ...Alias) *Appliance {
	t.Helper()
	a := &Appliance{
		Variant:  variant,
		aliases:  aliases,
		failures: make(map[string][]int),
	}
	a.Server = httptest.NewServer(http.HandlerFunc(a.serve))
	t.Cleanup(a.Server.Close)
	return a
}

// Appliance returns connection details for the fake.
func (a *Appliance) Appliance() domain.Appliance {
	return domain.Appliance{BaseURL: a.Server.URL, APIKey: "key", APIToken: "secret"}
}

// Client returns a client with no retry.
func (a *Appliance) Client() *opnsense.Client {
	return opnsense.NewClient(a.Appliance())
}

// FailNext makes the next len(statuses) requests to path answer with those statuses.
func (a *Appliance) FailNext(path string, statuses ...int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures[path] = append(a.failures[path], statuses...)
}

// SetLeases replaces the lease table.
func (a *Appliance) SetLeases(leases ...domain.Lease) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.leases = leases
}

// Members returns the current members of the named alias.
func (a *Appliance) Members(name string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, al := range a.aliases {
		if al.Name == name {
			return append([]string(nil), al.Members...)
		}
	}
	return nil
}

// Counts returns fetch, write and reload call counts.
func (a *Appliance) Counts() (fetches, writes, reloads int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fetches, a.writes, a.reloads
}

func (a *Appliance) serve(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if user, pass, ok := r.BasicAuth(); !ok || user != "key" || pass != "secret" {
		http.Error(w, `{"status":401,"message":"Authentication Failed"}`, http.StatusUnauthorized)
		return
	}

	path := r.URL.Path
	switch {
	case path == opnsense.AliasGetPath:
		a.fetches++
	case strings.HasPrefix(path, opnsense.AliasSetItemPath):
		a.writes++
	case path == opnsense.FilterReloadPath:
		a.reloads++
	}

	for prefix, queued := range a.failures {
		if len(queued) > 0 && strings.HasPrefix(path, prefix) {
			a.failures[prefix] = queued[1:]
			w.WriteHeader(queued[0])
			_, _ = io.WriteString(w, `{"status":"error"}`)
			return
		}
	}

	switch {
	case r.Method == http.MethodGet && path == opnsense.AliasGetPath:
		a.writeJSON(w, a.listing())
	case r.Method == http.MethodPost && strings.HasPrefix(path, opnsense.AliasSetItemPath):
		a.setItem(w, r, strings.TrimPrefix(path, opnsense.AliasSetItemPath))
	case r.Method == http.MethodPost && path == opnsense.FilterReloadPath:
		a.writeJSON(w, map[string]string{"status": "ok"})
	case r.Method == http.MethodGet && path == opnsense.LeaseSearchPath:
		rows := make([]map[string]string, 0, len(a.leases))
		for _, l := range a.leases {
			rows = append(rows, map[string]string{"hostname": l.Hostname, "mac": l.MAC, "address": l.Address})
		}
		a.writeJSON(w, map[string]any{"rows": rows, "total": len(rows)})
	default:
		http.NotFound(w, r)
	}
}

func (a *Appliance) listing() any {
	switch a.Variant {
	case opnsense.VariantRows:
		rows := make([]map[string]any, 0, len(a.aliases))
		for _, al := range a.aliases {
			rows = append(rows, map[string]any{
				"uuid":    al.Handle,
				"name":    al.Name,
				"type":    "host",
				"enabled": "1",
				"content": strings.Join(al.Members, "\n"),
			})
		}
		return map[string]any{"rows": rows, "rowCount": len(rows)}
	default:
		byHandle := make(map[string]any, len(a.aliases))
		for _, al := range a.aliases {
			content := make(map[string]opnsense.ContentOption, len(al.Members))
			for _, m := range al.Members {
				content[m] = opnsense.ContentOption{Value: m, Selected: 1}
			}
			byHandle[al.Handle] = map[string]any{
				"name":    al.Name,
				"enabled": "1",
				"type": map[string]any{
					"host":    map[string]any{"value": "Host(s)", "selected": 1},
					"network": map[string]any{"value": "Network(s)", "selected": 0},
				},
				"content": content,
			}
		}
		if a.Variant == opnsense.VariantFlatMap {
			return map[string]any{"alias": map[string]any{"aliases": byHandle}}
		}
		return map[string]any{"alias": map[string]any{"aliases": map[string]any{"alias": byHandle}}}
	}
}

func (a *Appliance) setItem(w http.ResponseWriter, r *http.Request, handle string) {
	var req struct {
		Alias struct {
			Content json.RawMessage `json:"content"`
		} `json:"alias"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"result":"failed"}`, http.StatusBadRequest)
		return
	}

	members, err := decodeContent(req.Alias.Content)
	if err != nil {
		http.Error(w, `{"result":"failed"}`, http.StatusBadRequest)
		return
	}

	for i := range a.aliases {
		if a.aliases[i].Handle == handle {
			a.aliases[i].Members = members
			a.writeJSON(w, map[string]string{"result": "saved"})
			return
		}
	}
	http.Error(w, `{"result":"failed"}`, http.StatusNotFound)
}

func decodeContent(raw json.RawMessage) ([]string, error) {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		var out []string
		for _, line := range strings.Split(text, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				out = append(out, line)
			}
		}
		return out, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out, nil
}

func (a *Appliance) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
