package opnsense

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/bcnelson/opnsense-access-control/internal/domain"
)

// FileShim is a file-backed stand-in for an appliance, used for local runs and tests.
// Aliases are served in the nested listing shape with mapping-style content.
type FileShim struct {
	filePath string
	logger   *slog.Logger
	mu       sync.RWMutex
}

// Ensure FileShim implements FirewallClient and LeaseClient.
var (
	_ FirewallClient = (*FileShim)(nil)
	_ LeaseClient    = (*FileShim)(nil)
)

// ShimState is the on-disk document.
type ShimState struct {
	Aliases []ShimAlias `json:"aliases"`
	Leases  []ShimLease `json:"leases,omitempty"`
	Reloads int         `json:"reloads"`
}

// ShimAlias is one alias in the shim document.
type ShimAlias struct {
	UUID        string   `json:"uuid"`
	Name        string   `json:"name"`
	Type        string   `json:"type,omitempty"`
	Enabled     string   `json:"enabled,omitempty"`
	Description string   `json:"description,omitempty"`
	Content     []string `json:"content"`
}

// ShimLease is one DHCP lease in the shim document.
type ShimLease struct {
	Hostname string `json:"hostname"`
	MAC      string `json:"mac"`
	Address  string `json:"address"`
}

// NewFileShim creates a new file-based shim.
func NewFileShim(filePath string, logger *slog.Logger) *FileShim {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileShim{filePath: filePath, logger: logger}
}

// FetchAliases renders the stored aliases as an alias/get response.
func (f *FileShim) FetchAliases(ctx context.Context) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	state, err := f.load()
	if err != nil {
		return nil, &domain.TransportError{Op: OpFetchAliases, Err: err}
	}

	type option struct {
		Value    string `json:"value"`
		Selected int    `json:"selected"`
	}
	byHandle := make(map[string]any, len(state.Aliases))
	for _, a := range state.Aliases {
		content := make(map[string]option, len(a.Content))
		for _, addr := range a.Content {
			content[addr] = option{Value: addr, Selected: 1}
		}
		byHandle[a.UUID] = map[string]any{
			"name":        a.Name,
			"type":        a.Type,
			"enabled":     a.Enabled,
			"description": a.Description,
			"content":     content,
		}
	}

	return json.Marshal(map[string]any{
		"alias": map[string]any{
			"aliases": map[string]any{
				"alias": byHandle,
			},
		},
	})
}

// WriteAlias stores the content of a setItem body under handle.
func (f *FileShim) WriteAlias(ctx context.Context, handle string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, err := f.load()
	if err != nil {
		return &domain.TransportError{Op: OpWriteAlias, Err: err}
	}

	var req struct {
		Alias struct {
			Name    string          `json:"name"`
			Content json.RawMessage `json:"content"`
		} `json:"alias"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return &domain.RemoteError{Op: OpWriteAlias, Status: 400, Body: err.Error()}
	}
	members, _, err := parseContent(req.Alias.Content)
	if err != nil {
		return &domain.RemoteError{Op: OpWriteAlias, Status: 400, Body: err.Error()}
	}

	found := false
	for i := range state.Aliases {
		if state.Aliases[i].UUID == handle {
			state.Aliases[i].Content = members.Slice()
			found = true
			break
		}
	}
	if !found {
		return &domain.RemoteError{Op: OpWriteAlias, Status: 404, Body: fmt.Sprintf(`{"result":"failed","message":"unknown alias %s"}`, handle)}
	}

	if err := f.save(state); err != nil {
		return &domain.TransportError{Op: OpWriteAlias, Err: err}
	}
	f.logger.Info("file shim alias written", "path", f.filePath, "alias", req.Alias.Name, "members", members.Len())
	return nil
}

// Reload only counts reloads.
func (f *FileShim) Reload(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, err := f.load()
	if err != nil {
		return &domain.TransportError{Op: OpReload, Err: err}
	}
	state.Reloads++
	if err := f.save(state); err != nil {
		return &domain.TransportError{Op: OpReload, Err: err}
	}
	f.logger.Info("file shim reload", "path", f.filePath, "reloads", state.Reloads)
	return nil
}

// SearchLeases renders the stored leases as a searchLease response.
func (f *FileShim) SearchLeases(ctx context.Context) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	state, err := f.load()
	if err != nil {
		return nil, &domain.TransportError{Op: OpSearchLeases, Err: err}
	}
	return json.Marshal(map[string]any{"rows": state.Leases, "total": len(state.Leases)})
}

// load returns an empty state when the file does not exist.
func (f *FileShim) load() (*ShimState, error) {
	data, err := os.ReadFile(f.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &ShimState{}, nil
		}
		return nil, fmt.Errorf("reading shim file: %w", err)
	}

	var state ShimState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parsing shim file: %w", err)
	}
	return &state, nil
}

func (f *FileShim) save(state *ShimState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling shim state: %w", err)
	}
	if err := os.WriteFile(f.filePath, data, 0644); err != nil {
		return fmt.Errorf("writing shim file: %w", err)
	}
	return nil
}
