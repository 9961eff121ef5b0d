package opnsense

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bcnelson/opnsense-access-control/internal/domain"
)

// Variant identifies which response shape an alias listing used.
type Variant int

const (
	// VariantRows is {"rows":[{"uuid":..,"name":..,"content":[..]}]} or a bare top-level list.
	VariantRows Variant = iota + 1
	// VariantNested is {"alias":{"aliases":{"alias":{"<handle>":{..}}}}}.
	VariantNested
	// VariantFlatMap is {"alias":{"aliases":{"<handle>":{..}}}}.
	VariantFlatMap
)

func (v Variant) String() string {
	switch v {
	case VariantRows:
		return "rows"
	case VariantNested:
		return "nested"
	case VariantFlatMap:
		return "flatmap"
	default:
		return "unknown"
	}
}

// ContentStyle is how an alias's member list is serialized.
type ContentStyle int

const (
	// ContentText is newline-joined addresses (legacy endpoints, list-shaped content).
	ContentText ContentStyle = iota + 1
	// ContentMap is an object keyed by address.
	ContentMap
)

// defaultStyle applies when the fetched content was empty and gave no hint.
func (v Variant) defaultStyle() ContentStyle {
	if v == VariantRows {
		return ContentText
	}
	return ContentMap
}

// Snapshot is the normalized result of one alias listing.
type Snapshot struct {
	Variant Variant
	Aliases []domain.Alias

	styles map[string]ContentStyle // by handle
}

// ByName maps alias names to aliases. When names repeat, the first one in document order wins.
func (s *Snapshot) ByName() map[string]domain.Alias {
	out := make(map[string]domain.Alias, len(s.Aliases))
	for _, a := range s.Aliases {
		if _, ok := out[a.Name]; !ok {
			out[a.Name] = a
		}
	}
	return out
}

// Lookup finds an alias by exact, case-sensitive name.
func (s *Snapshot) Lookup(name string) (domain.Alias, bool) {
	for _, a := range s.Aliases {
		if a.Name == name {
			return a, true
		}
	}
	return domain.Alias{}, false
}

// Style returns the content style the alias was fetched with.
func (s *Snapshot) Style(handle string) ContentStyle {
	if st, ok := s.styles[handle]; ok {
		return st
	}
	return s.Variant.defaultStyle()
}

// ParseAliases normalizes an alias listing. Unknown shapes and malformed JSON yield an empty,
// non-nil snapshot together with a *domain.ParseError.
func ParseAliases(raw []byte) (*Snapshot, error) {
	snap := &Snapshot{styles: make(map[string]ContentStyle)}

	variant, payload, err := probe(raw)
	if err != nil {
		return snap, err
	}
	snap.Variant = variant

	var entries []entry
	switch variant {
	case VariantRows:
		entries, err = parseRows(payload)
	case VariantNested, VariantFlatMap:
		entries, err = parseHandleMap(payload)
	}
	if err != nil {
		return &Snapshot{styles: map[string]ContentStyle{}}, &domain.ParseError{Reason: variant.String() + " payload", Err: err}
	}

	for _, e := range entries {
		members, style, err := parseContent(e.fields["content"])
		if err != nil {
			return &Snapshot{styles: map[string]ContentStyle{}}, &domain.ParseError{Reason: fmt.Sprintf("content of %q", e.name), Err: err}
		}
		if style == 0 {
			style = variant.defaultStyle()
		}
		snap.styles[e.handle] = style
		snap.Aliases = append(snap.Aliases, domain.Alias{
			Handle:     e.handle,
			Name:       e.name,
			Members:    members,
			Attributes: attributes(e.fields),
		})
	}

	return snap, nil
}

// probe detects the response shape by structure only.
func probe(raw []byte) (Variant, json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0, nil, &domain.ParseError{Reason: "empty body"}
	}
	if trimmed[0] == '[' {
		return VariantRows, trimmed, nil
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &top); err != nil {
		return 0, nil, &domain.ParseError{Reason: "malformed JSON", Err: err}
	}

	if rows, ok := top["rows"]; ok {
		return VariantRows, rows, nil
	}

	aliases, ok := nestedAliases(top)
	if !ok {
		return 0, nil, &domain.ParseError{Reason: "no rows, alias or aliases key"}
	}

	var inner map[string]json.RawMessage
	if err := json.Unmarshal(aliases, &inner); err != nil {
		return 0, nil, &domain.ParseError{Reason: "aliases is not an object", Err: err}
	}
	if nested, ok := inner["alias"]; ok && isObject(nested) {
		return VariantNested, nested, nil
	}
	return VariantFlatMap, aliases, nil
}

// nestedAliases returns alias.aliases, or a top-level aliases key.
func nestedAliases(top map[string]json.RawMessage) (json.RawMessage, bool) {
	if wrapper, ok := top["alias"]; ok {
		var w map[string]json.RawMessage
		if err := json.Unmarshal(wrapper, &w); err != nil {
			return nil, false
		}
		a, ok := w["aliases"]
		return a, ok && isObject(a)
	}
	a, ok := top["aliases"]
	return a, ok && isObject(a)
}

type entry struct {
	handle string
	name   string
	fields map[string]json.RawMessage
}

func parseRows(payload json.RawMessage) ([]entry, error) {
	var rows []map[string]json.RawMessage
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, err
	}
	entries := make([]entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, entry{
			handle: scalar(row["uuid"]),
			name:   scalar(row["name"]),
			fields: row,
		})
	}
	return entries, nil
}

func parseHandleMap(payload json.RawMessage) ([]entry, error) {
	pairs, err := orderedObject(payload)
	if err != nil {
		return nil, err
	}
	entries := make([]entry, 0, len(pairs))
	for _, p := range pairs {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(p.value, &fields); err != nil {
			return nil, fmt.Errorf("alias %q: %w", p.key, err)
		}
		entries = append(entries, entry{
			handle: p.key,
			name:   scalar(fields["name"]),
			fields: fields,
		})
	}
	return entries, nil
}

// parseContent extracts members from a list, a mapping keyed by address, or newline text.
// A zero style means the content gave no hint.
func parseContent(raw json.RawMessage) (domain.MemberSet, ContentStyle, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return domain.NewMemberSet(), 0, nil
	}

	switch trimmed[0] {
	case '{':
		pairs, err := orderedObject(trimmed)
		if err != nil {
			return domain.MemberSet{}, 0, err
		}
		addrs := make([]string, 0, len(pairs))
		for _, p := range pairs {
			addrs = append(addrs, strings.TrimSpace(p.key))
		}
		return domain.NewMemberSet(addrs...), ContentMap, nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return domain.MemberSet{}, 0, err
		}
		addrs := make([]string, 0, len(items))
		for _, it := range items {
			addrs = append(addrs, strings.TrimSpace(scalar(it)))
		}
		return domain.NewMemberSet(addrs...), ContentText, nil
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return domain.MemberSet{}, 0, err
		}
		if strings.TrimSpace(text) == "" {
			return domain.NewMemberSet(), 0, nil
		}
		return domain.NewMemberSet(splitText(text)...), ContentText, nil
	}
	return domain.MemberSet{}, 0, fmt.Errorf("unsupported content type %q", trimmed[:1])
}

func splitText(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == '\n' || r == '\r' || r == ','
	})
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}

// passthrough lists the setItem fields echoed from the fetched alias.
var passthrough = []string{
	"enabled", "type", "proto", "categories", "updatefreq", "path_expression",
	"authtype", "username", "password", "interface", "counters", "description",
}

func attributes(fields map[string]json.RawMessage) map[string]string {
	attrs := make(map[string]string)
	for _, key := range passthrough {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		attrs[key] = scalar(raw)
	}
	return attrs
}

// scalar reads a string, number, bool, or an option map {"key":{"selected":1}} as text.
// Multi-select option maps yield every selected key, comma-joined in document order.
func scalar(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ""
	}
	switch trimmed[0] {
	case '"':
		var s string
		if json.Unmarshal(trimmed, &s) == nil {
			return s
		}
	case '{':
		var opts map[string]struct {
			Selected json.RawMessage `json:"selected"`
		}
		if json.Unmarshal(trimmed, &opts) != nil {
			return ""
		}
		pairs, _ := orderedObject(trimmed)
		var selected []string
		for _, p := range pairs {
			if truthy(opts[p.key].Selected) {
				selected = append(selected, p.key)
			}
		}
		return strings.Join(selected, ",")
	case 't':
		return "1"
	case 'f':
		return "0"
	case 'n':
		return ""
	default:
		var n json.Number
		if json.Unmarshal(trimmed, &n) == nil {
			return n.String()
		}
	}
	return ""
}

func truthy(raw json.RawMessage) bool {
	switch strings.Trim(string(bytes.TrimSpace(raw)), `"`) {
	case "1", "true":
		return true
	}
	return false
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

type pair struct {
	key   string
	value json.RawMessage
}

// orderedObject decodes a JSON object keeping document order.
func orderedObject(raw json.RawMessage) ([]pair, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	var pairs []pair
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		pairs = append(pairs, pair{key: key, value: value})
	}
	if _, err := dec.Token(); err != nil && err != io.EOF {
		return nil, err
	}
	return pairs, nil
}

// SetItemRequest is the body of POST /api/firewall/alias/setItem/{handle}.
type SetItemRequest struct {
	Alias            SetItemAlias `json:"alias"`
	NetworkContent   string       `json:"network_content"`
	AuthGroupContent string       `json:"authgroup_content"`
}

// SetItemAlias carries every field the endpoint requires, used or not.
type SetItemAlias struct {
	Enabled        string `json:"enabled"`
	Name           string `json:"name"`
	Type           string `json:"type"`
	Proto          string `json:"proto"`
	Categories     string `json:"categories"`
	UpdateFreq     string `json:"updatefreq"`
	Content        any    `json:"content"` // string or map keyed by address
	PathExpression string `json:"path_expression"`
	AuthType       string `json:"authtype"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	Interface      string `json:"interface"`
	Counters       string `json:"counters"`
	Description    string `json:"description"`
}

// ContentOption is one entry of mapping-style content.
type ContentOption struct {
	Value    string `json:"value"`
	Selected int    `json:"selected"`
}

// EncodeWrite serializes members for alias in the content style the alias was fetched with.
func (s *Snapshot) EncodeWrite(alias domain.Alias, members domain.MemberSet) ([]byte, error) {
	return EncodeWrite(alias, members, s.Style(alias.Handle))
}

// EncodeWrite builds a setItem body. Attributes from the fetched alias are echoed; missing
// ones fall back to enabled=1, type=host and empty strings.
func EncodeWrite(alias domain.Alias, members domain.MemberSet, style ContentStyle) ([]byte, error) {
	attr := func(key, def string) string {
		if v, ok := alias.Attributes[key]; ok && v != "" {
			return v
		}
		return def
	}

	var content any
	switch style {
	case ContentMap:
		m := make(map[string]ContentOption, members.Len())
		for _, addr := range members.Slice() {
			m[addr] = ContentOption{Value: addr, Selected: 1}
		}
		content = m
	default:
		content = strings.Join(members.Slice(), "\n")
	}

	req := SetItemRequest{
		Alias: SetItemAlias{
			Enabled:        attr("enabled", "1"),
			Name:           alias.Name,
			Type:           attr("type", "host"),
			Proto:          attr("proto", ""),
			Categories:     attr("categories", ""),
			UpdateFreq:     attr("updatefreq", ""),
			Content:        content,
			PathExpression: attr("path_expression", ""),
			AuthType:       attr("authtype", ""),
			Username:       attr("username", ""),
			Password:       attr("password", ""),
			Interface:      attr("interface", ""),
			Counters:       strconv.Itoa(members.Len()),
			Description:    attr("description", ""),
		},
	}
	return json.Marshal(req)
}
