package opnsense

import (
	"encoding/json"
	"testing"

	"github.com/bcnelson/opnsense-access-control/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var shapeFixtures = map[Variant]string{
	VariantRows: `{"rows":[
		{"uuid":"u-other","name":"Servers","content":["10.0.0.1"]},
		{"uuid":"u1","name":"Blocked","content":["1.2.3.4"]}
	],"rowCount":2}`,
	VariantNested: `{"alias":{"aliases":{"alias":{
		"u-other":{"name":"Servers","content":{"10.0.0.1":{"value":"10.0.0.1","selected":1}}},
		"u1":{"name":"Blocked","type":{"host":{"value":"Host(s)","selected":1},"network":{"value":"Network(s)","selected":0}},
		      "content":{"1.2.3.4":{"value":"1.2.3.4","selected":1},"":{"value":"","selected":0}}}
	}}}}`,
	VariantFlatMap: `{"alias":{"aliases":{
		"u-other":{"name":"Servers","content":{"10.0.0.1":{}}},
		"u1":{"name":"Blocked","enabled":"1","content":{"1.2.3.4":{"selected":0}}}
	}}}`,
}

func TestParseAliases_AllShapesNormalizeIdentically(t *testing.T) {
	for variant, body := range shapeFixtures {
		t.Run(variant.String(), func(t *testing.T) {
			snap, err := ParseAliases([]byte(body))
			require.NoError(t, err)
			assert.Equal(t, variant, snap.Variant)

			blocked, ok := snap.ByName()["Blocked"]
			require.True(t, ok, "Blocked alias missing")
			assert.Equal(t, "u1", blocked.Handle)
			assert.Equal(t, "Blocked", blocked.Name)
			assert.Equal(t, []string{"1.2.3.4"}, blocked.Members.Slice())
		})
	}
}

func TestParseAliases_BareListIsRowsVariant(t *testing.T) {
	snap, err := ParseAliases([]byte(`[{"uuid":"u1","name":"Blocked","content":"1.2.3.4\n5.6.7.8"}]`))
	require.NoError(t, err)
	assert.Equal(t, VariantRows, snap.Variant)

	a, ok := snap.Lookup("Blocked")
	require.True(t, ok)
	assert.Equal(t, []string{"1.2.3.4", "5.6.7.8"}, a.Members.Slice())
	assert.Equal(t, ContentText, snap.Style("u1"))
}

func TestParseAliases_EmptyOrMissingContent(t *testing.T) {
	body := `{"alias":{"aliases":{"alias":{
		"a":{"name":"NoContent"},
		"b":{"name":"NullContent","content":null},
		"c":{"name":"EmptyString","content":""},
		"d":{"name":"EmptyMap","content":{}}
	}}}}`
	snap, err := ParseAliases([]byte(body))
	require.NoError(t, err)
	require.Len(t, snap.Aliases, 4)
	for _, a := range snap.Aliases {
		assert.Equal(t, 0, a.Members.Len(), a.Name)
		assert.Equal(t, ContentMap, snap.Style(a.Handle), a.Name)
	}
}

func TestParseAliases_UnknownShapes(t *testing.T) {
	cases := map[string]string{
		"malformed":        `{"alias":`,
		"empty body":       ``,
		"no known keys":    `{"status":"ok"}`,
		"alias no aliases": `{"alias":{"foo":{}}}`,
		"rows not list":    `{"rows":{"a":1}}`,
		"bad content":      `{"rows":[{"uuid":"u","name":"x","content":42}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			snap, err := ParseAliases([]byte(body))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrParse)
			require.NotNil(t, snap)
			assert.Empty(t, snap.ByName())
		})
	}
}

func TestParseAliases_FirstMatchWinsAndDuplicateMembers(t *testing.T) {
	body := `{"alias":{"aliases":{
		"first":{"name":"Blocked","content":["1.1.1.1","1.1.1.1"]},
		"second":{"name":"Blocked","content":["2.2.2.2"]},
		"lower":{"name":"blocked","content":["3.3.3.3"]}
	}}}`
	snap, err := ParseAliases([]byte(body))
	require.NoError(t, err)

	a, ok := snap.Lookup("Blocked")
	require.True(t, ok)
	assert.Equal(t, "first", a.Handle)
	assert.Equal(t, []string{"1.1.1.1"}, a.Members.Slice())
	assert.Equal(t, "first", snap.ByName()["Blocked"].Handle)
	assert.Equal(t, "lower", snap.ByName()["blocked"].Handle)
}

func TestParseAliases_AttributesCaptured(t *testing.T) {
	snap, err := ParseAliases([]byte(shapeFixtures[VariantNested]))
	require.NoError(t, err)
	a, _ := snap.Lookup("Blocked")
	assert.Equal(t, "host", a.Attributes["type"])
}

func TestEncodeWrite_RequiredFieldsAndDefaults(t *testing.T) {
	alias := domain.Alias{Handle: "u1", Name: "Blocked"}
	body, err := EncodeWrite(alias, domain.NewMemberSet("1.2.3.4", "5.6.7.8"), ContentText)
	require.NoError(t, err)

	var top map[string]any
	require.NoError(t, json.Unmarshal(body, &top))

	assert.Contains(t, top, "network_content")
	assert.Contains(t, top, "authgroup_content")

	fields := top["alias"].(map[string]any)
	for _, key := range []string{"enabled", "name", "type", "proto", "categories", "updatefreq", "content",
		"path_expression", "authtype", "username", "password", "interface", "counters", "description"} {
		assert.Contains(t, fields, key)
	}
	assert.Equal(t, "1", fields["enabled"])
	assert.Equal(t, "host", fields["type"])
	assert.Equal(t, "Blocked", fields["name"])
	assert.Equal(t, "1.2.3.4\n5.6.7.8", fields["content"])
}

func TestEncodeWrite_MatchesFetchedStyle(t *testing.T) {
	snap, err := ParseAliases([]byte(shapeFixtures[VariantNested]))
	require.NoError(t, err)
	a, _ := snap.Lookup("Blocked")

	body, err := snap.EncodeWrite(a, a.Members.With("9.9.9.9"))
	require.NoError(t, err)

	var req struct {
		Alias struct {
			Type    string                   `json:"type"`
			Content map[string]ContentOption `json:"content"`
		} `json:"alias"`
	}
	require.NoError(t, json.Unmarshal(body, &req))
	assert.Equal(t, "host", req.Alias.Type)
	assert.Len(t, req.Alias.Content, 2)
	assert.Equal(t, ContentOption{Value: "9.9.9.9", Selected: 1}, req.Alias.Content["9.9.9.9"])
}

func TestEncodeWrite_EchoesMultiSelect(t *testing.T) {
	body := `{"alias":{"aliases":{"alias":{"u1":{
		"name":"Blocked",
		"proto":{"IPv4":{"value":"IPv4","selected":1},"IPv6":{"value":"IPv6","selected":1}},
		"categories":{"c1":{"value":"Kids","selected":1},"c3":{"value":"Guests","selected":0},"c2":{"value":"Home","selected":1}},
		"counters":"7",
		"content":{"1.2.3.4":{"value":"1.2.3.4","selected":1}}
	}}}}}`
	snap, err := ParseAliases([]byte(body))
	require.NoError(t, err)
	a, _ := snap.Lookup("Blocked")
	assert.Equal(t, "IPv4,IPv6", a.Attributes["proto"])
	assert.Equal(t, "c1,c2", a.Attributes["categories"])

	out, err := snap.EncodeWrite(a, a.Members.With("5.6.7.8"))
	require.NoError(t, err)

	var req struct {
		Alias struct {
			Proto      string `json:"proto"`
			Categories string `json:"categories"`
			Counters   string `json:"counters"`
		} `json:"alias"`
	}
	require.NoError(t, json.Unmarshal(out, &req))
	assert.Equal(t, "IPv4,IPv6", req.Alias.Proto)
	assert.Equal(t, "c1,c2", req.Alias.Categories)
	assert.Equal(t, "2", req.Alias.Counters, "counters follows the new member count")
}

// echo simulates the appliance returning what was written, in the listing shape it uses.
func echo(t *testing.T, variant Variant, handle string, body []byte) []byte {
	t.Helper()
	var req struct {
		Alias map[string]json.RawMessage `json:"alias"`
	}
	require.NoError(t, json.Unmarshal(body, &req))

	var out any
	switch variant {
	case VariantRows:
		req.Alias["uuid"], _ = json.Marshal(handle)
		out = map[string]any{"rows": []any{req.Alias}}
	case VariantNested:
		out = map[string]any{"alias": map[string]any{"aliases": map[string]any{"alias": map[string]any{handle: req.Alias}}}}
	case VariantFlatMap:
		out = map[string]any{"alias": map[string]any{"aliases": map[string]any{handle: req.Alias}}}
	}
	data, err := json.Marshal(out)
	require.NoError(t, err)
	return data
}

func TestEncodeWrite_RoundTrip(t *testing.T) {
	sets := [][]string{
		{},
		{"1.2.3.4"},
		{"10.0.0.5", "10.0.0.9", "fd00::1"},
	}
	for variant, fixture := range shapeFixtures {
		for _, members := range sets {
			snap, err := ParseAliases([]byte(fixture))
			require.NoError(t, err)
			a, _ := snap.Lookup("Blocked")

			want := domain.NewMemberSet(members...)
			body, err := snap.EncodeWrite(a, want)
			require.NoError(t, err)

			again, err := ParseAliases(echo(t, variant, a.Handle, body))
			require.NoError(t, err, variant.String())
			got, ok := again.Lookup("Blocked")
			require.True(t, ok)
			assert.True(t, want.Equal(got.Members), "%s: want %v got %v", variant, want.Slice(), got.Members.Slice())
			assert.Equal(t, a.Handle, got.Handle)
		}
	}
}

func TestParseLeases(t *testing.T) {
	body := `{"rows":[
		{"address":"192.168.1.10","hostname":"laptop","mac":"aa:bb:cc:dd:ee:01"},
		{"address":"192.168.1.11","hostname":"","hwaddr":"aa:bb:cc:dd:ee:02"},
		{"address":"","hostname":"ghost","mac":"aa:bb:cc:dd:ee:03"}
	],"total":3}`
	leases, err := ParseLeases([]byte(body))
	require.NoError(t, err)
	require.Len(t, leases, 3)
	assert.Equal(t, domain.Lease{Hostname: "laptop", MAC: "aa:bb:cc:dd:ee:01", Address: "192.168.1.10"}, leases[0])
	assert.Equal(t, "aa:bb:cc:dd:ee:02", leases[1].MAC)

	_, err = ParseLeases([]byte(`not json`))
	assert.ErrorIs(t, err, domain.ErrParse)
}
