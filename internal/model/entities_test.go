package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEntitySet_AllKindsEmpty(t *testing.T) {
	t.Parallel()

	s := NewEntitySet()
	for _, k := range EntityKinds {
		v, ok := s[k]
		require.True(t, ok, "kind %s missing", k)
		assert.NotNil(t, v)
		assert.Empty(t, v)
	}

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"po_numbers":[]`)
}

func TestEntitySet_AddDeduplicates(t *testing.T) {
	t.Parallel()

	s := NewEntitySet()
	assert.True(t, s.Add(EntityPONumbers, "4589234"))
	assert.False(t, s.Add(EntityPONumbers, "4589234"))
	assert.True(t, s.Add(EntityPONumbers, "1234567"))
	assert.False(t, s.Add(EntityPONumbers, ""))

	assert.Equal(t, []string{"4589234", "1234567"}, s.Get(EntityPONumbers))
	assert.Equal(t, 2, s.Count())
}

func TestEntitySet_MergeIsAdditive(t *testing.T) {
	t.Parallel()

	a := NewEntitySet()
	a.Add(EntityQuoteNumbers, "100200")
	b := EntitySet{
		EntityQuoteNumbers: {"100200", "300400"},
		"contract_ids":     {"C-9"},
	}

	merged := a.Merge(b)
	assert.Equal(t, []string{"100200", "300400"}, merged.Get(EntityQuoteNumbers))
	assert.Equal(t, []string{"C-9"}, merged.Get("contract_ids"))

	// Inputs untouched.
	assert.Equal(t, []string{"100200"}, a.Get(EntityQuoteNumbers))
	_, hasCustom := a["contract_ids"]
	assert.False(t, hasCustom)
}

func TestEntitySet_MergeNilReceiver(t *testing.T) {
	t.Parallel()

	var a EntitySet
	merged := a.Merge(EntitySet{EntityDates: {"2025-01-02"}})
	assert.Equal(t, []string{"2025-01-02"}, merged.Get(EntityDates))
	assert.NotNil(t, merged.Get(EntityPONumbers))
}

func TestEntitySet_KindsOrder(t *testing.T) {
	t.Parallel()

	s := EntitySet{
		"zeta":          {},
		EntityDates:     {},
		"alpha":         {},
		EntityPONumbers: {},
	}
	assert.Equal(t, []EntityKind{EntityPONumbers, EntityDates, "alpha", "zeta"}, s.Kinds())
}
