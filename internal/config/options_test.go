package config

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type binOptions struct {
	Common
	BinSize   float64  `json:"bin_size"`
	BinOffset float64  `json:"bin_offset"`
	Tags      []string `json:"tags"`
}

func (o *binOptions) Validate() error {
	if o.BinSize <= 0 {
		return errors.New("bin_size must be positive")
	}
	return nil
}

func freshBin() Options { return &binOptions{} }

func defaultBin() *binOptions {
	return &binOptions{Common: DefaultCommon(), BinSize: 0.01, Tags: []string{"a"}}
}

func TestDefaultCommon(t *testing.T) {
	t.Parallel()

	c := DefaultCommon()
	assert.True(t, c.IsActive)
	assert.True(t, c.AutoRunOnConfigChange)
	assert.Same(t, &c, c.Base())
}

func TestMerge(t *testing.T) {
	t.Parallel()

	t.Run("partial update keeps other keys", func(t *testing.T) {
		cur := defaultBin()
		next, err := Merge(cur, []byte(`{"bin_offset": 0.005, "is_active": false}`), freshBin)
		require.NoError(t, err)

		want := &binOptions{
			Common:    Common{IsActive: false, AutoRunOnConfigChange: true},
			BinSize:   0.01,
			BinOffset: 0.005,
			Tags:      []string{"a"},
		}
		if diff := cmp.Diff(want, next); diff != "" {
			t.Fatalf("merged options mismatch (-want +got):\n%s", diff)
		}
		// The current record is untouched.
		assert.True(t, cur.IsActive)
		assert.Zero(t, cur.BinOffset)
	})

	t.Run("unknown key rejected", func(t *testing.T) {
		_, err := Merge(defaultBin(), []byte(`{"bin_width": 1}`), freshBin)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("wrong type rejected", func(t *testing.T) {
		_, err := Merge(defaultBin(), []byte(`{"bin_size": "big"}`), freshBin)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("validation failure", func(t *testing.T) {
		_, err := Merge(defaultBin(), []byte(`{"bin_size": -1}`), freshBin)
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.Contains(t, err.Error(), "bin_size must be positive")
	})
}

func TestClone_DeepCopy(t *testing.T) {
	t.Parallel()

	cur := defaultBin()
	cp, err := Clone(cur, freshBin)
	require.NoError(t, err)
	cp.(*binOptions).Tags[0] = "changed"
	assert.Equal(t, "a", cur.Tags[0])
}

func TestToMap(t *testing.T) {
	t.Parallel()

	m, err := ToMap(defaultBin())
	require.NoError(t, err)
	assert.Equal(t, true, m["is_active"])
	assert.Equal(t, true, m["auto_run_on_config_change"])
	assert.Equal(t, 0.01, m["bin_size"])
	assert.Equal(t, []any{"a"}, m["tags"])
}
