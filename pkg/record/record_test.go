package record_test

import (
	"testing"

	"github.com/rust-bucket/crate-index/internal/core/domain"
	"github.com/rust-bucket/crate-index/pkg/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const checksum = "d867001db0e2b6e0496f9fac96930e2d42233ecd3ca0413e0753d4c7695d289c"

func TestNew(t *testing.T) {
	rec, err := record.New("foo", "0.1.0", checksum)
	require.NoError(t, err)

	assert.Equal(t, "foo", rec.Name)
	assert.Equal(t, "0.1.0", rec.Version.String())
	assert.Equal(t, checksum, rec.Checksum)
	assert.False(t, rec.Yanked)
}

func TestNew_Serialize(t *testing.T) {
	rec, err := record.New("foo", "0.1.0", checksum)
	require.NoError(t, err)

	line, err := rec.MarshalLine()
	require.NoError(t, err)

	expected := `{"name":"foo","vers":"0.1.0","cksum":"` + checksum + `","yanked":false}`
	assert.Equal(t, expected, string(line))
}

func TestValidate_Names(t *testing.T) {
	cases := []struct {
		name    string
		wantErr bool
	}{
		{"foo", false},
		{"Some-Name", false},
		{"some_name", false},
		{"a1", false},
		{"", true},
		{"1foo", true},
		{"-start-with-hyphen", true},
		{"_underscore-start", true},
		{"nul", true},
		{"NUL", true},
		{"has space", true},
		{"has.dot", true},
		{"café", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := record.ValidateName(tc.name)
			if tc.wantErr {
				require.ErrorIs(t, err, domain.ErrInvalidName)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidate_NameTooLong(t *testing.T) {
	long := "a"
	for len(long) <= record.MaxNameLength {
		long += "a"
	}
	require.ErrorIs(t, record.ValidateName(long), domain.ErrInvalidName)
}

func TestNew_InvalidVersion(t *testing.T) {
	_, err := record.New("foo", "not-a-version", checksum)
	require.ErrorIs(t, err, domain.ErrInvalidVersion)

	// Partial versions are not accepted; the on-disk format requires
	// major.minor.patch.
	_, err = record.New("foo", "1.0", checksum)
	require.ErrorIs(t, err, domain.ErrInvalidVersion)
}

func TestNew_PreservesPrereleaseAndBuild(t *testing.T) {
	rec, err := record.New("foo", "1.2.3-alpha.1+build.5", checksum)
	require.NoError(t, err)
	assert.Equal(t, "1.2.3-alpha.1+build.5", rec.Version.String())
}

func TestValidate_Checksum(t *testing.T) {
	_, err := record.New("foo", "0.1.0", "abc123")
	require.ErrorIs(t, err, domain.ErrInvalidChecksum)

	_, err = record.New("foo", "0.1.0", "z867001db0e2b6e0496f9fac96930e2d42233ecd3ca0413e0753d4c7695d289c")
	require.ErrorIs(t, err, domain.ErrInvalidChecksum)

	// Uppercase input is accepted and normalised to lowercase.
	rec, err := record.New("foo", "0.1.0", "D867001DB0E2B6E0496F9FAC96930E2D42233ECD3CA0413E0753D4C7695D289C")
	require.NoError(t, err)
	assert.Equal(t, checksum, rec.Checksum)
}

func TestValidate_Dependencies(t *testing.T) {
	base := func() record.Record {
		rec, err := record.New("foo", "0.1.0", checksum)
		require.NoError(t, err)
		return rec
	}

	t.Run("valid dependency defaults kind to normal", func(t *testing.T) {
		rec := base()
		rec.Deps = []record.Dependency{{Name: "rand", Req: "^0.6", DefaultFeatures: true}}
		require.NoError(t, rec.Validate())
		assert.Equal(t, record.KindNormal, rec.Deps[0].Kind)
	})

	t.Run("bad requirement", func(t *testing.T) {
		rec := base()
		rec.Deps = []record.Dependency{{Name: "rand", Req: "not a req"}}
		require.ErrorIs(t, rec.Validate(), domain.ErrInvalidDependency)
	})

	t.Run("bad name", func(t *testing.T) {
		rec := base()
		rec.Deps = []record.Dependency{{Name: "1bad", Req: "^1.0"}}
		require.ErrorIs(t, rec.Validate(), domain.ErrInvalidDependency)
	})

	t.Run("bad kind", func(t *testing.T) {
		rec := base()
		rec.Deps = []record.Dependency{{Name: "rand", Req: "^1.0", Kind: "runtime"}}
		require.ErrorIs(t, rec.Validate(), domain.ErrInvalidDependency)
	})
}

func TestUnmarshalLine_WireFormat(t *testing.T) {
	// Index entries as published by real registries.
	example1 := `{"name":"foo","vers":"0.1.0","deps":[{"name":"rand","req":"^0.6","features":["i128_support"],"optional":false,"default_features":true,"target":null,"kind":"normal","registry":null,"package":null}],"cksum":"` + checksum + `","features":{"extras":["rand/simd_support"]},"yanked":false,"links":null}`

	rec, err := record.UnmarshalLine([]byte(example1))
	require.NoError(t, err)
	assert.Equal(t, "foo", rec.Name)
	assert.Equal(t, "0.1.0", rec.Version.String())
	require.Len(t, rec.Deps, 1)
	assert.Equal(t, "rand", rec.Deps[0].Name)
	assert.Equal(t, "^0.6", rec.Deps[0].Req)
	assert.Equal(t, record.KindNormal, rec.Deps[0].Kind)
	assert.Equal(t, []string{"rand/simd_support"}, rec.Features["extras"])

	example2 := `{"name":"my_serde","vers":"1.0.11","deps":[{"name":"serde","req":"^1.0","registry":"https://github.com/rust-lang/crates.io-index","features":[],"optional":true,"default_features":true,"target":null,"kind":"normal"}],"cksum":"f7726f29ddf9731b17ff113c461e362c381d9d69433f79de4f3dd572488823e9","features":{"default":["std"],"derive":["serde_derive"],"std":[]},"yanked":false}`

	rec, err = record.UnmarshalLine([]byte(example2))
	require.NoError(t, err)
	require.NoError(t, rec.Validate())
	assert.True(t, rec.Deps[0].Optional)
	assert.Equal(t, "https://github.com/rust-lang/crates.io-index", rec.Deps[0].Registry)
}

func TestRoundTrip(t *testing.T) {
	rec, err := record.New("Some-Crate", "1.2.3-beta.1", checksum)
	require.NoError(t, err)
	rec.Deps = []record.Dependency{
		{Name: "serde", Req: ">=1.0.0, <2.0.0", Features: []string{"derive"}, DefaultFeatures: true, Kind: record.KindNormal},
		{Name: "cc", Req: "^1.0", Kind: record.KindBuild, Target: "cfg(windows)"},
	}
	rec.Features = map[string][]string{"default": {"std"}, "std": {}}
	rec.Links = "git2"
	require.NoError(t, rec.Validate())

	line, err := rec.MarshalLine()
	require.NoError(t, err)

	parsed, err := record.UnmarshalLine(line)
	require.NoError(t, err)
	assert.Equal(t, rec, parsed)

	// Re-serialising a parsed line reproduces the original bytes; the
	// backing repository diffs these files.
	again, err := parsed.MarshalLine()
	require.NoError(t, err)
	assert.Equal(t, line, again)
}

func TestSameVersion(t *testing.T) {
	a, err := record.New("foo", "1.0.0+build.1", checksum)
	require.NoError(t, err)
	b, err := record.New("foo", "1.0.0+build.2", checksum)
	require.NoError(t, err)

	// Build metadata does not distinguish versions.
	assert.True(t, a.SameVersion(b.Version))

	c, err := record.New("foo", "1.0.1", checksum)
	require.NoError(t, err)
	assert.False(t, a.SameVersion(c.Version))
}

func TestValidate_Yank(t *testing.T) {
	rec, err := record.New("foo", "0.1.0", checksum)
	require.NoError(t, err)

	assert.False(t, rec.Yanked)
	rec.Yanked = true
	require.NoError(t, rec.Validate())
	assert.True(t, rec.Yanked)
}
