package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSchema(t *testing.T) {
	s, err := Default()
	require.NoError(t, err)

	assert.Equal(t, 1, s.Version)
	assert.Equal(t, []string{"shared", "invoices", "merchants", "scans"}, s.TableNames())

	shared, ok := s.Table("shared")
	require.True(t, ok)
	assert.Equal(t, KeyShared, shared.PrimaryKey)
	assert.Empty(t, shared.Indexes)

	invoices, ok := s.Table("invoices")
	require.True(t, ok)
	assert.Equal(t, KeyID, invoices.PrimaryKey)
	assert.True(t, invoices.HasIndex("merchantReference"))
	assert.False(t, invoices.HasIndex("status"))

	scans, ok := s.Table("scans")
	require.True(t, ok)
	assert.Equal(t, []string{"userIdentifier", "status"}, scans.Indexes)
}

func TestDefaultSchema_Cached(t *testing.T) {
	a, err := Default()
	require.NoError(t, err)
	b, err := Default()
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestTable_Unknown(t *testing.T) {
	s, err := Default()
	require.NoError(t, err)
	_, ok := s.Table("receipts")
	assert.False(t, ok)
}

func TestCompile_MissingShared(t *testing.T) {
	_, err := Compile([]byte(`
		version: 1
		tables: invoices: primaryKey: "id"
	`), "test.cue")
	require.Error(t, err)

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "tables", ce.Field)
	assert.Contains(t, ce.Message, "shared")
}

func TestCompile_WrongPrimaryKey(t *testing.T) {
	_, err := Compile([]byte(`
		version: 1
		tables: {
			shared: primaryKey: "key"
			invoices: primaryKey: "key"
		}
	`), "test.cue")
	require.Error(t, err)

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "tables.invoices.primaryKey", ce.Field)
}

func TestCompile_DuplicateIndex(t *testing.T) {
	_, err := Compile([]byte(`
		version: 1
		tables: {
			shared: primaryKey: "key"
			scans: {
				primaryKey: "id"
				indexes: ["status", "status"]
			}
		}
	`), "test.cue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate index")
}

func TestCompile_SyntaxError(t *testing.T) {
	_, err := Compile([]byte(`version: `), "broken.cue")
	require.Error(t, err)
}

func TestCompile_MissingVersion(t *testing.T) {
	_, err := Compile([]byte(`tables: shared: primaryKey: "key"`), "test.cue")
	require.Error(t, err)
}

func TestCompileError_Format(t *testing.T) {
	err := &CompileError{Field: "tables", Message: "bad"}
	assert.Equal(t, "tables: bad", err.Error())
}
