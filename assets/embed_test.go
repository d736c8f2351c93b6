package assets

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseRoom(t *testing.T) {
	t.Parallel()

	text, err := BaseRoom()
	require.NoError(t, err)
	rows := strings.Split(text, "\n")
	require.Len(t, rows, 16)
	for _, r := range rows {
		assert.Len(t, r, 16)
	}
	assert.Equal(t, "bbbbbbbebbbbbbbb", rows[15])
}

func TestEmbeddedFiles(t *testing.T) {
	t.Parallel()

	b, err := Conditions()
	require.NoError(t, err)
	assert.Contains(t, string(b), "conditions:")

	names, err := fs.Glob(Migrations(), "*.sql")
	require.NoError(t, err)
	assert.Contains(t, names, "001_init.sql")
}
