package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pptcmd "github.com/donaldgifford/property-price-tracker/cmd/ppt/cmd"
)

func TestGenerate(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "ppt")
	require.NoError(t, generate(pptcmd.Root(), dir))

	for _, name := range []string{"ppt.md", "ppt_listings_history.md", "ppt_partitions_resume.md"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.NotEmpty(t, data)
	}
}
