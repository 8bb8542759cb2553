package narration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogRenders(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	c.pick = func(int) int { return 0 }

	got := c.Render(uuid.Nil, "announce.forged", map[string]any{"Name": "Ada", "Count": 2, "Max": 3})
	assert.Equal(t, "Ada has forged a relic. 2 of 3 now walk the world.", got)

	for _, cat := range []string{
		"announce.lost_on_death", "announce.bloodthirst_unmet", "announce.relic_lost",
		"whisper.idle", "whisper.warning", "whisper.last_chance",
		"combat.satisfied", "personal.pickup", "personal.removed_offline",
	} {
		assert.Contains(t, c.Categories(), cat)
	}
}

func TestRenderUnknownCategoryIsEmpty(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	assert.Empty(t, c.Render(uuid.New(), "announce.nope", nil))
}

func TestRenderExposesShortRelicID(t *testing.T) {
	c, err := Parse([]byte("x:\n  y:\n    - \"relic {{.Relic}}\"\n"))
	require.NoError(t, err)
	id := uuid.MustParse("6f1c2a3b-0000-4000-8000-000000000000")
	assert.Equal(t, "relic 6f1c2a3b", c.Render(id, "x.y", nil))
}

func TestLoadOverridesCategories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.yml")
	require.NoError(t, os.WriteFile(path, []byte("whisper:\n  idle:\n    - \"hush\"\n"), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "hush", c.Render(uuid.Nil, "whisper.idle", nil))
	assert.NotEmpty(t, c.Render(uuid.Nil, "whisper.last_chance", map[string]any{"Remaining": "59s"}))
}

func TestParseRejectsBadTemplate(t *testing.T) {
	_, err := Parse([]byte("x:\n  y:\n    - \"{{.Broken\"\n"))
	assert.Error(t, err)
}
