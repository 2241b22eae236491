package data

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLayout = `
spawn: { x: 1, y: 1 }
exit: { x: 0, y: -3 }
seats:
  - { name: a, anchor: { x: 2, y: 2 } }
  - { anchor: { x: 3, y: 2 } }
obstacles:
  - { min: { x: 5, y: 5 }, max: { x: 6, y: 6 } }
`

func TestParseLayout(t *testing.T) {
	l, err := ParseLayout([]byte(sampleLayout))
	require.NoError(t, err)

	assert.Equal(t, Point{X: 1, Y: 1}, l.Spawn)
	assert.Equal(t, Point{X: 0, Y: -3}, l.Exit)
	require.Equal(t, 2, l.Count())
	assert.Equal(t, "a", l.Seats[0].Name)
	assert.Equal(t, "seat-1", l.Seats[1].Name, "unnamed seats get their index")
	assert.Equal(t, Point{X: 3, Y: 2}, l.Seats[1].Anchor)

	assert.True(t, l.Blocked(Point{X: 5.5, Y: 6}))
	assert.False(t, l.Blocked(Point{X: 4.9, Y: 5.5}))
	assert.False(t, Blocked(nil, Point{X: 5.5, Y: 6}))
}

func TestParseLayoutRejectsBadInput(t *testing.T) {
	_, err := ParseLayout([]byte("spawn: { x: 0, y: 0 }\nseats: []\n"))
	assert.ErrorContains(t, err, "no seats")

	_, err = ParseLayout([]byte("seats:\n  - { name: a }\n  - { name: a }\n"))
	assert.ErrorContains(t, err, "reuses name")

	_, err = ParseLayout([]byte("seats: ["))
	assert.ErrorContains(t, err, "parse seat layout")
}

func TestLoadLayoutFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seat_layout.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleLayout), 0o644))

	l, err := LoadLayout(path)
	require.NoError(t, err)
	assert.Equal(t, 2, l.Count())

	_, err = LoadLayout(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read seat layout")
}
