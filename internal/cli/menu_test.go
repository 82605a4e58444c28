package cli

import (
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func press(t *testing.T, m menuModel, keys ...tea.KeyMsg) menuModel {
	t.Helper()
	for _, k := range keys {
		model, _ := m.Update(k)
		next, ok := model.(menuModel)
		require.True(t, ok)
		m = next
	}
	return m
}

func typed(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

var (
	enter = tea.KeyMsg{Type: tea.KeyEnter}
	down  = tea.KeyMsg{Type: tea.KeyDown}
	right = tea.KeyMsg{Type: tea.KeyRight}
	left  = tea.KeyMsg{Type: tea.KeyLeft}
)

func TestMenuExit(t *testing.T) {
	m := press(t, newMenuModel("", "/dl"), down, down, enter)

	assert.True(t, m.done)
	assert.Equal(t, actionExit, m.result().Action)
}

func TestMenuCancel(t *testing.T) {
	m := press(t, newMenuModel("", "/dl"), tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.True(t, m.cancelled)
}

func TestMenuConvertForm(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "clip.mkv")
	require.NoError(t, os.WriteFile(input, []byte("x"), 0o644))

	m := press(t, newMenuModel("", "/dl"), enter)
	require.False(t, m.choosing)
	require.Equal(t, actionConvert, m.action)

	m = press(t, m, typed(filepath.Join(dir, "missing.mkv")), enter)
	assert.Equal(t, "File does not exist or is not a valid video file", m.err)
	assert.Equal(t, 0, m.index)

	m.input.SetValue("")
	m = press(t, m, typed(input), enter)
	assert.Empty(t, m.err)
	require.Equal(t, 1, m.index)

	// format: MP4 -> AVI -> MKV, then back to AVI
	m = press(t, m, right, right, left, enter)
	// quality: original -> 4K
	m = press(t, m, right, enter)
	m = press(t, m, typed("out dir"), enter)

	require.True(t, m.done)
	res := m.result()
	assert.Equal(t, actionConvert, res.Action)
	assert.Equal(t, input, res.Values["input"])
	assert.Equal(t, "AVI", res.Values["format"])
	assert.Equal(t, "4K", res.Values["quality"])
	assert.Equal(t, "out dir", res.Values["output"])
}

func TestMenuDownloadFormDefaults(t *testing.T) {
	m := newMenuModel(actionDownload, "/srv/downloads")
	require.False(t, m.choosing)

	m = press(t, m, typed("not a url"), enter)
	assert.Equal(t, "Please enter a valid YouTube URL", m.err)

	m.input.SetValue("")
	m = press(t, m, typed(videoURL), enter, enter, enter, enter)

	require.True(t, m.done)
	res := m.result()
	assert.Equal(t, videoURL, res.Values["url"])
	assert.Equal(t, "1080p", res.Values["quality"])
	assert.Equal(t, "MP4", res.Values["format"])
	assert.Equal(t, "/srv/downloads", res.Values["output"])
}

func TestMenuSelectWraps(t *testing.T) {
	m := newMenuModel(actionDownload, "/dl")
	m = press(t, m, down, down)
	require.Equal(t, "format", m.fields[m.index].Key)

	m = press(t, m, left)
	assert.Equal(t, "WebM", m.fields[m.index].Value)
	m = press(t, m, right)
	assert.Equal(t, "MP4", m.fields[m.index].Value)
}

func TestMenuViewShowsCurrentStep(t *testing.T) {
	m := newMenuModel("", "/dl")
	assert.Contains(t, m.View(), "What would you like to do?")
	assert.Contains(t, m.View(), "Download from YouTube")

	m = press(t, m, down, enter)
	assert.Contains(t, m.View(), "YouTube Downloader")
	assert.Contains(t, m.View(), "Enter YouTube video URL:")
}
