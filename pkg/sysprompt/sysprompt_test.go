package sysprompt

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "system_messages"))
	require.NoError(t, err)
	return m
}

func TestSeedsDefaultTemplate(t *testing.T) {
	m := newTestManager(t)

	tmpl, err := m.Load(DefaultName)
	require.NoError(t, err)
	assert.Contains(t, tmpl.Message, "intelligent assistant")
	assert.Equal(t, DefaultName, m.Selected())
}

func TestSaveLoadUpdateDelete(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Save(Template{
		Name:        "legal",
		Message:     "Answer as a legal assistant.",
		Description: "legal domain",
	}))

	tmpl, err := m.Load("legal")
	require.NoError(t, err)
	assert.Equal(t, "Answer as a legal assistant.", tmpl.Message)
	assert.NotEmpty(t, tmpl.CreatedAt)
	assert.Empty(t, tmpl.UpdatedAt)

	desc := "updated description"
	require.NoError(t, m.Update("legal", "Answer tersely.", &desc))
	tmpl, err = m.Load("legal")
	require.NoError(t, err)
	assert.Equal(t, "Answer tersely.", tmpl.Message)
	assert.Equal(t, "updated description", tmpl.Description)
	assert.NotEmpty(t, tmpl.UpdatedAt)

	// Update without a description leaves the old one in place.
	require.NoError(t, m.Update("legal", "Answer fully.", nil))
	tmpl, err = m.Load("legal")
	require.NoError(t, err)
	assert.Equal(t, "updated description", tmpl.Description)

	require.NoError(t, m.Delete("legal"))
	_, err = m.Load("legal")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateMissingTemplate(t *testing.T) {
	m := newTestManager(t)
	assert.ErrorIs(t, m.Update("ghost", "text", nil), ErrNotFound)
}

func TestDefaultCannotBeDeleted(t *testing.T) {
	m := newTestManager(t)
	assert.Error(t, m.Delete(DefaultName))
}

func TestListSkipsPointerFile(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Save(Template{Name: "alpha", Message: "a"}))
	require.NoError(t, m.Save(Template{Name: "beta", Message: "b"}))

	templates, err := m.List()
	require.NoError(t, err)

	names := make([]string, 0, len(templates))
	for _, tmpl := range templates {
		names = append(names, tmpl.Name)
	}
	assert.Equal(t, []string{"alpha", "beta", "default"}, names)
}

func TestSelection(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Save(Template{Name: "korean", Message: "한국어로 답하세요."}))
	require.NoError(t, m.SetSelected("korean"))

	assert.Equal(t, "korean", m.Selected())
	assert.Equal(t, "한국어로 답하세요.", m.SelectedMessage())

	// A dangling selection falls back to the default message.
	require.NoError(t, m.SetSelected("korean"))
	require.NoError(t, m.Delete("korean"))
	assert.Contains(t, m.SelectedMessage(), "intelligent assistant")
}

func TestRejectsUnsafeNames(t *testing.T) {
	m := newTestManager(t)

	for _, name := range []string{"", "..", "a/b", `a\b`, "../escape", "selected_message"} {
		assert.ErrorIs(t, m.Save(Template{Name: name, Message: "x"}), ErrInvalidName, name)
		_, err := m.Load(name)
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
}
