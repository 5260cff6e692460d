package output

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareDir(t *testing.T) {
	root := t.TempDir()

	t.Run("creates missing", func(t *testing.T) {
		path := filepath.Join(root, "a", "b")
		require.NoError(t, PrepareDir(path))
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("idempotent", func(t *testing.T) {
		path := filepath.Join(root, "same")
		require.NoError(t, PrepareDir(path))
		require.NoError(t, PrepareDir(path))
	})

	t.Run("file in the way", func(t *testing.T) {
		path := filepath.Join(root, "file")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		err := PrepareDir(path)
		assert.ErrorIs(t, err, ErrNotDirectory)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Error(t, PrepareDir(" "))
	})
}

func TestNewDirs_AttachmentConflict(t *testing.T) {
	root := t.TempDir()
	blocked := filepath.Join(root, "res")
	require.NoError(t, os.WriteFile(blocked, nil, 0o644))

	_, err := NewDirs(filepath.Join(root, "html"), blocked)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotDirectory)
	assert.Contains(t, err.Error(), "attachment dir")
}

func TestDirs_WriteImageTruncates(t *testing.T) {
	root := t.TempDir()
	d, err := NewDirs(filepath.Join(root, "html"), filepath.Join(root, "res"))
	require.NoError(t, err)

	require.NoError(t, d.WriteImage("A.png", []byte("0123456789")))
	require.NoError(t, d.WriteImage("A.png", []byte("xy")))

	got, err := os.ReadFile(filepath.Join(root, "res", "A.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("xy"), got)
}

func TestDirs_CreateHTML(t *testing.T) {
	root := t.TempDir()
	d, err := NewDirs(filepath.Join(root, "html"), filepath.Join(root, "res"))
	require.NoError(t, err)

	w, err := d.CreateHTML("index-1.html")
	require.NoError(t, err)
	_, err = w.Write([]byte("<p>hi</p>"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	got, err := os.ReadFile(filepath.Join(root, "html", "index-1.html"))
	require.NoError(t, err)
	assert.Equal(t, "<p>hi</p>", string(got))
}

func TestConfine(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain", in: "A.png", want: "A.png"},
		{name: "traversal", in: "../../etc/X.png", want: "X.png"},
		{name: "windows path", in: `C:\Users\me\Y.gif`, want: "Y.gif"},
		{name: "url", in: "HTTP://HOST/IMG/Z.jpg", want: "Z.jpg"},
		{name: "dot dot", in: "..", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := confine("dir", tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, filepath.Join("dir", tt.want), got)
		})
	}
}

func TestDiscard(t *testing.T) {
	d := &Discard{}
	w, err := d.CreateHTML("index-1.html")
	require.NoError(t, err)
	_, _ = w.Write([]byte("abc"))
	require.NoError(t, w.Close())
	require.NoError(t, d.WriteImage("A.png", []byte("de")))

	assert.Equal(t, int64(5), d.Bytes())
}
