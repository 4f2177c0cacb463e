package docuri

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var roots = StorageRoots{
	External: filepath.FromSlash("/storage/emulated/0"),
	Volumes:  filepath.FromSlash("/storage"),
}

func TestDocumentID(t *testing.T) {
	assert.Equal(t, "primary:DCIM/Camera", DocumentID("primary", "/DCIM/Camera/"))
	assert.Equal(t, "primary:", DocumentID("primary", ""))
	assert.Equal(t, "1A2B-3C4D:Music", DocumentID("1A2B-3C4D", "Music"))
}

func TestParseDocumentID(t *testing.T) {
	storageID, basePath, err := ParseDocumentID("primary:DCIM//Camera/")
	require.NoError(t, err)
	assert.Equal(t, "primary", storageID)
	assert.Equal(t, "DCIM/Camera", basePath)

	for _, bad := range []string{
		"", "primary", ":Music", "a/b:Music", `a\b:Music`, "..:etc", ".:Music", "..:",
		"primary:../../etc", "primary:..",
	} {
		_, _, err := ParseDocumentID(bad)
		require.ErrorIs(t, err, ErrInvalidURI, bad)
	}
}

func TestTreeURI(t *testing.T) {
	assert.Equal(t,
		"content://com.android.externalstorage.documents/tree/primary%3AMusic",
		TreeURI("primary", "Music"),
	)
	assert.Equal(t,
		"content://com.android.externalstorage.documents/tree/primary%3ADCIM%2FCamera%20Roll",
		TreeURI("primary", "DCIM/Camera Roll"),
	)
}

func TestDocumentURI(t *testing.T) {
	assert.Equal(t,
		"content://com.android.externalstorage.documents/tree/primary%3AMusic/document/primary%3AMusic%2Fsong%20(1).mp3",
		DocumentURI("primary:Music", "primary:Music/song (1).mp3"),
	)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Document
	}{
		{
			name:  "tree uri",
			input: "content://com.android.externalstorage.documents/tree/primary%3AMusic",
			want:  Document{StorageID: "primary", BasePath: "Music", Tree: true},
		},
		{
			name:  "document uri",
			input: "content://com.android.externalstorage.documents/document/1A2B-3C4D%3ADCIM%2FCamera",
			want:  Document{StorageID: "1A2B-3C4D", BasePath: "DCIM/Camera"},
		},
		{
			name:  "tree and document uri",
			input: DocumentURI("primary:Music", "primary:Music/song.mp3"),
			want:  Document{StorageID: "primary", BasePath: "Music/song.mp3", TreeID: "primary:Music"},
		},
		{
			name:  "bare document id",
			input: "primary:Download",
			want:  Document{StorageID: "primary", BasePath: "Download"},
		},
		{
			name:  "volume root",
			input: "content://com.android.externalstorage.documents/tree/primary%3A",
			want:  Document{StorageID: "primary", Tree: true},
		},
		{
			name:  "downloads tree",
			input: "content://com.android.providers.downloads.documents/tree/downloads",
			want:  Document{StorageID: "primary", BasePath: "Download", Tree: true},
		},
		{
			name:  "downloads raw document",
			input: "content://com.android.providers.downloads.documents/document/raw%3A%2Fstorage%2Femulated%2F0%2FDownload%2Fa.pdf",
			want:  Document{RawPath: "/storage/emulated/0/Download/a.pdf"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_RoundTrip(t *testing.T) {
	got, err := Parse(TreeURI("primary", "DCIM/Camera Roll (old)"))
	require.NoError(t, err)
	assert.Equal(t, "primary:DCIM/Camera Roll (old)", got.ID())
}

func TestParse_Invalid(t *testing.T) {
	for _, bad := range []string{
		"content://com.android.externalstorage.documents/",
		"content://com.example.other/tree/primary%3AMusic",
		"content://com.android.externalstorage.documents/tree/nocolon",
		"content://com.android.externalstorage.documents/tree/..%3Aetc",
		DocumentURI("..:etc", "primary:Music/a.mp3"),
		"just-a-name",
	} {
		_, err := Parse(bad)
		require.ErrorIs(t, err, ErrInvalidURI, bad)
	}
}

func TestStorageRoots_ToPath(t *testing.T) {
	assert.Equal(t, filepath.FromSlash("/storage/emulated/0/Music"), roots.ToPath("primary", "Music"))
	assert.Equal(t, filepath.FromSlash("/storage/emulated/0"), roots.ToPath("primary", ""))
	assert.Equal(t, filepath.FromSlash("/storage/1A2B-3C4D/DCIM"), roots.ToPath("1A2B-3C4D", "/DCIM/"))
}

func TestStorageRoots_Resolve(t *testing.T) {
	assert.Equal(t, filepath.FromSlash("/storage/emulated/0/Download"),
		roots.Resolve(Document{StorageID: "primary", BasePath: "Download"}))
	assert.Equal(t, filepath.FromSlash("/storage/emulated/0/Download/a.pdf"),
		roots.Resolve(Document{RawPath: "/storage/emulated/0/Download/a.pdf"}))
}

func TestStorageRoots_FromPath(t *testing.T) {
	storageID, basePath, err := roots.FromPath(filepath.FromSlash("/storage/emulated/0/DCIM/Camera"))
	require.NoError(t, err)
	assert.Equal(t, "primary", storageID)
	assert.Equal(t, "DCIM/Camera", basePath)

	storageID, basePath, err = roots.FromPath(filepath.FromSlash("/storage/emulated/0"))
	require.NoError(t, err)
	assert.Equal(t, "primary", storageID)
	assert.Empty(t, basePath)

	storageID, basePath, err = roots.FromPath(filepath.FromSlash("/storage/1A2B-3C4D/Music/a.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "1A2B-3C4D", storageID)
	assert.Equal(t, "Music/a.mp3", basePath)

	_, _, err = roots.FromPath(filepath.FromSlash("/etc/passwd"))
	require.ErrorIs(t, err, ErrOutsideStorage)

	_, _, err = roots.FromPath(filepath.FromSlash("/storage"))
	require.ErrorIs(t, err, ErrOutsideStorage)
}
