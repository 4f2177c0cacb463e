// Package docuri translates between filesystem paths and document-provider
// identifiers: document IDs ("primary:DCIM/Camera"), tree URIs
// ("content://com.android.externalstorage.documents/tree/primary%3ADCIM")
// and document URIs below a tree.
package docuri

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

const (
	// ExternalStorageAuthority is the provider serving storage volumes.
	ExternalStorageAuthority = "com.android.externalstorage.documents"
	// DownloadsAuthority is the provider serving the public downloads folder.
	DownloadsAuthority = "com.android.providers.downloads.documents"
	// PrimaryStorageID is the storage ID of the built-in external storage.
	PrimaryStorageID = "primary"
	// DownloadsFolder is the downloads directory relative to primary storage.
	DownloadsFolder = "Download"

	contentScheme = "content://"
	rawPrefix     = "raw:"
)

var (
	// ErrInvalidURI indicates a string that is neither a supported content
	// URI nor a document ID.
	ErrInvalidURI = errors.New("invalid document uri")
	// ErrOutsideStorage indicates a path that is under no known storage root.
	ErrOutsideStorage = errors.New("path is outside known storage volumes")
)

// Document is a parsed document reference.
type Document struct {
	StorageID string
	BasePath  string // slash separated, relative to the volume root
	Tree      bool   // the reference names a granted tree rather than a child
	RawPath   string // set for downloads "raw:" IDs, which carry a filesystem path
	// TreeID is the granted tree of a tree/document URI, empty otherwise.
	TreeID string
}

// ID returns the document ID, "<storageId>:<basePath>".
func (d Document) ID() string {
	return DocumentID(d.StorageID, d.BasePath)
}

// DocumentID builds "<storageId>:<basePath>" with surrounding separators
// trimmed from basePath.
func DocumentID(storageID, basePath string) string {
	return storageID + ":" + trimSeparators(basePath)
}

// ParseDocumentID splits a document ID into storage ID and base path.
func ParseDocumentID(id string) (storageID, basePath string, err error) {
	storageID, basePath, ok := strings.Cut(id, ":")
	if !ok || !validStorageID(storageID) {
		return "", "", fmt.Errorf("%w: document id %q", ErrInvalidURI, id)
	}

	basePath = trimSeparators(basePath)
	if basePath == ".." || strings.HasPrefix(basePath, "../") {
		return "", "", fmt.Errorf("%w: document id %q leaves its volume", ErrInvalidURI, id)
	}

	return storageID, basePath, nil
}

// validStorageID rejects IDs that would not name a single directory below
// the volumes root.
func validStorageID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

// TreeURI returns the tree URI granting access to basePath on storageID.
func TreeURI(storageID, basePath string) string {
	return contentScheme + ExternalStorageAuthority + "/tree/" + encode(DocumentID(storageID, basePath))
}

// DocumentURI returns the URI of a document reached through a granted tree.
func DocumentURI(treeID, documentID string) string {
	return contentScheme + ExternalStorageAuthority + "/tree/" + encode(treeID) + "/document/" + encode(documentID)
}

// Parse accepts tree URIs, document URIs, tree/document URIs, downloads
// provider URIs and bare document IDs.
func Parse(s string) (Document, error) {
	if !strings.HasPrefix(s, contentScheme) {
		storageID, basePath, err := ParseDocumentID(s)
		if err != nil {
			return Document{}, err
		}
		return Document{StorageID: storageID, BasePath: basePath}, nil
	}

	u, err := url.Parse(s)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %w", ErrInvalidURI, err)
	}

	segments := strings.Split(strings.Trim(u.EscapedPath(), "/"), "/")
	ids := make(map[string]string, 2)
	for i := 0; i+1 < len(segments); i += 2 {
		id, err := url.PathUnescape(segments[i+1])
		if err != nil {
			return Document{}, fmt.Errorf("%w: %w", ErrInvalidURI, err)
		}
		ids[segments[i]] = id
	}

	id, isDocument := ids["document"]
	treeID, isTree := ids["tree"]
	switch {
	case isDocument:
	case isTree:
		id = treeID
	default:
		return Document{}, fmt.Errorf("%w: %q has no tree or document segment", ErrInvalidURI, s)
	}

	if u.Host == DownloadsAuthority {
		return parseDownloadsID(id, !isDocument), nil
	}
	if u.Host != ExternalStorageAuthority {
		return Document{}, fmt.Errorf("%w: unsupported authority %q", ErrInvalidURI, u.Host)
	}

	storageID, basePath, err := ParseDocumentID(id)
	if err != nil {
		return Document{}, err
	}

	doc := Document{StorageID: storageID, BasePath: basePath, Tree: !isDocument}
	if isDocument && isTree {
		if _, _, err := ParseDocumentID(treeID); err != nil {
			return Document{}, err
		}
		doc.TreeID = treeID
	}

	return doc, nil
}

func parseDownloadsID(id string, tree bool) Document {
	if raw, ok := strings.CutPrefix(id, rawPrefix); ok {
		return Document{RawPath: raw, Tree: tree}
	}

	return Document{StorageID: PrimaryStorageID, BasePath: DownloadsFolder, Tree: tree}
}

// StorageRoots maps storage IDs to directories.
type StorageRoots struct {
	// External is the primary external storage directory.
	External string
	// Volumes holds one directory per removable volume, named by storage ID.
	Volumes string
}

// ToPath returns the directory or file that basePath on storageID refers to.
func (r StorageRoots) ToPath(storageID, basePath string) string {
	base := filepath.FromSlash(trimSeparators(basePath))
	if storageID == PrimaryStorageID {
		return filepath.Join(r.External, base)
	}

	return filepath.Join(r.Volumes, storageID, base)
}

// Resolve returns the filesystem path a parsed document refers to.
func (r StorageRoots) Resolve(d Document) string {
	if d.RawPath != "" {
		return filepath.Clean(filepath.FromSlash(d.RawPath))
	}

	return r.ToPath(d.StorageID, d.BasePath)
}

// FromPath returns the storage ID and base path of a filesystem path.
func (r StorageRoots) FromPath(p string) (storageID, basePath string, err error) {
	clean := filepath.Clean(p)

	if r.External != "" {
		if rel, ok := relativeTo(r.External, clean); ok {
			return PrimaryStorageID, rel, nil
		}
	}

	if r.Volumes != "" {
		if rel, ok := relativeTo(r.Volumes, clean); ok && rel != "" {
			storageID, basePath, _ := strings.Cut(rel, "/")
			return storageID, basePath, nil
		}
	}

	return "", "", fmt.Errorf("%w: %s", ErrOutsideStorage, p)
}

// relativeTo returns child relative to parent in slash form.
func relativeTo(parent, child string) (string, bool) {
	rel, err := filepath.Rel(filepath.Clean(parent), child)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	if rel == "." {
		return "", true
	}

	return filepath.ToSlash(rel), true
}

func trimSeparators(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}

	return path.Clean(p)
}

// encode escapes everything except the characters Android leaves alone in
// URI path segments.
func encode(s string) string {
	const unreserved = "_-!.~'()*"

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9' || strings.IndexByte(unreserved, c) >= 0 {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}

	return b.String()
}
