// Package mediastore keeps a media index in a SQL database and exposes each
// media collection as a storage backend. Entries are addressed by display
// name and relative path, and several entries may share a name, exactly as
// in a platform media store.
package mediastore

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"strconv"
	"strings"
	"time"

	"storagecompat/pkg/view"
)

// MediaType selects a media collection.
type MediaType string

const (
	Image     MediaType = "image"
	Audio     MediaType = "audio"
	Video     MediaType = "video"
	Downloads MediaType = "downloads"
)

// ErrUnknownMediaType is returned by ParseMediaType.
var ErrUnknownMediaType = errors.New("unknown media type")

// ParseMediaType parses "image", "audio", "video" or "downloads".
func ParseMediaType(s string) (MediaType, error) {
	switch t := MediaType(strings.ToLower(s)); t {
	case Image, Audio, Video, Downloads:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMediaType, s)
	}
}

// DefaultDir is the relative path new entries of this type land in when no
// scope is given.
func (t MediaType) DefaultDir() string {
	switch t {
	case Audio:
		return "Music"
	case Video:
		return "Movies"
	case Downloads:
		return "Download"
	default:
		return "Pictures"
	}
}

func (t MediaType) collection() string {
	switch t {
	case Audio:
		return "audio/media"
	case Video:
		return "video/media"
	case Downloads:
		return "downloads"
	default:
		return "images/media"
	}
}

// MediaFile is one row of the media index.
type MediaFile struct {
	ID           int64
	MediaType    MediaType
	DisplayName  string
	RelativePath string // slash separated, with a trailing slash
	MimeType     string
	Size         int64
	DateAdded    time.Time
	DateModified time.Time
	Owner        string
}

// URI returns the content URI of the entry.
func (f MediaFile) URI() string {
	return "content://media/external/" + f.MediaType.collection() + "/" + strconv.FormatInt(f.ID, 10)
}

// BasePath returns the relative path joined with the display name.
func (f MediaFile) BasePath() string {
	return f.RelativePath + f.DisplayName
}

// ExtensionFromMime returns the usual extension, without a dot, for a MIME
// type, or "" when the type is unknown.
func ExtensionFromMime(mimeType string) string {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return ""
	}
	if ext, ok := preferredExtensions[mediaType]; ok {
		return ext
	}

	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return ""
	}

	return strings.TrimPrefix(exts[0], ".")
}

// mime.ExtensionsByType sorts alphabetically, which picks ".jfif" for JPEG.
var preferredExtensions = map[string]string{
	"image/jpeg":      "jpg",
	"image/png":       "png",
	"image/gif":       "gif",
	"image/webp":      "webp",
	"audio/mpeg":      "mp3",
	"audio/ogg":       "ogg",
	"video/mp4":       "mp4",
	"text/plain":      "txt",
	"application/pdf": "pdf",
}

// NormalizeRelativePath cleans a relative path and gives it the trailing
// slash the index stores. An empty path maps to "".
func NormalizeRelativePath(p string) (string, error) {
	p = strings.Trim(p, "/")
	if p == "" {
		return "", nil
	}

	p = path.Clean(p)
	if p == ".." || strings.HasPrefix(p, "../") {
		return "", fmt.Errorf("relative path %q leaves the media root", p)
	}

	return p + "/", nil
}

// Options configures a Store.
type Options struct {
	Logger *slog.Logger
	// Now overrides the clock used for date_added and date_modified.
	Now func() time.Time
}

// Store is a media index.
type Store struct {
	db      *sql.DB
	dialect dialect
	logger  *slog.Logger
	now     func() time.Time
}

// Open connects to dsn with driver and creates the media table if needed.
func Open(ctx context.Context, driver Driver, dsn string, opts Options) (*Store, error) {
	db, err := sql.Open(string(driver), dsn)
	if err != nil {
		return nil, err
	}
	if driver == SQLite {
		// One connection keeps ":memory:" databases alive and serializes
		// writers, which SQLite needs anyway.
		db.SetMaxOpenConns(1)
	}

	s, err := NewFromDB(ctx, db, driver, opts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// NewFromDB wraps an existing connection and migrates it.
func NewFromDB(ctx context.Context, db *sql.DB, driver Driver, opts Options) (*Store, error) {
	s := &Store{
		db:      db,
		dialect: dialectFor(driver),
		logger:  opts.Logger,
		now:     opts.Now,
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.now == nil {
		s.now = time.Now
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("connect media database: %w", err)
	}
	for _, stmt := range s.dialect.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("migrate media database: %w", err)
		}
	}

	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert adds f to the index and returns it with ID and dates filled in.
// An empty relative path stores the entry in the type's default directory.
func (s *Store) Insert(ctx context.Context, f MediaFile) (MediaFile, error) {
	if f.DisplayName == "" || strings.ContainsAny(f.DisplayName, "/\x00") {
		return MediaFile{}, fmt.Errorf("invalid media display name %q", f.DisplayName)
	}

	rel := f.RelativePath
	if rel == "" {
		rel = f.MediaType.DefaultDir()
	}
	rel, err := NormalizeRelativePath(rel)
	if err != nil {
		return MediaFile{}, err
	}
	f.RelativePath = rel

	now := s.now().Truncate(time.Second)
	if f.DateAdded.IsZero() {
		f.DateAdded = now
	}
	f.DateModified = now

	query := `INSERT INTO media (media_type, display_name, relative_path, mime_type, size, date_added, date_modified, owner)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	args := []any{
		string(f.MediaType), f.DisplayName, f.RelativePath, f.MimeType, f.Size,
		f.DateAdded.Unix(), f.DateModified.Unix(), f.Owner,
	}

	if s.dialect.returningID {
		err = s.db.QueryRowContext(ctx, s.dialect.rebind(query+" RETURNING id"), args...).Scan(&f.ID)
	} else {
		var res sql.Result
		res, err = s.db.ExecContext(ctx, s.dialect.rebind(query), args...)
		if err == nil {
			f.ID, err = res.LastInsertId()
		}
	}
	if err != nil {
		return MediaFile{}, fmt.Errorf("insert media %q: %w", f.DisplayName, err)
	}

	s.logger.Debug("media inserted", "id", f.ID, "type", f.MediaType, "path", f.BasePath())

	return f, nil
}

// Get returns the entry with id, or view.ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (MediaFile, error) {
	files, err := s.query(ctx, "id = ?", id)
	if err != nil {
		return MediaFile{}, err
	}
	if len(files) == 0 {
		return MediaFile{}, fmt.Errorf("%w: media %d", view.ErrNotFound, id)
	}

	return files[0], nil
}

// FromFileName returns every entry of t named name, in any directory.
func (s *Store) FromFileName(ctx context.Context, t MediaType, name string) ([]MediaFile, error) {
	return s.query(ctx, "media_type = ? AND display_name = ?", string(t), name)
}

// FromBasePath returns the first entry at basePath ("Pictures/a.png"), or
// view.ErrNotFound.
func (s *Store) FromBasePath(ctx context.Context, t MediaType, basePath string) (MediaFile, error) {
	dir, name := path.Split(strings.Trim(basePath, "/"))
	files, err := s.inScope(ctx, t, dir, name)
	if err != nil {
		return MediaFile{}, err
	}
	if len(files) == 0 {
		return MediaFile{}, fmt.Errorf("%w: %s", view.ErrNotFound, basePath)
	}

	return files[0], nil
}

// FromRelativePath returns every entry of t directly inside rel.
func (s *Store) FromRelativePath(ctx context.Context, t MediaType, rel string) ([]MediaFile, error) {
	norm, err := NormalizeRelativePath(rel)
	if err != nil {
		return nil, err
	}
	bare := strings.TrimSuffix(norm, "/")

	return s.query(ctx, "media_type = ? AND relative_path IN (?, ?)", string(t), norm, bare)
}

// FromFileNameContains returns every entry of t whose name contains part.
func (s *Store) FromFileNameContains(ctx context.Context, t MediaType, part string) ([]MediaFile, error) {
	files, err := s.query(ctx, "media_type = ? AND display_name LIKE ? ESCAPE '!'",
		string(t), "%"+escapeLike(part)+"%")
	if err != nil {
		return nil, err
	}

	return filter(files, func(f MediaFile) bool { return strings.Contains(f.DisplayName, part) }), nil
}

// FromMimeType returns every entry of t with the given MIME type.
func (s *Store) FromMimeType(ctx context.Context, t MediaType, mimeType string) ([]MediaFile, error) {
	return s.query(ctx, "media_type = ? AND mime_type = ?", string(t), mimeType)
}

// FromMediaType returns every entry of t.
func (s *Store) FromMediaType(ctx context.Context, t MediaType) ([]MediaFile, error) {
	return s.query(ctx, "media_type = ?", string(t))
}

// Delete removes the entry with id.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind("DELETE FROM media WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete media %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: media %d", view.ErrNotFound, id)
	}

	return nil
}

// OpenReader returns the stored content of the entry with id.
func (s *Store) OpenReader(ctx context.Context, id int64) (io.Reader, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, s.dialect.rebind("SELECT data FROM media WHERE id = ?"), id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: media %d", view.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(data), nil
}

// OpenWriter returns a writer that replaces the content of the entry with id
// when closed.
func (s *Store) OpenWriter(ctx context.Context, id int64) (io.WriteCloser, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	return &mediaWriter{ctx: ctx, store: s, id: id}, nil
}

type mediaWriter struct {
	ctx    context.Context
	store  *Store
	id     int64
	buf    bytes.Buffer
	closed bool
}

func (w *mediaWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, errors.New("write to closed media writer")
	}

	return w.buf.Write(p)
}

func (w *mediaWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	s := w.store
	_, err := s.db.ExecContext(w.ctx,
		s.dialect.rebind("UPDATE media SET data = ?, size = ?, date_modified = ? WHERE id = ?"),
		w.buf.Bytes(), int64(w.buf.Len()), s.now().Unix(), w.id)
	if err != nil {
		return fmt.Errorf("store media %d: %w", w.id, err)
	}

	return nil
}

// inScope returns entries of t named name inside rel. Both the bare and the
// slash-terminated spelling of rel match.
func (s *Store) inScope(ctx context.Context, t MediaType, rel, name string) ([]MediaFile, error) {
	norm, err := NormalizeRelativePath(rel)
	if err != nil {
		return nil, err
	}
	bare := strings.TrimSuffix(norm, "/")

	return s.query(ctx, "media_type = ? AND display_name = ? AND relative_path IN (?, ?)",
		string(t), name, norm, bare)
}

// withPrefix returns entries of t inside rel whose name starts with prefix.
func (s *Store) withPrefix(ctx context.Context, t MediaType, rel, prefix string) ([]MediaFile, error) {
	norm, err := NormalizeRelativePath(rel)
	if err != nil {
		return nil, err
	}
	bare := strings.TrimSuffix(norm, "/")

	files, err := s.query(ctx,
		"media_type = ? AND relative_path IN (?, ?) AND display_name LIKE ? ESCAPE '!'",
		string(t), norm, bare, escapeLike(prefix)+"%")
	if err != nil {
		return nil, err
	}

	// LIKE ignores case for ASCII on SQLite and MySQL.
	return filter(files, func(f MediaFile) bool { return strings.HasPrefix(f.DisplayName, prefix) }), nil
}

const columns = "id, media_type, display_name, relative_path, mime_type, size, date_added, date_modified, owner"

func (s *Store) query(ctx context.Context, where string, args ...any) ([]MediaFile, error) {
	q := s.dialect.rebind("SELECT " + columns + " FROM media WHERE " + where + " ORDER BY id")

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query media: %w", err)
	}
	defer rows.Close()

	var files []MediaFile
	for rows.Next() {
		var (
			f               MediaFile
			mediaType       string
			added, modified int64
		)
		if err := rows.Scan(&f.ID, &mediaType, &f.DisplayName, &f.RelativePath, &f.MimeType,
			&f.Size, &added, &modified, &f.Owner); err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		f.MediaType = MediaType(mediaType)
		f.DateAdded = time.Unix(added, 0)
		f.DateModified = time.Unix(modified, 0)
		files = append(files, f)
	}

	return files, rows.Err()
}

func filter(files []MediaFile, keep func(MediaFile) bool) []MediaFile {
	out := files[:0]
	for _, f := range files {
		if keep(f) {
			out = append(out, f)
		}
	}

	return out
}
