// Package upload stores a file in object storage and links its public URL to a
// record, deleting the stored object again when the link step fails.
package upload

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lytoranea/website/internal/backend"
	"github.com/lytoranea/website/internal/errs"
	"github.com/lytoranea/website/internal/session"
	"github.com/lytoranea/website/internal/slug"
)

// MaxFileSize is the upload ceiling in bytes (5 MiB).
const MaxFileSize int64 = 5 * 1024 * 1024

// CacheControl is the max-age, in seconds, set on uploaded objects.
const CacheControl = "3600"

// DefaultExt is used when the original file name has no usable extension.
const DefaultExt = "jpg"

// State is a step of the upload-and-link sequence.
type State int

const (
	Validating State = iota
	Uploading
	Linking
	Done
	RolledBack
	Aborted // failed before anything was linked; nothing to compensate
)

func (s State) String() string {
	switch s {
	case Validating:
		return "validating"
	case Uploading:
		return "uploading"
	case Linking:
		return "linking"
	case Done:
		return "done"
	case RolledBack:
		return "rolled_back"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// File is the payload to store.
type File struct {
	Name        string // original name, used for the extension
	Size        int64
	ContentType string // derived from the extension when empty
	Body        io.Reader
}

// Target describes where the file goes and what it replaces.
type Target struct {
	Bucket string

	// Base and Fallback feed the generated key <slug>-<unix millis>.<ext>.
	Base     string
	Fallback string

	// KeyFunc, when set, builds the key from the lower-cased extension instead.
	KeyFunc func(ext string) string
	Upsert  bool

	// PreviousURL is the object the record pointed to before; it is deleted
	// after a successful link when its key differs from the new one.
	PreviousURL string

	// Invalidate lists the cache keys refreshed after success.
	Invalidate []string
}

// LinkFunc writes publicURL onto the target record through the token-attaching facade.
type LinkFunc func(ctx context.Context, p backend.Procedures, publicURL string) error

// Result describes a finished sequence.
type Result struct {
	Key   string
	URL   string
	State State
}

// Invalidator marks cached resources stale.
type Invalidator interface {
	Invalidate(ctx context.Context, keys ...string) error
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithObserver reports every state transition to fn.
func WithObserver(fn func(State)) Option { return func(s *Sequencer) { s.observe = fn } }

// WithClock replaces time.Now for key generation.
func WithClock(now func() time.Time) Option { return func(s *Sequencer) { s.now = now } }

// Sequencer runs upload-and-link sequences. It holds no per-owner lock;
// callers must not submit two sequences for the same record concurrently.
type Sequencer struct {
	dialer  backend.Dialer
	tokens  session.TokenSource
	cache   Invalidator
	log     *zap.Logger
	now     func() time.Time
	observe func(State)
}

// NewSequencer wires the sequencer. cache may be nil.
func NewSequencer(dialer backend.Dialer, tokens session.TokenSource, cache Invalidator, log *zap.Logger, opts ...Option) *Sequencer {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Sequencer{dialer: dialer, tokens: tokens, cache: cache, log: log, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CheckSize rejects files above MaxFileSize. Callers that touch the backend
// before UploadAndLink run it first.
func CheckSize(f File) error {
	if f.Size > MaxFileSize {
		return fmt.Errorf("%w: %d bytes", errs.ErrFileTooLarge, f.Size)
	}
	return nil
}

var invalidKeyRe = regexp.MustCompile(`(?i)invalidkey|invalid key`)

// UploadAndLink validates f, stores it, links its public URL via link and
// cleans up. Errors wrap errs.ErrAccessDenied, errs.ErrFileTooLarge,
// errs.ErrUploadFailed (plus errs.ErrInvalidKey) or errs.ErrLinkFailed.
func (s *Sequencer) UploadAndLink(ctx context.Context, f File, t Target, link LinkFunc) (Result, error) {
	s.enter(Validating)
	token := s.tokens.Token()
	if token == "" {
		return s.abort(errs.ErrAccessDenied)
	}
	if err := CheckSize(f); err != nil {
		return s.abort(err)
	}
	if f.Body == nil || t.Bucket == "" || link == nil {
		return s.abort(fmt.Errorf("%w: file, bucket and link are required", errs.ErrInvalidInput))
	}

	ext := Ext(f.Name)
	key := Key(t.Base, t.Fallback, ext, s.now())
	if t.KeyFunc != nil {
		key = t.KeyFunc(ext)
	}
	ct := f.ContentType
	if ct == "" {
		ct = mime.TypeByExtension("." + ext)
	}

	b := s.dialer.WithToken(token)
	log := s.log.With(zap.String("bucket", t.Bucket), zap.String("key", key))

	s.enter(Uploading)
	err := b.Upload(ctx, t.Bucket, key, f.Body, backend.UploadOptions{
		ContentType:  ct,
		CacheControl: CacheControl,
		Upsert:       t.Upsert,
	})
	if err != nil {
		log.Error("upload", zap.Error(err))
		if invalidKeyRe.MatchString(err.Error()) {
			return s.abort(fmt.Errorf("%w: %w: %v", errs.ErrUploadFailed, errs.ErrInvalidKey, err))
		}
		return s.abort(fmt.Errorf("%w: %w", errs.ErrUploadFailed, err))
	}

	url := b.PublicURL(t.Bucket, key)

	s.enter(Linking)
	if err := link(ctx, b, url); err != nil {
		log.Error("link", zap.Error(err))
		if rerr := b.Remove(context.WithoutCancel(ctx), t.Bucket, key); rerr != nil {
			log.Warn("rollback delete failed, object orphaned", zap.Error(rerr))
		}
		s.enter(RolledBack)
		return Result{Key: key, URL: url, State: RolledBack}, fmt.Errorf("%w: %w", errs.ErrLinkFailed, err)
	}

	if old := backend.ObjectKey(b, t.Bucket, t.PreviousURL); old != "" && old != key {
		if err := b.Remove(ctx, t.Bucket, old); err != nil {
			log.Warn("remove previous object", zap.String("previous", old), zap.Error(err))
		}
	}
	if s.cache != nil && len(t.Invalidate) > 0 {
		if err := s.cache.Invalidate(ctx, t.Invalidate...); err != nil {
			log.Warn("invalidate", zap.Strings("keys", t.Invalidate), zap.Error(err))
		}
	}

	s.enter(Done)
	log.Info("uploaded and linked", zap.String("url", url))
	return Result{Key: key, URL: url, State: Done}, nil
}

func (s *Sequencer) enter(st State) {
	if s.observe != nil {
		s.observe(st)
	}
}

func (s *Sequencer) abort(err error) (Result, error) {
	s.enter(Aborted)
	return Result{State: Aborted}, err
}

// Ext returns the lower-cased extension of name without the dot, or DefaultExt.
func Ext(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" || !slug.Valid(ext) || strings.Contains(ext, "-") {
		return DefaultExt
	}
	return ext
}

// Key builds a collision-resistant storage key: <slug>-<unix millis>.<ext>.
func Key(base, fallback, ext string, now time.Time) string {
	return fmt.Sprintf("%s-%d.%s", slug.Base(base, fallback), now.UnixMilli(), ext)
}
