// Package viewstate keeps a client's view of the bookmark list consistent
// with the server across user actions, identity changes and pushed change
// events.
//
// The list is a cached projection of the server state: it is replaced
// wholesale on every fetch and never edited locally. Mutations go to the
// server, and the change event they cause triggers the re-fetch that makes
// them visible.
package viewstate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"

	"github.com/patric-chuzhbe/smartmark/internal/logger"
	"github.com/patric-chuzhbe/smartmark/internal/models"
	"github.com/patric-chuzhbe/smartmark/internal/urlnorm"
)

// Toast texts.
const (
	MsgLoadFailed    = "Failed to load bookmarks"
	MsgMissingFields = "Enter a title and a URL"
	MsgInvalidURL    = "Enter a valid URL"
	MsgAddFailed     = "Could not add bookmark"
	MsgAdded         = "Bookmark added"
	MsgDeleteFailed  = "Could not delete bookmark"
	MsgDeleted       = "Bookmark deleted"
	MsgSignOutFailed = "Could not sign out"
)

// DefaultToastTTL is how long a toast stays visible.
const DefaultToastTTL = 2 * time.Second

const (
	defaultResubscribeWait    = 500 * time.Millisecond
	defaultMaxResubscribeWait = 30 * time.Second
)

var (
	ErrNoSession     = errors.New("not signed in")
	ErrSaveInFlight  = errors.New("a save is already in flight")
	ErrMissingFields = errors.New("title and URL are required")
)

// Session is the signed-in identity as the client sees it.
type Session struct {
	UserID string
	Email  string
	Token  string
}

// Backend performs the remote calls on behalf of a session token.
type Backend interface {
	ListBookmarks(ctx context.Context, token string) (models.Bookmarks, error)
	AddBookmark(ctx context.Context, token, title, url string) (*models.Bookmark, error)
	DeleteBookmark(ctx context.Context, token, id string) error
	SignOut(ctx context.Context, token string) error
}

// Watcher delivers the change events of the token's user to onEvent until
// ctx ends or the subscription fails.
type Watcher interface {
	Watch(ctx context.Context, token string, onEvent func(models.ChangeEvent)) error
}

type ToastKind int

const (
	ToastInfo ToastKind = iota
	ToastError
)

type Toast struct {
	Message string
	Kind    ToastKind
}

type EmptyState int

const (
	EmptyNone EmptyState = iota
	EmptyNoBookmarks
	EmptyNoMatches
)

// Snapshot is an immutable copy of the view state.
type Snapshot struct {
	Session    *Session
	Bookmarks  models.Bookmarks
	Visible    models.Bookmarks
	Search     string
	Title      string
	URL        string
	Saving     bool
	Loading    bool
	Toast      *Toast
	EmptyState EmptyState
}

// afterFunc schedules f after d and returns a func that cancels it.
type afterFunc func(d time.Duration, f func()) (stop func() bool)

func realAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

type InitOption func(*initOptions)

type initOptions struct {
	toastTTL       time.Duration
	afterFunc      afterFunc
	onChange       func(Snapshot)
	resubscribe    time.Duration
	maxResubscribe time.Duration
}

// WithToastTTL overrides DefaultToastTTL.
func WithToastTTL(ttl time.Duration) InitOption {
	return func(options *initOptions) {
		options.toastTTL = ttl
	}
}

// WithOnChange registers an observer called after every state transition,
// outside the synchronizer's lock.
func WithOnChange(onChange func(Snapshot)) InitOption {
	return func(options *initOptions) {
		options.onChange = onChange
	}
}

// WithResubscribeBackoff sets the first and the longest wait before a
// dropped change subscription is opened again.
func WithResubscribeBackoff(initial, maxWait time.Duration) InitOption {
	return func(options *initOptions) {
		options.resubscribe = initial
		options.maxResubscribe = maxWait
	}
}

func withAfterFunc(f afterFunc) InitOption {
	return func(options *initOptions) {
		options.afterFunc = f
	}
}

// Synchronizer owns the view state. It is safe for concurrent use; remote
// calls are made without holding the lock.
type Synchronizer struct {
	backend        Backend
	watcher        Watcher
	toastTTL       time.Duration
	afterFunc      afterFunc
	onChange       func(Snapshot)
	resubscribe    time.Duration
	maxResubscribe time.Duration

	mu         sync.Mutex
	session    *Session
	bookmarks  models.Bookmarks
	search     string
	title      string
	url        string
	saving     bool
	loading    bool
	toast      *Toast
	toastSeq   uint64
	stopToast  func() bool
	generation uint64
	fetchSeq   uint64
	appliedSeq uint64
	stopWatch  context.CancelFunc
}

func New(backend Backend, watcher Watcher, optionsProto ...InitOption) *Synchronizer {
	options := &initOptions{
		toastTTL:       DefaultToastTTL,
		afterFunc:      realAfterFunc,
		onChange:       func(Snapshot) {},
		resubscribe:    defaultResubscribeWait,
		maxResubscribe: defaultMaxResubscribeWait,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}
	if options.resubscribe <= 0 {
		options.resubscribe = defaultResubscribeWait
	}
	if options.maxResubscribe < options.resubscribe {
		options.maxResubscribe = options.resubscribe
	}

	return &Synchronizer{
		backend:        backend,
		watcher:        watcher,
		toastTTL:       options.toastTTL,
		afterFunc:      options.afterFunc,
		onChange:       options.onChange,
		resubscribe:    options.resubscribe,
		maxResubscribe: options.maxResubscribe,
	}
}

func (s *Synchronizer) notify() {
	s.onChange(s.Snapshot())
}

func sameUser(a, b *Session) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.UserID == b.UserID
}

// SetSession handles an identity transition. A new identity clears the
// list, replaces the change subscription and fetches the new user's
// bookmarks; a nil session clears everything. Setting the same user again
// only refreshes the stored token and email.
func (s *Synchronizer) SetSession(ctx context.Context, session *Session) {
	s.mu.Lock()
	if sameUser(s.session, session) {
		if session != nil {
			copied := *session
			s.session = &copied
		}
		s.mu.Unlock()
		return
	}

	s.generation++
	s.bookmarks = nil
	s.saving = false
	if s.stopWatch != nil {
		s.stopWatch()
		s.stopWatch = nil
	}

	if session == nil {
		s.session = nil
		s.loading = false
		s.mu.Unlock()
		s.notify()
		return
	}

	copied := *session
	s.session = &copied
	s.startWatchLocked(ctx, copied.UserID)
	s.mu.Unlock()
	s.notify()

	s.Refresh(ctx)
}

func (s *Synchronizer) startWatchLocked(ctx context.Context, userID string) {
	if s.watcher == nil {
		return
	}

	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.stopWatch = cancel

	go s.watch(watchCtx, s.generation, userID)
}

// watch keeps one subscription open for the session of generation. A
// dropped subscription is opened again with exponential backoff, using the
// session's current token, and followed by a re-fetch to catch up on the
// events missed in between.
func (s *Synchronizer) watch(ctx context.Context, generation uint64, userID string) {
	onEvent := func(event models.ChangeEvent) {
		if event.UserID != "" && event.UserID != userID {
			return
		}
		s.Refresh(ctx)
	}

	wait := s.resubscribe
	for attempt := 0; ; attempt++ {
		token, ok := s.tokenFor(generation)
		if !ok {
			return
		}
		if attempt > 0 {
			s.Refresh(ctx)
		}

		startedAt := time.Now()
		err := s.watcher.Watch(ctx, token, onEvent)
		if ctx.Err() != nil {
			return
		}
		if time.Since(startedAt) > s.maxResubscribe {
			wait = s.resubscribe
		}

		logger.Log.Warnw("change subscription ended, resubscribing",
			"next_retry_in", wait,
			"err", err,
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		wait *= 2
		if wait > s.maxResubscribe {
			wait = s.maxResubscribe
		}
	}
}

func (s *Synchronizer) tokenFor(generation uint64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil || s.generation != generation {
		return "", false
	}
	return s.session.Token, true
}

// Refresh re-fetches the current user's bookmarks and replaces the list.
// Results that arrive after the identity changed, or after a later fetch
// was already applied, are discarded.
func (s *Synchronizer) Refresh(ctx context.Context) {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return
	}
	token := s.session.Token
	generation := s.generation
	s.fetchSeq++
	seq := s.fetchSeq
	s.loading = true
	s.mu.Unlock()

	bookmarks, err := s.backend.ListBookmarks(ctx, token)

	s.mu.Lock()
	if generation != s.generation || seq <= s.appliedSeq {
		s.mu.Unlock()
		return
	}
	s.appliedSeq = seq
	if seq == s.fetchSeq {
		s.loading = false
	}
	if err != nil {
		logger.Log.Debugw("error while loading bookmarks", "err", err)
		s.showToastLocked(MsgLoadFailed, ToastError)
	} else {
		s.bookmarks = bookmarks
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Synchronizer) SetTitle(title string) {
	s.mu.Lock()
	s.title = title
	s.mu.Unlock()
	s.notify()
}

func (s *Synchronizer) SetURL(url string) {
	s.mu.Lock()
	s.url = url
	s.mu.Unlock()
	s.notify()
}

func (s *Synchronizer) SetSearch(search string) {
	s.mu.Lock()
	s.search = search
	s.mu.Unlock()
	s.notify()
}

// Add submits the title and URL inputs. While a save is in flight further
// calls return ErrSaveInFlight without side effects. On success the inputs
// are cleared; the list itself changes through the re-fetch that the
// resulting change event triggers.
func (s *Synchronizer) Add(ctx context.Context) error {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return ErrNoSession
	}
	if s.saving {
		s.mu.Unlock()
		return ErrSaveInFlight
	}

	title := strings.TrimSpace(s.title)
	rawURL := strings.TrimSpace(s.url)
	if title == "" || rawURL == "" {
		s.showToastLocked(MsgMissingFields, ToastError)
		s.mu.Unlock()
		s.notify()
		return ErrMissingFields
	}

	normalized, err := urlnorm.Normalize(rawURL)
	if err != nil {
		s.showToastLocked(MsgInvalidURL, ToastError)
		s.mu.Unlock()
		s.notify()
		return err
	}

	s.saving = true
	token := s.session.Token
	generation := s.generation
	s.mu.Unlock()
	s.notify()

	_, err = s.backend.AddBookmark(ctx, token, title, normalized)

	s.mu.Lock()
	if generation != s.generation {
		s.mu.Unlock()
		return err
	}
	s.saving = false
	if err != nil {
		logger.Log.Debugw("error while adding a bookmark", "err", err)
		s.showToastLocked(MsgAddFailed, ToastError)
	} else {
		s.title = ""
		s.url = ""
		s.showToastLocked(MsgAdded, ToastInfo)
	}
	s.mu.Unlock()
	s.notify()

	return err
}

// Delete removes a bookmark on the server. The list is not touched locally.
func (s *Synchronizer) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return ErrNoSession
	}
	token := s.session.Token
	generation := s.generation
	s.mu.Unlock()

	err := s.backend.DeleteBookmark(ctx, token, id)

	s.mu.Lock()
	if generation != s.generation {
		s.mu.Unlock()
		return err
	}
	if err != nil {
		logger.Log.Debugw("error while deleting a bookmark", "id", id, "err", err)
		s.showToastLocked(MsgDeleteFailed, ToastError)
	} else {
		s.showToastLocked(MsgDeleted, ToastInfo)
	}
	s.mu.Unlock()
	s.notify()

	return err
}

// SignOut ends the session on the server, then clears the local state.
// On failure the session is kept.
func (s *Synchronizer) SignOut(ctx context.Context) error {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return nil
	}
	token := s.session.Token
	s.mu.Unlock()

	if err := s.backend.SignOut(ctx, token); err != nil {
		logger.Log.Debugw("error while signing out", "err", err)
		s.mu.Lock()
		s.showToastLocked(MsgSignOutFailed, ToastError)
		s.mu.Unlock()
		s.notify()
		return err
	}

	s.SetSession(ctx, nil)
	return nil
}

func (s *Synchronizer) showToastLocked(message string, kind ToastKind) {
	s.toastSeq++
	seq := s.toastSeq
	s.toast = &Toast{Message: message, Kind: kind}

	if s.stopToast != nil {
		s.stopToast()
	}
	s.stopToast = s.afterFunc(s.toastTTL, func() {
		s.dismissToast(seq)
	})
}

func (s *Synchronizer) dismissToast(seq uint64) {
	s.mu.Lock()
	if seq != s.toastSeq || s.toast == nil {
		s.mu.Unlock()
		return
	}
	s.toast = nil
	s.mu.Unlock()
	s.notify()
}

// Snapshot returns a copy of the current state with the search filter
// applied.
func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := Snapshot{
		Bookmarks: append(models.Bookmarks(nil), s.bookmarks...),
		Search:    s.search,
		Title:     s.title,
		URL:       s.url,
		Saving:    s.saving,
		Loading:   s.loading,
	}
	if s.session != nil {
		copied := *s.session
		snapshot.Session = &copied
	}
	if s.toast != nil {
		copied := *s.toast
		snapshot.Toast = &copied
	}

	snapshot.Visible = Filter(snapshot.Bookmarks, s.search)
	snapshot.EmptyState = emptyState(snapshot.Bookmarks, snapshot.Visible)

	return snapshot
}

// Filter keeps the bookmarks whose title contains search, compared with
// Unicode case folding. An empty search keeps everything.
func Filter(bookmarks models.Bookmarks, search string) models.Bookmarks {
	if search == "" {
		return bookmarks
	}

	folder := cases.Fold()
	needle := folder.String(search)

	result := models.Bookmarks{}
	for _, bookmark := range bookmarks {
		if strings.Contains(folder.String(bookmark.Title), needle) {
			result = append(result, bookmark)
		}
	}

	return result
}

func emptyState(all, visible models.Bookmarks) EmptyState {
	switch {
	case len(all) == 0:
		return EmptyNoBookmarks
	case len(visible) == 0:
		return EmptyNoMatches
	default:
		return EmptyNone
	}
}

// Close stops the change subscription and the pending toast timer.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopWatch != nil {
		s.stopWatch()
		s.stopWatch = nil
	}
	if s.stopToast != nil {
		s.stopToast()
		s.stopToast = nil
	}
}
