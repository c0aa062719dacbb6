// Package workspace holds the open documents (tabs) shared by every host
// surface and runs periodic autosave.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/robfig/cron"

	"github.com/starford/hippomind/internal/apperr"
	"github.com/starford/hippomind/internal/checksum"
	"github.com/starford/hippomind/internal/editor"
	"github.com/starford/hippomind/internal/fileops"
	"github.com/starford/hippomind/internal/mindmap"
	"github.com/starford/hippomind/internal/models"
)

var (
	ErrTabNotFound    = fmt.Errorf("workspace: tab not found: %w", apperr.ErrNotFound)
	ErrUnsavedChanges = fmt.Errorf("workspace: tab has unsaved changes: %w", apperr.ErrConflict)
	ErrSaveInProgress = fmt.Errorf("workspace: save already in progress: %w", apperr.ErrConflict)
	ErrNoFilePath     = fmt.Errorf("workspace: document has no file path: %w", apperr.ErrInvalid)
)

// Event kinds passed to a Notifier.
const (
	EventOpened  = "opened"
	EventChanged = "changed"
	EventSaved   = "saved"
	EventClosed  = "closed"
)

// Event describes a tab change.
type Event struct {
	Kind     string `json:"kind"`
	TabID    string `json:"tabId"`
	FilePath string `json:"filePath,omitempty"`
}

// Notifier receives tab events. It is called without the workspace lock held.
type Notifier func(Event)

// TabInfo is the externally visible state of a tab.
type TabInfo struct {
	ID       string           `json:"id"`
	Title    string           `json:"title"`
	FilePath string           `json:"filePath,omitempty"`
	Dirty    bool             `json:"dirty"`
	Active   bool             `json:"active"`
	CanUndo  bool             `json:"canUndo"`
	CanRedo  bool             `json:"canRedo"`
	Selected editor.Selection `json:"selection"`
}

type tab struct {
	id     string
	ed     *editor.Editor
	diskCS string // checksum of the file as last read or written
}

// Workspace is safe for concurrent use.
type Workspace struct {
	mu     sync.Mutex
	tabs   map[string]*tab
	order  []string
	active string

	files    *fileops.Service
	logger   *slog.Logger
	notify   Notifier
	edOpts   []editor.Option
	interval time.Duration
	now      func() time.Time
	theme    *mindmap.Theme

	inflight mapset.Set[string]
	cron     *cron.Cron
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithNotifier registers fn for tab events.
func WithNotifier(fn Notifier) Option {
	return func(w *Workspace) { w.notify = fn }
}

// WithEditorOptions applies opts to every editor the workspace creates.
func WithEditorOptions(opts ...editor.Option) Option {
	return func(w *Workspace) { w.edOpts = append(w.edOpts, opts...) }
}

// WithAutosaveInterval sets the autosave period.
func WithAutosaveInterval(d time.Duration) Option {
	return func(w *Workspace) { w.interval = d }
}

// WithClock overrides the clock used for new documents.
func WithClock(now func() time.Time) Option {
	return func(w *Workspace) { w.now = now }
}

// WithDefaultTheme applies theme to documents created by New.
func WithDefaultTheme(theme mindmap.Theme) Option {
	return func(w *Workspace) { w.theme = &theme }
}

// New creates an empty workspace.
func New(files *fileops.Service, logger *slog.Logger, opts ...Option) *Workspace {
	w := &Workspace{
		tabs:     make(map[string]*tab),
		files:    files,
		logger:   logger,
		interval: mindmap.AutosaveInterval,
		now:      time.Now,
		inflight: mapset.NewSet[string](),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

func (w *Workspace) emit(ev Event) {
	if w.notify != nil {
		w.notify(ev)
	}
}

func (w *Workspace) info(t *tab) TabInfo {
	return TabInfo{
		ID:       t.id,
		Title:    t.ed.Document().Meta.Title,
		FilePath: t.ed.FilePath(),
		Dirty:    t.ed.Dirty(),
		Active:   t.id == w.active,
		CanUndo:  t.ed.CanUndo(),
		CanRedo:  t.ed.CanRedo(),
		Selected: t.ed.Selection(),
	}
}

// add installs a tab and makes it active. Callers hold mu.
func (w *Workspace) add(ed *editor.Editor, diskCS string) *tab {
	t := &tab{id: uuid.NewString(), ed: ed, diskCS: diskCS}
	w.tabs[t.id] = t
	w.order = append(w.order, t.id)
	w.active = t.id
	return t
}

// New opens a tab with a fresh document.
func (w *Workspace) New(title string) TabInfo {
	if title == "" {
		title = mindmap.DefaultTitle
	}
	doc := mindmap.New(title, w.now())
	if w.theme != nil {
		doc = mindmap.WithTheme(doc, *w.theme)
	}
	w.mu.Lock()
	t := w.add(editor.New(doc, "", w.edOpts...), "")
	info := w.info(t)
	w.mu.Unlock()

	w.emit(Event{Kind: EventOpened, TabID: info.ID})
	return info
}

// Open loads path into a tab. A document already open is activated instead.
// On failure no tab changes.
func (w *Workspace) Open(ctx context.Context, path string) (TabInfo, error) {
	abs, err := w.files.Resolve(path)
	if err != nil {
		return TabInfo{}, err
	}
	w.mu.Lock()
	for _, id := range w.order {
		if t := w.tabs[id]; t.ed.FilePath() == abs {
			w.active = id
			info := w.info(t)
			w.mu.Unlock()
			return info, nil
		}
	}
	w.mu.Unlock()

	res := w.files.Open(ctx, abs)
	if !res.Success {
		return TabInfo{}, loadError(res)
	}
	cs, _ := checksum.File(res.FilePath)

	w.mu.Lock()
	t := w.add(editor.New(res.Data, res.FilePath, w.edOpts...), cs)
	info := w.info(t)
	w.mu.Unlock()

	w.emit(Event{Kind: EventOpened, TabID: info.ID, FilePath: info.FilePath})
	return info, nil
}

// RestoreBackup opens a backup in a new tab bound to the original file.
// The tab starts dirty so the restore is not lost.
func (w *Workspace) RestoreBackup(ctx context.Context, backupPath string) (TabInfo, error) {
	res := w.files.RestoreBackup(ctx, backupPath)
	if !res.Success {
		return TabInfo{}, loadError(res)
	}
	ed := editor.New(res.Data, res.FilePath, w.edOpts...)
	ed.MarkDirty()

	w.mu.Lock()
	t := w.add(ed, "")
	info := w.info(t)
	w.mu.Unlock()

	w.emit(Event{Kind: EventOpened, TabID: info.ID, FilePath: info.FilePath})
	return info, nil
}

func loadError(res fileops.LoadResult) error {
	var verr *mindmap.ValidationError
	switch {
	case errors.As(res.Err, &verr):
		return fmt.Errorf("workspace: open %s: %w: %w", res.FilePath, verr, apperr.ErrInvalid)
	case errors.Is(res.Err, fs.ErrNotExist):
		return fmt.Errorf("workspace: open %s: %w", res.FilePath, apperr.ErrNotFound)
	}
	return fmt.Errorf("workspace: open %s: %w", res.FilePath, res.Err)
}

// Close removes a tab. A dirty tab is kept unless force is set.
func (w *Workspace) Close(id string, force bool) error {
	w.mu.Lock()
	t, ok := w.tabs[id]
	if !ok {
		w.mu.Unlock()
		return ErrTabNotFound
	}
	if t.ed.Dirty() && !force {
		w.mu.Unlock()
		return ErrUnsavedChanges
	}
	i := slices.Index(w.order, id)
	w.order = slices.Delete(w.order, i, i+1)
	delete(w.tabs, id)
	if w.active == id {
		w.active = ""
		if len(w.order) > 0 {
			w.active = w.order[min(i, len(w.order)-1)]
		}
	}
	path := t.ed.FilePath()
	w.mu.Unlock()

	w.emit(Event{Kind: EventClosed, TabID: id, FilePath: path})
	return nil
}

// Activate makes id the active tab.
func (w *Workspace) Activate(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.tabs[id]; !ok {
		return ErrTabNotFound
	}
	w.active = id
	return nil
}

// Active returns the active tab, if any.
func (w *Workspace) Active() (TabInfo, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.tabs[w.active]
	if !ok {
		return TabInfo{}, false
	}
	return w.info(t), true
}

// Get returns one tab.
func (w *Workspace) Get(id string) (TabInfo, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.tabs[id]
	if !ok {
		return TabInfo{}, ErrTabNotFound
	}
	return w.info(t), nil
}

// List returns the tabs in opening order.
func (w *Workspace) List() []TabInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]TabInfo, 0, len(w.order))
	for _, id := range w.order {
		out = append(out, w.info(w.tabs[id]))
	}
	return out
}

// Document returns the current document of a tab. The value is immutable.
func (w *Workspace) Document(id string) (*mindmap.Document, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.tabs[id]
	if !ok {
		return nil, ErrTabNotFound
	}
	return t.ed.Document(), nil
}

// With runs fn against the tab's editor under the workspace lock. A
// changed document emits EventChanged.
func (w *Workspace) With(id string, fn func(*editor.Editor) error) (TabInfo, error) {
	w.mu.Lock()
	t, ok := w.tabs[id]
	if !ok {
		w.mu.Unlock()
		return TabInfo{}, ErrTabNotFound
	}
	before := t.ed.Document()
	err := fn(t.ed)
	changed := t.ed.Document() != before
	info := w.info(t)
	w.mu.Unlock()

	if changed {
		w.emit(Event{Kind: EventChanged, TabID: id, FilePath: info.FilePath})
	}
	return info, err
}

// Save writes the tab to its current file.
func (w *Workspace) Save(ctx context.Context, id string) (fileops.SaveResult, error) {
	return w.SaveAs(ctx, id, "")
}

// SaveAs writes the tab to path, or to its current file when path is empty.
// The document is captured when the call starts; edits made while the
// write runs keep the tab dirty.
func (w *Workspace) SaveAs(ctx context.Context, id, path string) (fileops.SaveResult, error) {
	w.mu.Lock()
	t, ok := w.tabs[id]
	if !ok {
		w.mu.Unlock()
		return fileops.SaveResult{}, ErrTabNotFound
	}
	if path == "" {
		path = t.ed.FilePath()
	}
	snap := t.ed.Document()
	w.mu.Unlock()

	if path == "" {
		return fileops.SaveResult{}, ErrNoFilePath
	}
	if !w.inflight.Add(id) {
		return fileops.SaveResult{}, ErrSaveInProgress
	}
	defer w.inflight.Remove(id)

	res := w.save(ctx, id, path, snap)
	return res, nil
}

// save writes snap and records the result on the tab. The caller owns the
// in-flight slot for id.
func (w *Workspace) save(ctx context.Context, id, path string, snap *mindmap.Document) fileops.SaveResult {
	res := w.files.Save(ctx, path, snap)
	if !res.Success {
		w.logger.Warn("workspace: save failed", slog.String("tab", id), slog.String("error", res.Error))
		return res
	}
	data, err := mindmap.Encode(snap)
	cs := ""
	if err == nil {
		cs = checksum.Sum(data)
	}

	w.mu.Lock()
	t, ok := w.tabs[id]
	if ok {
		t.ed.MarkSaved(res.FilePath, snap)
		t.diskCS = cs
	}
	w.mu.Unlock()

	if ok {
		w.emit(Event{Kind: EventSaved, TabID: id, FilePath: res.FilePath})
	}
	return res
}

// CreateBackup backs up the tab's current document next to its file.
func (w *Workspace) CreateBackup(ctx context.Context, id string) (fileops.SaveResult, error) {
	w.mu.Lock()
	t, ok := w.tabs[id]
	if !ok {
		w.mu.Unlock()
		return fileops.SaveResult{}, ErrTabNotFound
	}
	path, snap := t.ed.FilePath(), t.ed.Document()
	w.mu.Unlock()

	if path == "" {
		return fileops.SaveResult{}, ErrNoFilePath
	}
	return w.files.CreateBackup(ctx, path, snap), nil
}

// Backups lists the backups of the tab's file.
func (w *Workspace) Backups(id string) ([]models.Backup, error) {
	w.mu.Lock()
	t, ok := w.tabs[id]
	if !ok {
		w.mu.Unlock()
		return nil, ErrTabNotFound
	}
	path := t.ed.FilePath()
	w.mu.Unlock()

	if path == "" {
		return []models.Backup{}, nil
	}
	return w.files.ListBackups(path)
}

// Autosave saves and backs up every dirty tab that has a file. Tabs whose
// previous save is still running are skipped. It returns the number of
// tabs saved.
func (w *Workspace) Autosave(ctx context.Context) int {
	type job struct {
		id, path string
		snap     *mindmap.Document
	}
	w.mu.Lock()
	var jobs []job
	for _, id := range w.order {
		t := w.tabs[id]
		if t.ed.FilePath() == "" || !t.ed.Dirty() {
			continue
		}
		jobs = append(jobs, job{id: id, path: t.ed.FilePath(), snap: t.ed.Document()})
	}
	w.mu.Unlock()

	saved := 0
	for _, j := range jobs {
		if !w.inflight.Add(j.id) {
			w.logger.Debug("workspace: autosave skipped, save in flight", slog.String("tab", j.id))
			continue
		}
		res := w.save(ctx, j.id, j.path, j.snap)
		if res.Success {
			saved++
			if b := w.files.CreateBackup(ctx, j.path, j.snap); !b.Success {
				w.logger.Warn("workspace: autosave backup failed", slog.String("tab", j.id), slog.String("error", b.Error))
			}
		}
		w.inflight.Remove(j.id)
	}
	return saved
}

// StartAutosave schedules Autosave at the configured interval.
func (w *Workspace) StartAutosave(ctx context.Context) error {
	c := cron.New()
	spec := fmt.Sprintf("@every %s", w.interval)
	if err := c.AddFunc(spec, func() {
		if n := w.Autosave(ctx); n > 0 {
			w.logger.Info("workspace: autosaved", slog.Int("tabs", n))
		}
	}); err != nil {
		return fmt.Errorf("workspace: schedule autosave: %w", err)
	}
	c.Start()
	w.mu.Lock()
	w.cron = c
	w.mu.Unlock()
	w.logger.Info("workspace: autosave started", slog.String("interval", w.interval.String()))
	return nil
}

// StopAutosave stops the scheduler. Saves already running complete.
func (w *Workspace) StopAutosave() {
	w.mu.Lock()
	c := w.cron
	w.cron = nil
	w.mu.Unlock()
	if c != nil {
		c.Stop()
	}
}

// FileChanged reacts to an external change of path: clean tabs showing it
// are reloaded, dirty ones keep their edits. Writes made by this workspace
// are recognized by checksum and ignored.
func (w *Workspace) FileChanged(ctx context.Context, path string) {
	abs, err := w.files.Resolve(path)
	if err != nil {
		return
	}
	cs, err := checksum.File(abs)
	if err != nil {
		return
	}

	w.mu.Lock()
	var stale []string
	for _, id := range w.order {
		t := w.tabs[id]
		if t.ed.FilePath() != abs || t.diskCS == cs {
			continue
		}
		if t.ed.Dirty() {
			w.logger.Warn("workspace: file changed on disk while tab has edits", slog.String("tab", id), slog.String("path", abs))
			continue
		}
		stale = append(stale, id)
	}
	w.mu.Unlock()
	if len(stale) == 0 {
		return
	}

	res := w.files.Open(ctx, abs)
	if !res.Success {
		w.logger.Warn("workspace: reload failed", slog.String("path", abs), slog.String("error", res.Error))
		return
	}
	for _, id := range stale {
		w.mu.Lock()
		t, ok := w.tabs[id]
		if ok && !t.ed.Dirty() {
			t.ed.Load(res.Data, abs)
			t.diskCS = cs
		}
		w.mu.Unlock()
		if ok {
			w.emit(Event{Kind: EventChanged, TabID: id, FilePath: abs})
		}
	}
}
