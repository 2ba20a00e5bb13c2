package ledger

import (
	"context"
	"fmt"
)

// Edit mode scopes catalog editing to the editable draft: the session's
// lines are snapshotted on entry so name/price edits can be confirmed into
// the shared procedure catalog or rolled back without a trace.

// EnterEditMode deep-copies the editable session's lines into a snapshot
// keyed by session identity. Only one session may be in edit mode at a
// time.
func (l *Ledger) EnterEditMode(key SessionKey) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.editKey != nil {
		return ErrEditModeActive
	}
	s := l.find(key)
	if s == nil {
		return ErrSessionNotFound
	}
	if s.Saved() {
		return ErrSavedImmutable
	}
	ek, ok := l.editableKeyLocked()
	if !ok || ek != key {
		return ErrNotEditable
	}

	l.snapshots[key] = CloneLines(s.Lines)
	k := key
	l.editKey = &k
	return nil
}

// InEditMode reports the session currently under edit, if any.
func (l *Ledger) InEditMode() (SessionKey, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.editKey == nil {
		return SessionKey{}, false
	}
	return *l.editKey, true
}

// CancelEditMode restores the session's lines from the snapshot, as a deep
// copy so later edits never alias the discarded state, and exits edit mode.
func (l *Ledger) CancelEditMode() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.editKey == nil {
		return ErrNoEditMode
	}
	key := *l.editKey
	if s := l.find(key); s != nil {
		s.Lines = CloneLines(l.snapshots[key])
		Recompute(s, l.manualBudget[key])
	}
	delete(l.snapshots, key)
	l.editKey = nil
	return nil
}

// ConfirmEditMode pushes the session's current {name, unit price, template
// id} tuples to the catalog and exits edit mode. On a persistence failure
// the snapshot is kept so the edit can still be cancelled. The refreshed
// catalog is returned; callers must use it rather than any stale copy,
// because template ids are assigned at persistence time.
func (l *Ledger) ConfirmEditMode(ctx context.Context, catalog TemplateSource) ([]Template, error) {
	l.mu.Lock()
	if l.editKey == nil {
		l.mu.Unlock()
		return nil, ErrNoEditMode
	}
	key := *l.editKey
	s := l.find(key)
	if s == nil {
		l.mu.Unlock()
		return nil, ErrSessionNotFound
	}

	templates := make([]Template, 0, len(s.Lines))
	for _, line := range s.Lines {
		t := Template{Name: line.Name, UnitPrice: line.UnitPrice}
		if line.TemplateID != nil {
			t.ID = *line.TemplateID
		}
		templates = append(templates, t)
	}
	l.mu.Unlock()

	if err := catalog.SaveTemplates(ctx, templates); err != nil {
		return nil, fmt.Errorf("save procedure templates: %w", err)
	}
	refreshed, err := catalog.ListTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("reload procedure templates: %w", err)
	}

	l.mu.Lock()
	delete(l.snapshots, key)
	l.editKey = nil
	l.mu.Unlock()
	return refreshed, nil
}
