package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"crmoverlay/api/internal/backup"
	"crmoverlay/api/internal/color"
	"crmoverlay/api/internal/contacts"
	"crmoverlay/api/internal/host"
	"crmoverlay/api/internal/kanban"
	"crmoverlay/api/internal/labelcache"
	"crmoverlay/api/internal/localstore"
	"crmoverlay/api/internal/normalize"
	"crmoverlay/api/internal/reconcile"
	"crmoverlay/api/internal/search"
	"crmoverlay/api/internal/store"
	"crmoverlay/api/internal/util"
)

// RemoteLabels is the slice of the relational store the service needs for
// labels and readiness.
type RemoteLabels interface {
	Ping(ctx context.Context) error
	ListLabels(ctx context.Context, operator string) ([]store.Label, error)
	UpsertLabel(ctx context.Context, operator string, label store.Label) error
	DeleteLabel(ctx context.Context, operator, labelID string) error
}

type Snapshotter interface {
	Save(ctx context.Context, operator string, contacts []store.Contact, labels []store.Label) (backup.Info, error)
}

// Deps wires a Service. Labels, Contacts and Local are required; the rest
// may be nil when the matching backend is not configured.
type Deps struct {
	Operator string
	Logger   *zap.Logger
	Labels   *labelcache.Cache
	Contacts *contacts.Store
	Local    localstore.Store
	Remote   RemoteLabels
	Page     host.Page
	Engine   *reconcile.Engine
	Search   *search.Service
	Backup   Snapshotter
}

type Service struct {
	operator string
	logger   *zap.Logger
	validate *inputValidator
	now      func() time.Time

	labels   *labelcache.Cache
	contacts *contacts.Store
	local    localstore.Store
	remote   RemoteLabels
	page     host.Page
	board    *kanban.Board
	drag     *kanban.DragState
	engine   *reconcile.Engine
	search   *search.Service
	backup   Snapshotter

	mu sync.Mutex
	// catalog holds manual labels plus usage and deletion overlays for
	// discovered ones, keyed by label id.
	catalog map[string]store.Label
	filter  string
}

type CreateLabelInput struct {
	Name  string `json:"name" validate:"required,max=64"`
	Color string `json:"color" validate:"omitempty,csscolor"`
}

type SaveContactInput struct {
	ID    string   `json:"id"`
	Name  string   `json:"name" validate:"required,max=120"`
	Phone string   `json:"phone" validate:"max=40"`
	Notes string   `json:"notes" validate:"max=4000"`
	Tags  []string `json:"tags" validate:"dive,required,max=80"`
}

type Selection struct {
	LabelID    string `json:"labelId"`
	HostSynced bool   `json:"hostSynced"`
}

type BoardView struct {
	Columns      []kanban.Column `json:"columns"`
	ActiveFilter string          `json:"activeFilter"`
	Picked       string          `json:"picked,omitempty"`
	Highlighted  string          `json:"highlighted,omitempty"`
}

type SyncSummary struct {
	Merged       int  `json:"merged"`
	Pushed       int  `json:"pushed"`
	PushFailures int  `json:"pushFailures"`
	RemoteOK     bool `json:"remoteOk"`
}

type ReadyCheck struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func NewService(ctx context.Context, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	searcher := deps.Search
	if searcher == nil {
		searcher = search.NewService(nil, logger, search.NewMemory(deps.Contacts.List))
	}
	s := &Service{
		operator: deps.Operator,
		logger:   logger,
		validate: newInputValidator(),
		now:      time.Now,
		labels:   deps.Labels,
		contacts: deps.Contacts,
		local:    deps.Local,
		remote:   deps.Remote,
		page:     deps.Page,
		engine:   deps.Engine,
		search:   searcher,
		backup:   deps.Backup,
		catalog:  make(map[string]store.Label),
	}
	s.board = kanban.NewBoard(deps.Contacts, logger.Named("kanban"))
	s.board.OnTagged(s.IncrementUsage)
	s.drag = kanban.NewDragState(s.board)
	if s.engine != nil {
		s.engine.OnCycle(s.afterCycle)
	}

	saved, err := s.local.LoadLabels(ctx, s.operator)
	if err != nil {
		logger.Warn("load label catalog failed, starting empty", zap.Error(err))
	}
	for _, label := range saved {
		s.catalog[label.ID] = label
	}
	return s
}

// Ready reports each configured dependency. The map is never empty: the
// local store is always listed.
func (s *Service) Ready(ctx context.Context) (map[string]ReadyCheck, bool) {
	checks := map[string]ReadyCheck{"local": {Status: "ok"}}
	ok := true
	if s.remote != nil {
		if err := s.remote.Ping(ctx); err != nil {
			checks["database"] = ReadyCheck{Status: "error", Error: err.Error()}
			ok = false
		} else {
			checks["database"] = ReadyCheck{Status: "ok"}
		}
	}
	if s.page != nil {
		if _, err := s.page.MutationCount(ctx); err != nil {
			checks["host"] = ReadyCheck{Status: "error", Error: err.Error()}
			ok = false
		} else {
			checks["host"] = ReadyCheck{Status: "ok"}
		}
	}
	return checks, ok
}

// Labels returns the active label list: discovered labels in host order,
// then manual labels whose names no discovered label already uses.
func (s *Service) Labels(ctx context.Context, refresh bool) []store.Label {
	discovered := s.labels.Get(ctx, refresh)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeLocked(discovered)
}

func (s *Service) activeLocked(discovered []store.Label) []store.Label {
	out := make([]store.Label, 0, len(discovered)+len(s.catalog))
	names := make(map[string]struct{}, len(discovered))
	ids := make(map[string]struct{}, len(discovered))
	for _, label := range discovered {
		if entry, ok := s.catalog[label.ID]; ok {
			if entry.Deleted {
				continue
			}
			label.UsageCount = entry.UsageCount
		}
		names[label.NameKey()] = struct{}{}
		ids[label.ID] = struct{}{}
		out = append(out, label)
	}
	for _, label := range s.manualLocked() {
		if _, shadowed := names[label.NameKey()]; shadowed {
			continue
		}
		if _, dup := ids[label.ID]; dup {
			continue
		}
		out = append(out, label)
	}
	return out
}

func (s *Service) manualLocked() []store.Label {
	manual := make([]store.Label, 0, len(s.catalog))
	for _, label := range s.catalog {
		if label.Source == store.SourceManual && !label.Deleted {
			manual = append(manual, label)
		}
	}
	sort.Slice(manual, func(i, j int) bool {
		if !manual[i].CreatedAt.Equal(manual[j].CreatedAt) {
			return manual[i].CreatedAt.Before(manual[j].CreatedAt)
		}
		return manual[i].ID < manual[j].ID
	})
	return manual
}

func (s *Service) findLabel(ctx context.Context, labelID string) (store.Label, bool) {
	for _, label := range s.Labels(ctx, false) {
		if label.ID == labelID {
			return label, true
		}
	}
	return store.Label{}, false
}

func (s *Service) CreateLabel(ctx context.Context, input CreateLabelInput) (store.Label, error) {
	if err := s.validate.Validate(input); err != nil {
		return store.Label{}, err
	}
	name := strings.Join(strings.Fields(input.Name), " ")
	if name == "" {
		return store.Label{}, invalidField("name", "is required")
	}
	label := store.Label{
		ID:        util.NewID("lbl"),
		Name:      name,
		Color:     color.Normalize(ctx, input.Color, s.resolver()),
		Source:    store.SourceManual,
		CreatedAt: s.now().UTC(),
	}

	discovered := s.labels.Get(ctx, false)
	s.mu.Lock()
	for _, existing := range s.activeLocked(discovered) {
		if existing.NameKey() == label.NameKey() {
			s.mu.Unlock()
			return store.Label{}, domainError(http.StatusConflict, "LABEL_EXISTS", fmt.Sprintf("label %q already exists", existing.Name), map[string]string{"id": existing.ID})
		}
	}
	s.catalog[label.ID] = label
	s.saveCatalogLocked(ctx)
	s.mu.Unlock()

	s.pushLabel(ctx, label)
	return label, nil
}

// DeleteLabel hides the label and removes it from every contact's tags.
func (s *Service) DeleteLabel(ctx context.Context, labelID string) error {
	label, ok := s.findLabel(ctx, labelID)
	if !ok {
		return notFound("LABEL_NOT_FOUND", "label not found")
	}

	s.mu.Lock()
	if entry, known := s.catalog[labelID]; known {
		label = entry
	}
	label.Deleted = true
	s.catalog[labelID] = label
	s.saveCatalogLocked(ctx)
	if s.filter == labelID {
		s.filter = ""
	}
	s.mu.Unlock()

	pruned, err := s.contacts.PruneTag(ctx, labelID)
	if err != nil {
		s.logger.Warn("persist pruned tags failed", zap.String("label_id", labelID), zap.Error(err))
	}
	if pruned > 0 {
		s.search.ReindexAll(ctx, s.operator, s.contacts.List())
	}
	if s.remote != nil {
		if err := s.remote.DeleteLabel(ctx, s.operator, labelID); err != nil {
			s.logger.Warn("remote label delete failed", zap.String("label_id", labelID), zap.Error(err))
		}
	}
	return nil
}

// IncrementUsage records one more assignment of labelID. Unknown ids are
// ignored.
func (s *Service) IncrementUsage(ctx context.Context, labelID string) {
	s.mu.Lock()
	entry, ok := s.catalog[labelID]
	if !ok {
		for _, label := range s.labels.Peek() {
			if label.ID == labelID {
				entry, ok = label, true
				break
			}
		}
	}
	if !ok || entry.Deleted {
		s.mu.Unlock()
		return
	}
	entry.UsageCount++
	s.catalog[labelID] = entry
	s.saveCatalogLocked(ctx)
	s.mu.Unlock()

	s.pushLabel(ctx, entry)
}

// SelectLabel sets the contact filter and replays the chip click on the host
// page. A failed click is logged and the filter still applies. An empty id or
// the all column clears the filter.
func (s *Service) SelectLabel(ctx context.Context, labelID string) (Selection, error) {
	if labelID == "" || labelID == kanban.AllColumnID {
		s.mu.Lock()
		s.filter = ""
		s.mu.Unlock()
		return Selection{}, nil
	}
	label, ok := s.findLabel(ctx, labelID)
	if !ok {
		return Selection{}, notFound("LABEL_NOT_FOUND", "label not found")
	}
	s.mu.Lock()
	s.filter = labelID
	s.mu.Unlock()

	selection := Selection{LabelID: labelID}
	if s.page != nil {
		if err := s.page.ClickLabel(ctx, label.Name); err != nil {
			s.logger.Info("host chip click not replayed", zap.String("label", label.Name), zap.Error(err))
		} else {
			selection.HostSynced = true
		}
	}
	return selection, nil
}

func (s *Service) ActiveFilter() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// ListContacts returns contacts newest first. An empty labelID falls back to
// the active filter; "all" lists everything.
func (s *Service) ListContacts(labelID string) []store.Contact {
	if labelID == "" {
		labelID = s.ActiveFilter()
	}
	if labelID == kanban.AllColumnID {
		labelID = ""
	}
	items := s.contacts.ListTagged(labelID)
	contacts.SortByRecency(items)
	return items
}

func (s *Service) GetContact(id string) (store.Contact, error) {
	c, err := s.contacts.Get(id)
	if err != nil {
		return store.Contact{}, mapContactError(err)
	}
	return c, nil
}

// SaveContact creates a contact, or updates it when input.ID names an
// existing one. Phones that do not normalize are stored as nil.
func (s *Service) SaveContact(ctx context.Context, input SaveContactInput) (store.Contact, error) {
	if err := s.validate.Validate(input); err != nil {
		return store.Contact{}, err
	}
	if unknown := s.unknownTags(ctx, input.Tags); len(unknown) > 0 {
		return store.Contact{}, domainError(http.StatusUnprocessableEntity, "UNKNOWN_LABEL", "contact references unknown labels", map[string]any{"tags": unknown})
	}
	name := strings.TrimSpace(input.Name)
	phone := normalize.Phone(input.Phone)

	var (
		saved    store.Contact
		previous []string
		err      error
	)
	if input.ID != "" {
		saved, err = s.contacts.Update(ctx, input.ID, func(c *store.Contact) bool {
			previous = c.Tags
			c.Name = name
			c.Phone = phone
			c.Notes = input.Notes
			c.Tags = append([]string(nil), input.Tags...)
			return true
		})
		if errors.Is(err, contacts.ErrNotFound) {
			return store.Contact{}, mapContactError(err)
		}
	} else {
		saved, err = s.contacts.Put(ctx, store.Contact{
			Name:  name,
			Phone: phone,
			Notes: input.Notes,
			Tags:  append([]string(nil), input.Tags...),
		})
	}
	if err != nil {
		s.logger.Warn("contact saved in memory but not persisted", zap.String("contact_id", saved.ID), zap.Error(err))
	}

	for _, tag := range saved.Tags {
		if !containsString(previous, tag) {
			s.IncrementUsage(ctx, tag)
		}
	}
	s.search.IndexContact(s.operator, saved)
	if s.engine != nil {
		s.engine.Trigger()
	}
	return saved, nil
}

// TouchContact marks an interaction with the contact now.
func (s *Service) TouchContact(ctx context.Context, id string) (store.Contact, error) {
	at := s.now().UTC().Truncate(time.Microsecond)
	c, err := s.contacts.Update(ctx, id, func(c *store.Contact) bool {
		c.LastInteractionAt = at
		return true
	})
	if errors.Is(err, contacts.ErrNotFound) {
		return store.Contact{}, mapContactError(err)
	}
	if err != nil {
		s.logger.Warn("touch not persisted", zap.String("contact_id", id), zap.Error(err))
	}
	return c, nil
}

func (s *Service) SearchContacts(ctx context.Context, text, labelID string, limit, offset int) search.Response {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.search.Search(ctx, search.Query{
		Text:     strings.TrimSpace(text),
		Operator: s.operator,
		LabelID:  labelID,
		Limit:    limit,
		Offset:   offset,
	})
}

func (s *Service) Board(ctx context.Context) BoardView {
	items := s.contacts.List()
	contacts.SortByRecency(items)
	return BoardView{
		Columns:      kanban.Columns(s.Labels(ctx, false), items),
		ActiveFilter: s.ActiveFilter(),
		Picked:       s.drag.Picked(),
		Highlighted:  s.drag.Highlighted(),
	}
}

// PickUp starts a drag gesture for contactID.
func (s *Service) PickUp(contactID string) error {
	if _, err := s.contacts.Get(contactID); err != nil {
		return mapContactError(err)
	}
	s.drag.PickUp(contactID)
	return nil
}

// Hover highlights columnID as the drop target.
func (s *Service) Hover(ctx context.Context, columnID string) error {
	if columnID != kanban.AllColumnID {
		if _, ok := s.findLabel(ctx, columnID); !ok {
			return domainError(http.StatusUnprocessableEntity, "INVALID_DROP", "unknown column", map[string]string{"columnId": columnID})
		}
	}
	s.drag.Hover(columnID)
	return nil
}

func (s *Service) CancelDrag() {
	s.drag.Cancel()
}

// Drop moves contactID onto columnID. With an empty contactID the contact
// picked up earlier is dropped instead.
func (s *Service) Drop(ctx context.Context, contactID, columnID string) (store.Contact, error) {
	labels := s.Labels(ctx, false)
	var (
		c   store.Contact
		err error
	)
	if contactID == "" {
		c, err = s.drag.Drop(ctx, columnID, labels)
	} else {
		s.drag.Cancel()
		c, err = s.board.Drop(ctx, contactID, columnID, labels)
	}
	if err != nil {
		return store.Contact{}, mapBoardError(err, columnID)
	}
	s.search.IndexContact(s.operator, c)
	if s.engine != nil {
		s.engine.Trigger()
	}
	return c, nil
}

// Sync runs one reconciliation cycle now.
func (s *Service) Sync(ctx context.Context) (SyncSummary, error) {
	if s.engine == nil {
		return SyncSummary{}, disabled("SYNC_DISABLED", "reconciliation is not configured")
	}
	result, err := s.engine.Run(ctx)
	if errors.Is(err, reconcile.ErrCycleInFlight) {
		return SyncSummary{}, domainError(http.StatusConflict, "SYNC_IN_FLIGHT", "a reconciliation cycle is already running", nil)
	}
	if err != nil {
		return SyncSummary{}, err
	}
	return SyncSummary{
		Merged:       result.Merged,
		Pushed:       result.Pushed,
		PushFailures: result.PushFailures,
		RemoteOK:     result.RemoteOK,
	}, nil
}

// Backup uploads a snapshot of the operator's contacts and active labels.
func (s *Service) Backup(ctx context.Context) (backup.Info, error) {
	if s.backup == nil {
		return backup.Info{}, disabled("BACKUP_DISABLED", "object storage is not configured")
	}
	return s.backup.Save(ctx, s.operator, s.contacts.List(), s.Labels(ctx, false))
}

// afterCycle refreshes derived state once a reconciliation cycle finishes.
func (s *Service) afterCycle(ctx context.Context, result reconcile.Result) {
	s.search.ReindexAll(ctx, s.operator, s.contacts.List())
	if !result.RemoteOK {
		return
	}
	s.PullLabels(ctx)
	if s.backup != nil {
		if _, err := s.Backup(ctx); err != nil {
			s.logger.Warn("snapshot after sync failed", zap.Error(err))
		}
	}
}

// PullLabels merges labels stored remotely, such as manual labels created on
// another device, into the local catalog.
func (s *Service) PullLabels(ctx context.Context) {
	if s.remote == nil {
		return
	}
	remote, err := s.remote.ListLabels(ctx, s.operator)
	if err != nil {
		s.logger.Warn("pull remote labels failed", zap.Error(err))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	for _, label := range remote {
		entry, ok := s.catalog[label.ID]
		if !ok {
			s.catalog[label.ID] = label
			changed = true
			continue
		}
		if label.Deleted && !entry.Deleted {
			entry.Deleted = true
			changed = true
		}
		if label.UsageCount > entry.UsageCount {
			entry.UsageCount = label.UsageCount
			changed = true
		}
		s.catalog[label.ID] = entry
	}
	if changed {
		s.saveCatalogLocked(ctx)
	}
}

func (s *Service) saveCatalogLocked(ctx context.Context) {
	labels := make([]store.Label, 0, len(s.catalog))
	for _, label := range s.catalog {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].ID < labels[j].ID })
	if err := s.local.SaveLabels(ctx, s.operator, labels); err != nil {
		s.logger.Warn("persist label catalog failed", zap.Error(err))
	}
}

func (s *Service) pushLabel(ctx context.Context, label store.Label) {
	if s.remote == nil {
		return
	}
	if err := s.remote.UpsertLabel(ctx, s.operator, label); err != nil {
		s.logger.Warn("remote label upsert failed", zap.String("label_id", label.ID), zap.Error(err))
	}
}

func (s *Service) resolver() color.Resolver {
	if s.page == nil {
		return nil
	}
	return s.page
}

func (s *Service) unknownTags(ctx context.Context, tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	active := make(map[string]struct{})
	for _, label := range s.Labels(ctx, false) {
		active[label.ID] = struct{}{}
	}
	var unknown []string
	for _, tag := range tags {
		if _, ok := active[tag]; !ok {
			unknown = append(unknown, tag)
		}
	}
	return unknown
}

func mapContactError(err error) error {
	if errors.Is(err, contacts.ErrNotFound) {
		return notFound("CONTACT_NOT_FOUND", "contact not found")
	}
	return err
}

func mapBoardError(err error, columnID string) error {
	switch {
	case errors.Is(err, contacts.ErrNotFound):
		return mapContactError(err)
	case errors.Is(err, kanban.ErrInvalidDrop):
		return domainError(http.StatusUnprocessableEntity, "INVALID_DROP", "unknown column", map[string]string{"columnId": columnID})
	case errors.Is(err, kanban.ErrNothingPicked):
		return domainError(http.StatusConflict, "NOTHING_PICKED", "no contact is being dragged", nil)
	}
	return err
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
