// Package crud implements the admin panel's CRUD resources: the Panel
// describing one entity, the dashboard Widgets, a gorm Repository and
// the generic Controller that mounts a resource's routes.
package crud

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/karloscodes/backpack/config"
)

var (
	// ErrNotFound is returned when an entry does not exist.
	ErrNotFound = errors.New("crud: entry not found")

	// ErrOperationDenied is returned for operations the panel does not allow.
	ErrOperationDenied = errors.New("crud: operation denied")
)

// Operation names a CRUD operation.
type Operation string

const (
	OpList   Operation = "list"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpShow   Operation = "show"
	OpDelete Operation = "delete"
)

// Operations lists every operation in route registration order.
var Operations = []Operation{OpList, OpCreate, OpShow, OpUpdate, OpDelete}

// Field types with dedicated form widgets.
const (
	FieldText     = "text"
	FieldTextarea = "textarea"
	FieldNumber   = "number"
	FieldEmail    = "email"
	FieldPassword = "password"
	FieldCheckbox = "checkbox"
	FieldDate     = "date"
	FieldUpload   = "upload"
)

// Column is a list and show column.
type Column struct {
	Name       string `json:"name"`
	Label      string `json:"label"`
	Searchable bool   `json:"searchable"`
	Orderable  bool   `json:"orderable"`
}

// Field is a create and update form field.
type Field struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	// Disk receives uploads for FieldUpload fields. Empty means the
	// configured uploads disk.
	Disk string `json:"-"`
}

// InputType is the <input type> for the field.
func (f Field) InputType() string {
	switch f.Type {
	case "", FieldTextarea, FieldUpload:
		return FieldText
	default:
		return f.Type
	}
}

// Panel describes how one entity is administered. The container holds a
// template Panel built from configuration; every controller works on its
// own Clone.
type Panel struct {
	mu sync.RWMutex

	entityName       string
	entityNamePlural string
	route            string
	key              string
	columns          []Column
	fields           []Field
	access           map[Operation]bool
	pageLength       int
	pageLengthMenu   []int
	searchable       bool
	showEntryCount   bool
	uploadsDisk      string
	defaultOrder     string
	defaultOrderDesc bool
}

// NewPanel creates a panel with every operation allowed and the paging
// and search defaults of cfg.
func NewPanel(cfg config.CrudConfig) *Panel {
	p := &Panel{
		key:            "id",
		access:         make(map[Operation]bool),
		pageLength:     cfg.DefaultPageLength,
		pageLengthMenu: append([]int(nil), cfg.PageLengthMenu...),
		searchable:     cfg.Operations.List.SearchableTable,
		showEntryCount: cfg.Operations.List.ShowEntryCount,
		uploadsDisk:    cfg.UploadsDisk,
	}
	if p.pageLength <= 0 {
		p.pageLength = 25
	}
	for _, op := range Operations {
		p.access[op] = true
	}
	return p
}

// Clone returns an independent copy.
func (p *Panel) Clone() *Panel {
	p.mu.RLock()
	defer p.mu.RUnlock()

	c := &Panel{
		entityName:       p.entityName,
		entityNamePlural: p.entityNamePlural,
		route:            p.route,
		key:              p.key,
		columns:          append([]Column(nil), p.columns...),
		fields:           append([]Field(nil), p.fields...),
		access:           make(map[Operation]bool, len(p.access)),
		pageLength:       p.pageLength,
		pageLengthMenu:   append([]int(nil), p.pageLengthMenu...),
		searchable:       p.searchable,
		showEntryCount:   p.showEntryCount,
		uploadsDisk:      p.uploadsDisk,
		defaultOrder:     p.defaultOrder,
		defaultOrderDesc: p.defaultOrderDesc,
	}
	for op, ok := range p.access {
		c.access[op] = ok
	}
	return c
}

// SetEntityNameStrings sets the singular and plural entity labels.
func (p *Panel) SetEntityNameStrings(singular, plural string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entityName = singular
	p.entityNamePlural = plural
}

func (p *Panel) EntityName() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.entityName
}

func (p *Panel) EntityNamePlural() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.entityNamePlural
}

// SetRoute sets the base URL path of the resource.
func (p *Panel) SetRoute(route string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.route = route
}

func (p *Panel) Route() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.route
}

// SetKey sets the primary key column. Default: "id".
func (p *Panel) SetKey(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.key = key
}

func (p *Panel) Key() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.key
}

// AddColumn appends a column, replacing one with the same name.
func (p *Panel) AddColumn(col Column) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if col.Label == "" {
		col.Label = Label(col.Name)
	}
	for i, existing := range p.columns {
		if existing.Name == col.Name {
			p.columns[i] = col
			return
		}
	}
	p.columns = append(p.columns, col)
}

// RemoveColumn drops the named column.
func (p *Panel) RemoveColumn(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, col := range p.columns {
		if col.Name == name {
			p.columns = append(p.columns[:i], p.columns[i+1:]...)
			return
		}
	}
}

func (p *Panel) Columns() []Column {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Column(nil), p.columns...)
}

// AddField appends a field, replacing one with the same name.
func (p *Panel) AddField(f Field) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if f.Label == "" {
		f.Label = Label(f.Name)
	}
	if f.Type == "" {
		f.Type = FieldText
	}
	for i, existing := range p.fields {
		if existing.Name == f.Name {
			p.fields[i] = f
			return
		}
	}
	p.fields = append(p.fields, f)
}

// RemoveField drops the named field.
func (p *Panel) RemoveField(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, f := range p.fields {
		if f.Name == name {
			p.fields = append(p.fields[:i], p.fields[i+1:]...)
			return
		}
	}
}

func (p *Panel) Fields() []Field {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Field(nil), p.fields...)
}

// Allow enables operations.
func (p *Panel) Allow(ops ...Operation) {
	p.setAccess(true, ops)
}

// Deny disables operations. Denied operations register no route.
func (p *Panel) Deny(ops ...Operation) {
	p.setAccess(false, ops)
}

func (p *Panel) setAccess(allowed bool, ops []Operation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, op := range ops {
		p.access[op] = allowed
	}
}

// HasAccess reports whether op is allowed.
func (p *Panel) HasAccess(op Operation) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.access[op]
}

// SetPageLength sets the default number of entries per page.
func (p *Panel) SetPageLength(n int) {
	if n <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pageLength = n
}

func (p *Panel) PageLength() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pageLength
}

// PerPage clamps a requested page size to the page length menu. A size
// not on the menu falls back to the default page length.
func (p *Panel) PerPage(requested int) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if requested <= 0 {
		return p.pageLength
	}
	if len(p.pageLengthMenu) == 0 {
		return requested
	}
	for _, n := range p.pageLengthMenu {
		if n == requested {
			return n
		}
	}
	return p.pageLength
}

// EnableSearch toggles the list search box.
func (p *Panel) EnableSearch(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.searchable = enabled
}

func (p *Panel) Searchable() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.searchable
}

func (p *Panel) ShowEntryCount() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.showEntryCount
}

// SetUploadsDisk sets the default disk for upload fields.
func (p *Panel) SetUploadsDisk(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.uploadsDisk = name
}

func (p *Panel) UploadsDisk() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.uploadsDisk
}

// OrderBy sets the default list order.
func (p *Panel) OrderBy(column string, desc bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.defaultOrder = column
	p.defaultOrderDesc = desc
}

func (p *Panel) DefaultOrder() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.defaultOrder, p.defaultOrderDesc
}

// SearchColumns returns the names of searchable columns.
func (p *Panel) SearchColumns() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var names []string
	for _, col := range p.columns {
		if col.Searchable {
			names = append(names, col.Name)
		}
	}
	return names
}

// View is the read-only snapshot handed to templates and JSON clients.
type View struct {
	EntityName       string          `json:"entity_name"`
	EntityNamePlural string          `json:"entity_name_plural"`
	Route            string          `json:"route"`
	Key              string          `json:"key"`
	Columns          []Column        `json:"columns"`
	Fields           []Field         `json:"fields"`
	Access           map[string]bool `json:"access"`
	Searchable       bool            `json:"searchable"`
	ShowEntryCount   bool            `json:"show_entry_count"`
	PageLengthMenu   []int           `json:"page_length_menu"`
}

// View snapshots the panel.
func (p *Panel) View() View {
	p.mu.RLock()
	defer p.mu.RUnlock()

	access := make(map[string]bool, len(p.access))
	for op, ok := range p.access {
		access[string(op)] = ok
	}
	return View{
		EntityName:       p.entityName,
		EntityNamePlural: p.entityNamePlural,
		Route:            p.route,
		Key:              p.key,
		Columns:          append([]Column(nil), p.columns...),
		Fields:           append([]Field(nil), p.fields...),
		Access:           access,
		Searchable:       p.searchable,
		ShowEntryCount:   p.showEntryCount,
		PageLengthMenu:   append([]int(nil), p.pageLengthMenu...),
	}
}

// AllowedOperations returns allowed operations, sorted.
func (p *Panel) AllowedOperations() []Operation {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var ops []Operation
	for op, ok := range p.access {
		if ok {
			ops = append(ops, op)
		}
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

// Label turns a column name into a human label: "created_at" becomes
// "Created at".
func Label(name string) string {
	s := strings.TrimSpace(strings.ReplaceAll(name, "_", " "))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
