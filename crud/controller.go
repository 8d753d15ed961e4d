package crud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"path"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/karloscodes/backpack/inertia"
	"github.com/karloscodes/backpack/metrics"
	"github.com/karloscodes/backpack/middleware"
	"github.com/karloscodes/backpack/pkg/flash"
	"github.com/karloscodes/backpack/routing"
	"github.com/karloscodes/backpack/storage"
)

// Logger is the structured logger controllers write to.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Deps are the shared services a controller renders and writes through.
// Every field is optional except where noted.
type Deps struct {
	// Layout wraps HTML views, e.g. "backpack::layouts.app".
	Layout string

	// Middleware runs before every CRUD route, typically the auth guard.
	Middleware []fiber.Handler

	Inertia   *inertia.Responder
	Limiter   *middleware.ConcurrencyLimiter
	Metrics   *metrics.Metrics
	Storage   *storage.Manager
	Flash     *flash.Flasher
	Translate func(key string, replace map[string]string) string
	Logger    Logger
}

// SaveHook runs after form values are assigned and before the entry is
// written. Returning an error aborts the save.
type SaveHook[T any] func(c *fiber.Ctx, op Operation, entry *T, values map[string]string) error

// Controller serves the CRUD operations of model T.
type Controller[T any] struct {
	panel      *Panel
	repo       *Repository[T]
	deps       Deps
	beforeSave SaveHook[T]
}

// NewController creates a controller. panel should be a Clone of the
// container's template panel; setup configures it further. A panel
// without columns or fields gets them from the model schema.
func NewController[T any](panel *Panel, repo *Repository[T], deps Deps, setup ...func(*Panel)) (*Controller[T], error) {
	for _, fn := range setup {
		fn(panel)
	}
	if err := fillFromSchema(panel, repo); err != nil {
		return nil, err
	}
	if deps.Translate == nil {
		deps.Translate = func(key string, _ map[string]string) string { return key }
	}
	return &Controller[T]{panel: panel, repo: repo, deps: deps}, nil
}

// BeforeSave registers a hook run on store and update.
func (ctl *Controller[T]) BeforeSave(hook SaveHook[T]) *Controller[T] {
	ctl.beforeSave = hook
	return ctl
}

// Panel returns the controller's panel.
func (ctl *Controller[T]) Panel() *Panel {
	return ctl.panel
}

// Repository returns the controller's repository.
func (ctl *Controller[T]) Repository() *Repository[T] {
	return ctl.repo
}

// SetupRoutes registers one route per allowed operation under
// "<prefix>/<name>", named "<routeName>.<action>".
func (ctl *Controller[T]) SetupRoutes(r routing.Registrar, name, routeName, controller string) ([]routing.Route, error) {
	if name == "" {
		return nil, fmt.Errorf("crud: setup %s: empty resource name", controller)
	}

	base := routing.JoinPath(r.PathPrefix(), name)
	ctl.panel.SetRoute(base)
	if ctl.panel.EntityName() == "" {
		ctl.panel.SetEntityNameStrings(name, name)
	}

	var routes []routing.Route
	add := func(method, suffix, action string, h fiber.Handler) {
		handlers := append(append([]fiber.Handler(nil), ctl.deps.Middleware...), h)
		routes = append(routes, r.Add(method, "/"+name+suffix, routeName+"."+action, handlers...))
	}

	if ctl.panel.HasAccess(OpList) {
		add(fiber.MethodGet, "", "index", ctl.index)
		add(fiber.MethodPost, "/search", "search", ctl.search)
	}
	if ctl.panel.HasAccess(OpCreate) {
		add(fiber.MethodGet, "/create", "create", ctl.create)
		add(fiber.MethodPost, "", "store", ctl.store)
	}
	if ctl.panel.HasAccess(OpShow) {
		add(fiber.MethodGet, "/:id/show", "show", ctl.show)
	}
	if ctl.panel.HasAccess(OpUpdate) {
		add(fiber.MethodGet, "/:id/edit", "edit", ctl.edit)
		add(fiber.MethodPut, "/:id", "update", ctl.update)
	}
	if ctl.panel.HasAccess(OpDelete) {
		add(fiber.MethodDelete, "/:id", "destroy", ctl.destroy)
	}
	return routes, nil
}

func (ctl *Controller[T]) index(c *fiber.Ctx) error {
	page, err := ctl.list(c, c.Query("search"), c.QueryInt("page", 1), c.QueryInt("per_page", 0), c.Query("order"), c.QueryBool("desc", false))
	if err != nil {
		return err
	}
	entries, err := ctl.attributesOf(c.UserContext(), page.Entries)
	if err != nil {
		return err
	}

	meta := fiber.Map{
		"total":    page.Total,
		"page":     page.Page,
		"per_page": page.PerPage,
		"from":     page.From(),
		"to":       page.To(),
	}
	view := ctl.panel.View()

	return ctl.respond(c, OpList, "Crud/List", "crud::list", fiber.Map{
		"Title":   view.EntityNamePlural,
		"Panel":   view,
		"Entries": entries,
		"Search":  c.Query("search"),
		"Total":   page.Total,
		"From":    page.From(),
		"To":      page.To(),
	}, fiber.Map{"data": entries, "meta": meta})
}

// search answers the list table's ajax requests. It always returns JSON.
func (ctl *Controller[T]) search(c *fiber.Ctx) error {
	in, err := ctl.input(c)
	if err != nil {
		return err
	}
	values := in.values
	pageNum, _ := strconv.Atoi(values["page"])
	perPage, _ := strconv.Atoi(values["per_page"])
	desc, _ := strconv.ParseBool(values["desc"])

	page, err := ctl.list(c, values["search"], pageNum, perPage, values["order"], desc)
	if err != nil {
		return err
	}
	total, err := ctl.repo.Count(c.UserContext())
	if err != nil {
		return err
	}
	entries, err := ctl.attributesOf(c.UserContext(), page.Entries)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data":            entries,
		"recordsTotal":    total,
		"recordsFiltered": page.Total,
	})
}

func (ctl *Controller[T]) list(c *fiber.Ctx, search string, pageNum, perPage int, order string, desc bool) (Page[T], error) {
	if order == "" {
		order, desc = ctl.panel.DefaultOrder()
	}
	q := Query{
		Page:    pageNum,
		PerPage: ctl.panel.PerPage(perPage),
		Order:   order,
		Desc:    desc,
	}
	if ctl.panel.Searchable() {
		q.Search = search
		q.SearchColumns = ctl.panel.SearchColumns()
	}
	return ctl.repo.List(c.UserContext(), q)
}

func (ctl *Controller[T]) create(c *fiber.Ctx) error {
	view := ctl.panel.View()
	return ctl.respond(c, OpCreate, "Crud/Create", "crud::create", fiber.Map{
		"Title":  view.EntityName,
		"Panel":  view,
		"Errors": map[string]string{},
	}, fiber.Map{"panel": view})
}

func (ctl *Controller[T]) store(c *fiber.Ctx) error {
	in, err := ctl.input(c)
	if err != nil {
		return err
	}
	if errs := ctl.validate(in, false); len(errs) > 0 {
		return ctl.invalid(c, OpCreate, nil, errs)
	}

	entry := new(T)
	err = ctl.write(c, OpCreate, func(ctx context.Context) error {
		if err := ctl.assign(c, OpCreate, entry, in); err != nil {
			return err
		}
		return ctl.repo.Create(ctx, entry)
	})
	if err != nil {
		return ctl.writeFailed(c, OpCreate, nil, err)
	}

	attrs, err := ctl.repo.Attributes(c.UserContext(), entry)
	if err != nil {
		return err
	}
	if wantsJSON(c) {
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": attrs})
	}
	ctl.flash(c, flash.TypeSuccess, "backpack::crud.insert_success")
	return c.Redirect(ctl.panel.Route(), fiber.StatusSeeOther)
}

func (ctl *Controller[T]) show(c *fiber.Ctx) error {
	_, attrs, err := ctl.find(c)
	if err != nil {
		return err
	}
	view := ctl.panel.View()
	return ctl.respond(c, OpShow, "Crud/Show", "crud::show", fiber.Map{
		"Title": view.EntityName,
		"Panel": view,
		"Entry": attrs,
	}, fiber.Map{"data": attrs})
}

func (ctl *Controller[T]) edit(c *fiber.Ctx) error {
	_, attrs, err := ctl.find(c)
	if err != nil {
		return err
	}
	view := ctl.panel.View()
	return ctl.respond(c, OpUpdate, "Crud/Edit", "crud::edit", fiber.Map{
		"Title":  view.EntityName,
		"Panel":  view,
		"Entry":  attrs,
		"Errors": map[string]string{},
	}, fiber.Map{"data": attrs, "panel": view})
}

func (ctl *Controller[T]) update(c *fiber.Ctx) error {
	entry, attrs, err := ctl.find(c)
	if err != nil {
		return err
	}
	in, err := ctl.input(c)
	if err != nil {
		return err
	}
	if errs := ctl.validate(in, in.json); len(errs) > 0 {
		return ctl.invalid(c, OpUpdate, attrs, errs)
	}

	err = ctl.write(c, OpUpdate, func(ctx context.Context) error {
		if err := ctl.assign(c, OpUpdate, entry, in); err != nil {
			return err
		}
		return ctl.repo.Save(ctx, entry)
	})
	if err != nil {
		return ctl.writeFailed(c, OpUpdate, attrs, err)
	}

	if wantsJSON(c) {
		updated, err := ctl.repo.Attributes(c.UserContext(), entry)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"data": updated})
	}
	ctl.flash(c, flash.TypeSuccess, "backpack::crud.update_success")
	return c.Redirect(ctl.panel.Route(), fiber.StatusSeeOther)
}

func (ctl *Controller[T]) destroy(c *fiber.Ctx) error {
	id := c.Params("id")
	err := ctl.write(c, OpDelete, func(ctx context.Context) error {
		return ctl.repo.Delete(ctx, id)
	})
	if errors.Is(err, ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	if err != nil {
		return err
	}

	if wantsJSON(c) {
		return c.JSON(fiber.Map{"deleted": true})
	}
	ctl.flash(c, flash.TypeSuccess, "backpack::crud.delete_success")
	return c.Redirect(ctl.panel.Route(), fiber.StatusSeeOther)
}

func (ctl *Controller[T]) find(c *fiber.Ctx) (*T, map[string]any, error) {
	entry, err := ctl.repo.Find(c.UserContext(), c.Params("id"))
	if errors.Is(err, ErrNotFound) {
		return nil, nil, fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	if err != nil {
		return nil, nil, err
	}
	attrs, err := ctl.repo.Attributes(c.UserContext(), entry)
	if err != nil {
		return nil, nil, err
	}
	return entry, attrs, nil
}

// write runs fn through the write limiter and records the outcome.
func (ctl *Controller[T]) write(c *fiber.Ctx, op Operation, fn func(ctx context.Context) error) error {
	ctx := c.UserContext()
	var err error
	if ctl.deps.Limiter != nil {
		err = ctl.deps.Limiter.Write(ctx, func() error { return fn(ctx) })
	} else {
		err = fn(ctx)
	}

	if ctl.deps.Metrics != nil {
		ctl.deps.Metrics.CrudOperation(ctl.panel.EntityName(), string(op), err)
	}
	if err != nil && !errors.Is(err, ErrNotFound) && ctl.deps.Logger != nil {
		ctl.deps.Logger.Error("crud write failed",
			"entity", ctl.panel.EntityName(),
			"operation", string(op),
			"error", err,
		)
	}
	return err
}

// assign copies form values and uploads onto entry, then runs the hook.
func (ctl *Controller[T]) assign(c *fiber.Ctx, op Operation, entry *T, in input) error {
	fields := ctl.panel.Fields()
	attrs := make(map[string]string, len(fields))
	for _, f := range fields {
		if f.Type == FieldUpload {
			continue
		}
		v, ok := in.values[f.Name]
		// An unticked checkbox is absent from a submitted form.
		if !ok && (in.json || f.Type != FieldCheckbox) {
			continue
		}
		attrs[f.Name] = v
	}

	for _, f := range fields {
		if f.Type != FieldUpload {
			continue
		}
		stored, err := ctl.upload(c, f)
		if err != nil {
			return err
		}
		if stored != "" {
			attrs[f.Name] = stored
		}
	}

	if err := ctl.repo.SetAttributes(c.UserContext(), entry, attrs); err != nil {
		return &validationError{fields: map[string]string{"_": err.Error()}}
	}
	if ctl.beforeSave != nil {
		if err := ctl.beforeSave(c, op, entry, in.values); err != nil {
			return err
		}
	}
	return nil
}

// upload stores the file posted for f and returns its disk path, or ""
// when no file was sent.
func (ctl *Controller[T]) upload(c *fiber.Ctx, f Field) (string, error) {
	fh, err := c.FormFile(f.Name)
	if err != nil || fh == nil {
		return "", nil
	}
	if ctl.deps.Storage == nil {
		return "", errors.New("crud: upload field without storage")
	}

	diskName := f.Disk
	if diskName == "" {
		diskName = ctl.panel.UploadsDisk()
	}
	disk, err := ctl.deps.Storage.Disk(diskName)
	if err != nil {
		return "", err
	}

	dest := path.Join(entityDir(ctl.panel.EntityNamePlural()), uuid.NewString()+strings.ToLower(path.Ext(fh.Filename)))
	err = putFile(c.UserContext(), disk, dest, fh)
	if ctl.deps.Metrics != nil {
		ctl.deps.Metrics.Upload(diskName, err)
	}
	if err != nil {
		return "", fmt.Errorf("crud: store upload %s: %w", f.Name, err)
	}
	return dest, nil
}

func putFile(ctx context.Context, disk storage.Disk, dest string, fh *multipart.FileHeader) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	return disk.Put(ctx, dest, src, fh.Header.Get(fiber.HeaderContentType))
}

func entityDir(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "_")
	if name == "" {
		return "uploads"
	}
	return name
}

type input struct {
	values map[string]string
	json   bool
}

// input reads the request body as string values from a form or JSON.
func (ctl *Controller[T]) input(c *fiber.Ctx) (input, error) {
	values := make(map[string]string)
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		// Numbers stay json.Number so large integers keep their digits.
		var body map[string]any
		if len(c.Body()) > 0 {
			dec := json.NewDecoder(bytes.NewReader(c.Body()))
			dec.UseNumber()
			if err := dec.Decode(&body); err != nil {
				return input{}, fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
			}
		}
		for k, v := range body {
			if v == nil {
				values[k] = ""
				continue
			}
			values[k] = fmt.Sprint(v)
		}
		return input{values: values, json: true}, nil
	}

	c.Request().PostArgs().VisitAll(func(k, v []byte) {
		values[string(k)] = string(v)
	})
	if form, err := c.MultipartForm(); err == nil {
		for k, vs := range form.Value {
			if len(vs) > 0 {
				values[k] = vs[0]
			}
		}
	}
	return input{values: values}, nil
}

// validate checks required fields. Keys are field names. A partial
// input only checks the fields it carries.
func (ctl *Controller[T]) validate(in input, partial bool) map[string]string {
	errs := make(map[string]string)
	for _, f := range ctl.panel.Fields() {
		if !f.Required || f.Type == FieldUpload || f.Type == FieldCheckbox {
			continue
		}
		v, ok := in.values[f.Name]
		if partial && !ok {
			continue
		}
		if strings.TrimSpace(v) == "" {
			errs[f.Name] = ctl.deps.Translate("backpack::crud.validation.required", map[string]string{"attribute": f.Label})
		}
	}
	return errs
}

type validationError struct {
	fields map[string]string
}

func (e *validationError) Error() string {
	parts := make([]string, 0, len(e.fields))
	for k, v := range e.fields {
		parts = append(parts, k+": "+v)
	}
	return "crud: invalid input: " + strings.Join(parts, "; ")
}

// ValidationError reports field errors from a SaveHook.
func ValidationError(fields map[string]string) error {
	return &validationError{fields: fields}
}

func (ctl *Controller[T]) writeFailed(c *fiber.Ctx, op Operation, entry map[string]any, err error) error {
	var verr *validationError
	if errors.As(err, &verr) {
		return ctl.invalid(c, op, entry, verr.fields)
	}
	if errors.Is(err, middleware.ErrLimiterBusy) {
		c.Set(fiber.HeaderRetryAfter, "1")
		return fiber.NewError(fiber.StatusServiceUnavailable, "server busy, try again")
	}
	return err
}

// invalid redisplays the form with field errors. JSON clients get a 422.
func (ctl *Controller[T]) invalid(c *fiber.Ctx, op Operation, entry map[string]any, errs map[string]string) error {
	if wantsJSON(c) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"errors": errs})
	}

	component, view := "Crud/Create", "crud::create"
	if op == OpUpdate {
		component, view = "Crud/Edit", "crud::edit"
	}
	panelView := ctl.panel.View()
	if inertia.IsInertia(c) && ctl.deps.Inertia != nil {
		return ctl.deps.Inertia.Render(c, component, inertia.Props{
			"panel":  panelView,
			"data":   entry,
			"errors": errs,
		})
	}

	c.Status(fiber.StatusUnprocessableEntity)
	return ctl.render(c, view, fiber.Map{
		"Title":  panelView.EntityName,
		"Panel":  panelView,
		"Entry":  entry,
		"Errors": errs,
	})
}

func (ctl *Controller[T]) render(c *fiber.Ctx, view string, binding fiber.Map) error {
	if ctl.deps.Layout == "" {
		return c.Render(view, binding)
	}
	return c.Render(view, binding, ctl.deps.Layout)
}

// respond picks JSON, Inertia or HTML for the request.
func (ctl *Controller[T]) respond(c *fiber.Ctx, op Operation, component, view string, binding, data fiber.Map) error {
	switch {
	case inertia.IsInertia(c) && ctl.deps.Inertia != nil:
		props := inertia.Props{"panel": binding["Panel"], "operation": string(op)}
		for k, v := range data {
			props[k] = v
		}
		return ctl.deps.Inertia.Render(c, component, props)
	case wantsJSON(c):
		return c.JSON(data)
	default:
		if msg, ok := flash.Get(c); ok {
			binding["Flash"] = msg
		}
		if _, ok := binding["Errors"]; !ok {
			binding["Errors"] = map[string]string{}
		}
		return ctl.render(c, view, binding)
	}
}

func (ctl *Controller[T]) flash(c *fiber.Ctx, typ, key string) {
	if ctl.deps.Flash == nil {
		return
	}
	ctl.deps.Flash.Set(c, typ, ctl.deps.Translate(key, nil))
}

func (ctl *Controller[T]) attributesOf(ctx context.Context, entries []T) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(entries))
	for i := range entries {
		attrs, err := ctl.repo.Attributes(ctx, &entries[i])
		if err != nil {
			return nil, err
		}
		out = append(out, attrs)
	}
	return out, nil
}

// wantsJSON reports whether the client prefers JSON over HTML.
func wantsJSON(c *fiber.Ctx) bool {
	if inertia.IsInertia(c) {
		return false
	}
	return c.Accepts(fiber.MIMETextHTML, fiber.MIMEApplicationJSON) == fiber.MIMEApplicationJSON
}

// fillFromSchema derives columns and fields from the model when the
// panel has none.
func fillFromSchema[T any](panel *Panel, repo *Repository[T]) error {
	if len(panel.Columns()) > 0 && len(panel.Fields()) > 0 {
		return nil
	}
	sch, err := repo.Schema()
	if err != nil {
		return err
	}

	addColumns := len(panel.Columns()) == 0
	addFields := len(panel.Fields()) == 0
	for _, field := range sch.Fields {
		if field.DBName == "" || isSecret(field.DBName) {
			continue
		}
		if addColumns {
			panel.AddColumn(Column{
				Name:       field.DBName,
				Searchable: field.DataType == "string",
				Orderable:  true,
			})
		}
		if addFields && !field.PrimaryKey && field.AutoCreateTime == 0 && field.AutoUpdateTime == 0 && field.DBName != "deleted_at" {
			panel.AddField(Field{Name: field.DBName, Type: fieldType(string(field.DataType))})
		}
	}
	if panel.EntityName() == "" {
		panel.SetEntityNameStrings(sch.Name, sch.Table)
	}
	return nil
}

func fieldType(dataType string) string {
	switch dataType {
	case "bool":
		return FieldCheckbox
	case "int", "uint", "float":
		return FieldNumber
	case "time":
		return FieldDate
	default:
		return FieldText
	}
}
