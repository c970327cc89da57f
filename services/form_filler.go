package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"jobpilot/driver"
	"jobpilot/models"
)

// Field discovery selectors, one per kind.
const (
	textFieldSelector    = "input[type='text'], input[type='email'], input[type='tel'], input[type='number'], input[type='url'], input:not([type]), textarea"
	checkboxSelector     = "input[type='checkbox']"
	singleSelectSelector = "select:not([multiple])"
	multiSelectSelector  = "select[multiple]"
	customMenuSelector   = "[role='combobox']:not(input):not(select), [aria-haspopup='listbox']:not(select)"
	fileInputSelector    = "input[type='file']"
)

var fieldSelectors = []struct {
	kind     models.FieldKind
	selector string
}{
	{models.FieldText, textFieldSelector},
	{models.FieldCheckbox, checkboxSelector},
	{models.FieldSingleSelect, singleSelectSelector},
	{models.FieldMultiSelect, multiSelectSelector},
	{models.FieldCustomMenu, customMenuSelector},
	{models.FieldFile, fileInputSelector},
}

// AnswerResolver is what the filler needs from FieldAnswerResolver.
type AnswerResolver interface {
	ResolveChoice(ctx context.Context, question string, options []string) (Answer, error)
	ResolveText(ctx context.Context, question string) (Answer, error)
}

// FillReport summarises one pass over a form page.
type FillReport struct {
	Fields   int `json:"fields"`
	Filled   int `json:"filled"`
	Checked  int `json:"checked"`
	Selected int `json:"selected"`
	Uploaded int `json:"uploaded"`
	Skipped  int `json:"skipped"`
	// Unresolved lists labels of required fields left empty.
	Unresolved []string `json:"unresolved,omitempty"`
}

func (r *FillReport) add(o FillReport) {
	r.Fields += o.Fields
	r.Filled += o.Filled
	r.Checked += o.Checked
	r.Selected += o.Selected
	r.Uploaded += o.Uploaded
	r.Skipped += o.Skipped
	r.Unresolved = append(r.Unresolved, o.Unresolved...)
}

type fieldHandler func(ctx context.Context, scope driver.Queryer, f *models.FieldDescriptor, report *FillReport) error

// FormFiller discovers the controls of a form page and fills them, one
// handler per field kind.
type FormFiller struct {
	resolver   AnswerResolver
	resumePath string
	logger     *zap.Logger
	handlers   map[models.FieldKind]fieldHandler
}

func NewFormFiller(resolver AnswerResolver, resumePath string, logger *zap.Logger) *FormFiller {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &FormFiller{
		resolver:   resolver,
		resumePath: resumePath,
		logger:     logger.Named("form"),
	}
	f.handlers = map[models.FieldKind]fieldHandler{
		models.FieldText:         f.fillText,
		models.FieldCheckbox:     f.fillCheckbox,
		models.FieldSingleSelect: f.fillSelect,
		models.FieldMultiSelect:  f.fillSelect,
		models.FieldCustomMenu:   f.fillCustomMenu,
		models.FieldFile:         f.fillFile,
	}
	return f
}

// Describe builds a descriptor for every visible control in scope.
func (f *FormFiller) Describe(ctx context.Context, scope driver.Queryer) ([]models.FieldDescriptor, error) {
	var fields []models.FieldDescriptor
	for _, fs := range fieldSelectors {
		els, err := scope.Query(ctx, fs.selector)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		for _, el := range els {
			if visible, _ := el.IsVisible(ctx); !visible && fs.kind != models.FieldFile {
				continue
			}
			fields = append(fields, describe(ctx, scope, fs.kind, el))
		}
	}
	return fields, nil
}

func describe(ctx context.Context, scope driver.Queryer, kind models.FieldKind, el driver.Element) models.FieldDescriptor {
	d := models.FieldDescriptor{Kind: kind, Element: el}
	d.Label = fieldLabel(ctx, scope, el)
	d.Required = isRequired(ctx, el, d.Label)

	switch kind {
	case models.FieldCheckbox:
		if checked, _ := el.IsChecked(ctx); checked {
			d.Value = "on"
		}
		if !d.Required && QuestionCategory(d.Label) == CategoryConsent {
			d.Required = true
		}
	case models.FieldSingleSelect, models.FieldMultiSelect:
		d.Value, _ = el.Value(ctx)
		d.Options = optionTexts(ctx, el, "option")
		// Native selects report the option value; map it back to its label.
		if d.Value != "" {
			if opts, err := el.Query(ctx, "option:checked"); err == nil && len(opts) > 0 {
				if t, _ := opts[0].Text(ctx); strings.TrimSpace(t) != "" {
					d.Value = strings.TrimSpace(t)
				}
			}
		}
	case models.FieldCustomMenu:
		t, _ := el.Text(ctx)
		d.Value = strings.TrimSpace(t)
	default:
		d.Value, _ = el.Value(ctx)
	}
	return d
}

func isRequired(ctx context.Context, el driver.Element, label string) bool {
	if ok, _ := el.HasAttribute(ctx, "required"); ok {
		return true
	}
	if v, _ := el.Attribute(ctx, "aria-required"); v == "true" {
		return true
	}
	return strings.Contains(label, "*")
}

// fieldLabel finds the question text for a control: aria-label, label[for],
// ancestor label, preceding sibling, placeholder, then name.
func fieldLabel(ctx context.Context, scope driver.Queryer, el driver.Element) string {
	if v, _ := el.Attribute(ctx, "aria-label"); strings.TrimSpace(v) != "" {
		return cleanLabel(v)
	}
	if id, _ := el.Attribute(ctx, "id"); id != "" {
		if t := firstText(ctx, scope, fmt.Sprintf("label[for=%s]", strconv.Quote(id))); t != "" {
			return t
		}
	}
	if t := firstText(ctx, el, "xpath=ancestor::label"); t != "" {
		return t
	}
	if t := firstText(ctx, el, "xpath=preceding-sibling::*[1]"); t != "" && len(t) < 200 {
		return t
	}
	for _, attr := range []string{"placeholder", "name"} {
		if v, _ := el.Attribute(ctx, attr); strings.TrimSpace(v) != "" {
			return cleanLabel(v)
		}
	}
	return ""
}

func firstText(ctx context.Context, scope driver.Queryer, selector string) string {
	els, err := scope.Query(ctx, selector)
	if err != nil || len(els) == 0 {
		return ""
	}
	t, _ := els[0].Text(ctx)
	return cleanLabel(t)
}

func cleanLabel(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func optionTexts(ctx context.Context, scope driver.Queryer, selector string) []string {
	els, err := scope.Query(ctx, selector)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(els))
	for _, el := range els {
		if t, _ := el.Text(ctx); strings.TrimSpace(t) != "" {
			out = append(out, strings.TrimSpace(t))
		}
	}
	return out
}

// Fill describes and fills every control in scope. Individual field errors
// are logged and counted as skips; only context errors are returned.
func (f *FormFiller) Fill(ctx context.Context, scope driver.Queryer) (FillReport, error) {
	var report FillReport
	fields, err := f.Describe(ctx, scope)
	if err != nil {
		return report, err
	}
	report.Fields = len(fields)

	for i := range fields {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		field := &fields[i]
		handler, ok := f.handlers[field.Kind]
		if !ok {
			continue
		}
		if err := handler(ctx, scope, field, &report); err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Skipped++
			f.logger.Warn("Could not fill field",
				zap.String("kind", string(field.Kind)),
				zap.String("label", field.Label),
				zap.Error(err))
			if field.Required {
				report.Unresolved = append(report.Unresolved, field.Label)
			}
		}
	}

	f.logger.Info("Form page filled",
		zap.Int("fields", report.Fields),
		zap.Int("filled", report.Filled),
		zap.Int("checked", report.Checked),
		zap.Int("selected", report.Selected),
		zap.Int("skipped", report.Skipped))
	return report, nil
}

// unanswered marks a field skipped because no answer could be produced.
func (f *FormFiller) unanswered(field *models.FieldDescriptor, report *FillReport, err error) {
	report.Skipped++
	if field.Required {
		report.Unresolved = append(report.Unresolved, field.Label)
	}
	f.logger.Debug("No answer for field", zap.String("label", field.Label), zap.Error(err))
}

func (f *FormFiller) fillText(ctx context.Context, scope driver.Queryer, field *models.FieldDescriptor, report *FillReport) error {
	if !field.Required || strings.TrimSpace(field.Value) != "" {
		return nil
	}
	a, err := f.resolver.ResolveText(ctx, field.Label)
	if err != nil {
		if errors.Is(err, ErrOracleUnavailable) {
			f.unanswered(field, report, err)
			return nil
		}
		return err
	}
	if err := field.Element.Fill(ctx, a.Value); err != nil {
		if serr := field.Element.SetValue(ctx, a.Value); serr != nil {
			return fmt.Errorf("fill %q: %w", field.Label, errors.Join(err, serr))
		}
	}
	field.Value = a.Value
	report.Filled++
	return nil
}

func (f *FormFiller) fillCheckbox(ctx context.Context, scope driver.Queryer, field *models.FieldDescriptor, report *FillReport) error {
	if !field.Required || field.Value != "" {
		return nil
	}
	if err := field.Element.Check(ctx); err != nil {
		if cerr := field.Element.Click(ctx); cerr != nil {
			return fmt.Errorf("check %q: %w", field.Label, errors.Join(err, cerr))
		}
	}
	field.Value = "on"
	report.Checked++
	return nil
}

// skipSelect reports whether a select-like field should be left alone:
// it already holds a real value or asks for identity data the platform
// prefills.
func skipSelect(field *models.FieldDescriptor) bool {
	if field.Value != "" && !IsPlaceholderOption(field.Value) {
		return true
	}
	switch QuestionCategory(field.Label) {
	case CategoryIdentity, CategoryCountry:
		return true
	}
	return false
}

func (f *FormFiller) fillSelect(ctx context.Context, scope driver.Queryer, field *models.FieldDescriptor, report *FillReport) error {
	if skipSelect(field) {
		return nil
	}
	a, err := f.resolver.ResolveChoice(ctx, field.Label, field.Options)
	if err != nil {
		if errors.Is(err, ErrOracleUnavailable) {
			f.unanswered(field, report, err)
			return nil
		}
		return err
	}
	if !containsOption(field.Options, a.Value) {
		f.unanswered(field, report, fmt.Errorf("answer %q is not an option", a.Value))
		return nil
	}
	if err := f.applyChoice(ctx, scope, field.Element, a.Value); err != nil {
		return err
	}
	field.Value = a.Value
	report.Selected++
	return nil
}

// applyChoice tries direct selection, scripted assignment, then opening the
// control and clicking the option.
func (f *FormFiller) applyChoice(ctx context.Context, scope driver.Queryer, el driver.Element, value string) error {
	err := el.SelectOption(ctx, value)
	if err == nil {
		return nil
	}
	f.logger.Debug("Direct selection failed", zap.String("value", value), zap.Error(err))

	serr := el.SetValue(ctx, value)
	if serr == nil {
		return nil
	}
	f.logger.Debug("Scripted assignment failed", zap.String("value", value), zap.Error(serr))

	cerr := openAndClick(ctx, scope, el, value)
	if cerr == nil {
		return nil
	}
	return fmt.Errorf("select %q: %w", value, errors.Join(err, serr, cerr))
}

func (f *FormFiller) fillCustomMenu(ctx context.Context, scope driver.Queryer, field *models.FieldDescriptor, report *FillReport) error {
	if skipSelect(field) {
		return nil
	}
	if err := field.Element.Click(ctx); err != nil {
		return fmt.Errorf("open %q: %w", field.Label, err)
	}
	field.Options = optionTexts(ctx, scope, "[role='option']")

	a, err := f.resolver.ResolveChoice(ctx, field.Label, field.Options)
	if err != nil {
		if errors.Is(err, ErrOracleUnavailable) {
			_ = field.Element.Press(ctx, "Escape")
			f.unanswered(field, report, err)
			return nil
		}
		return err
	}
	if len(field.Options) > 0 && !containsOption(field.Options, a.Value) {
		_ = field.Element.Press(ctx, "Escape")
		f.unanswered(field, report, fmt.Errorf("answer %q is not an option", a.Value))
		return nil
	}

	if el, ok := firstUsable(ctx, scope, customOptionSelectors(a.Value)); ok {
		if err := el.Click(ctx); err == nil {
			field.Value = a.Value
			report.Selected++
			return nil
		}
	}
	// Typeahead menus accept the value typed in and confirmed with Enter.
	if err := field.Element.Fill(ctx, a.Value); err != nil {
		return fmt.Errorf("select %q in %q: %w", a.Value, field.Label, err)
	}
	if err := field.Element.Press(ctx, "Enter"); err != nil {
		return fmt.Errorf("confirm %q in %q: %w", a.Value, field.Label, err)
	}
	field.Value = a.Value
	report.Selected++
	return nil
}

func (f *FormFiller) fillFile(ctx context.Context, scope driver.Queryer, field *models.FieldDescriptor, report *FillReport) error {
	if f.resumePath == "" || field.Value != "" {
		return nil
	}
	if err := field.Element.SetInputFiles(ctx, f.resumePath); err != nil {
		return fmt.Errorf("upload resume: %w", err)
	}
	field.Value = f.resumePath
	report.Uploaded++
	return nil
}

func openAndClick(ctx context.Context, scope driver.Queryer, el driver.Element, value string) error {
	if err := el.Click(ctx); err != nil {
		return err
	}
	opt, ok := firstUsable(ctx, scope, customOptionSelectors(value))
	if !ok {
		return fmt.Errorf("option %q: %w", value, ErrElementNotFound)
	}
	return opt.Click(ctx)
}

func customOptionSelectors(value string) []string {
	q := strconv.Quote(value)
	return []string{
		fmt.Sprintf("[role='option']:has-text(%s)", q),
		fmt.Sprintf("li:has-text(%s)", q),
		fmt.Sprintf("[role='menuitem']:has-text(%s)", q),
		fmt.Sprintf("option:has-text(%s)", q),
	}
}

func containsOption(options []string, v string) bool {
	for _, o := range options {
		if o == v {
			return true
		}
	}
	return false
}
