package checklist

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire format for date values and max_date constraints.
const DateLayout = "2006-01-02"

// Validator scores checklists. Stateless, safe for concurrent use.
type Validator struct {
	logger *slog.Logger
}

func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{logger: logger.With("component", "checklist_validator")}
}

// Validate scores every item in the config against the submitted data and
// folds the per-item statuses into an overall evidentiary status.
//
// Precedence for the overall status: Pending wins over everything so the UI
// surfaces "needs input" before any computed failure; then Failed; then
// Passed when every scored item passed; then Considered; then NotApplicable
// when nothing was scored at all.
func (v *Validator) Validate(config Config, data map[string]any) Result {
	mode := config.ValidationMode
	if mode == "" {
		mode = ModeStrict
	}

	res := Result{Items: make([]ItemResult, 0, len(config.Items))}
	for _, item := range config.Items {
		res.Items = append(res.Items, v.scoreItem(item, data, mode, &res.Errors))
	}
	res.Overall = Aggregate(res.Items)
	return res
}

// Aggregate folds top-level item results into one status.
func Aggregate(items []ItemResult) Status {
	if len(items) == 0 {
		return StatusPending
	}
	var pending, failed, considered, passed int
	for _, it := range items {
		switch it.Status {
		case StatusPending:
			pending++
		case StatusFailed:
			failed++
		case StatusConsidered:
			considered++
		case StatusPassed:
			passed++
		}
	}
	switch {
	case pending > 0:
		return StatusPending
	case failed > 0:
		return StatusFailed
	case passed > 0 && considered == 0:
		return StatusPassed
	case considered > 0:
		return StatusConsidered
	}
	return StatusNotApplicable
}

func (v *Validator) scoreItem(item Item, data map[string]any, mode Mode, errs *[]ItemError) ItemResult {
	res := ItemResult{ItemID: item.ID, Label: item.Label, Kind: item.Kind}

	if !EvalCondition(item.DisplayCondition, data) {
		res.Status = StatusNotApplicable
		res.Reason = "display condition not met"
		return res
	}

	if item.Kind == KindGroup {
		return v.scoreGroup(item, data, mode, errs)
	}

	raw, present := data[item.ID]
	if !present || !Answered(raw) {
		if item.Required {
			res.Status = StatusPending
			res.Reason = "no answer yet"
		} else {
			res.Status = StatusNotApplicable
		}
		return res
	}

	switch item.Kind {
	case KindCheckbox:
		res.Status, res.Reason = v.scoreCheckbox(item, raw, mode, errs)
	case KindCurrency, KindNumber:
		res.Status, res.Reason = v.scoreNumeric(item, raw, mode, errs)
	case KindText:
		res.Status, res.Reason = v.scoreText(item, raw, mode, errs)
	case KindDate:
		res.Status, res.Reason = v.scoreDate(item, raw, mode, errs)
	case KindAssessment:
		res.Status, res.Reason = v.scoreAssessment(item, raw, mode, errs)
	case KindRadio:
		res.Status, res.Reason = v.scoreRadio(item, raw, mode, errs)
	case KindDropdown:
		res.Status, res.Reason = v.scoreDropdown(item, raw, mode, errs)
	default:
		// unknown kinds are caught at publication; score fail-closed anyway
		v.logger.Warn("unknown checklist item kind", "item", item.ID, "kind", string(item.Kind))
		res.Status = dataShapeStatus(mode)
		res.Reason = fmt.Sprintf("unknown item kind %q", item.Kind)
	}
	return res
}

// dataShapeStatus is the score for a malformed answer: strict mode fails it,
// lenient mode keeps it alive as Considered.
func dataShapeStatus(mode Mode) Status {
	if mode == ModeLenient {
		return StatusConsidered
	}
	return StatusFailed
}

func pushErr(errs *[]ItemError, item Item, format string, args ...any) {
	*errs = append(*errs, ItemError{ItemID: item.ID, Label: item.Label, Message: fmt.Sprintf(format, args...)})
}

func (v *Validator) scoreCheckbox(item Item, raw any, mode Mode, errs *[]ItemError) (Status, string) {
	b, ok := raw.(bool)
	if !ok {
		pushErr(errs, item, "expected a boolean, got %T", raw)
		return dataShapeStatus(mode), "answer is not a boolean"
	}
	if b {
		return StatusPassed, ""
	}
	return StatusFailed, "unchecked"
}

func (v *Validator) scoreNumeric(item Item, raw any, mode Mode, errs *[]ItemError) (Status, string) {
	val, ok := coerceAmount(raw, item.Kind == KindCurrency)
	if !ok {
		pushErr(errs, item, "expected a number, got %v", raw)
		return dataShapeStatus(mode), "answer is not numeric"
	}

	if item.MaxValue != nil && val > *item.MaxValue {
		return StatusFailed, fmt.Sprintf("%v exceeds maximum %v", val, *item.MaxValue)
	}
	if item.Threshold != nil {
		if val >= *item.Threshold {
			return StatusPassed, ""
		}
		if item.MinValue != nil && val >= *item.MinValue {
			return StatusConsidered, fmt.Sprintf("%v below threshold %v but within tolerance", val, *item.Threshold)
		}
		return StatusFailed, fmt.Sprintf("%v below threshold %v", val, *item.Threshold)
	}
	if item.MinValue != nil && val < *item.MinValue {
		return StatusFailed, fmt.Sprintf("%v below minimum %v", val, *item.MinValue)
	}
	return StatusPassed, ""
}

func (v *Validator) scoreText(item Item, raw any, mode Mode, errs *[]ItemError) (Status, string) {
	s, ok := raw.(string)
	if !ok {
		pushErr(errs, item, "expected text, got %T", raw)
		return dataShapeStatus(mode), "answer is not text"
	}
	if item.Pattern != "" {
		re, err := regexp.Compile(item.Pattern)
		if err != nil {
			// a bad pattern is an authoring bug; do not punish the submitter
			v.logger.Warn("invalid checklist pattern", "item", item.ID, "error", err)
			return StatusPassed, ""
		}
		if !re.MatchString(s) {
			return dataShapeStatus(mode), "answer does not match the required format"
		}
	}
	return StatusPassed, ""
}

func (v *Validator) scoreDate(item Item, raw any, mode Mode, errs *[]ItemError) (Status, string) {
	s, ok := raw.(string)
	if !ok {
		pushErr(errs, item, "expected a date string, got %T", raw)
		return dataShapeStatus(mode), "answer is not a date"
	}
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		pushErr(errs, item, "unparseable date %q", s)
		return dataShapeStatus(mode), "answer is not a valid date"
	}
	if item.MaxDate == "" {
		return StatusPassed, ""
	}
	deadline, err := time.Parse(DateLayout, item.MaxDate)
	if err != nil {
		v.logger.Warn("invalid max_date in checklist config", "item", item.ID, "max_date", item.MaxDate)
		return StatusPassed, ""
	}

	if !d.After(deadline) {
		return StatusPassed, ""
	}
	if item.GraceEnabled && item.GracePeriodDays > 0 {
		graceEnd := deadline.AddDate(0, 0, item.GracePeriodDays)
		if !d.After(graceEnd) {
			return StatusConsidered, fmt.Sprintf("dated %s, within the %d-day grace window", s, item.GracePeriodDays)
		}
	}
	return StatusFailed, fmt.Sprintf("dated %s, past the %s deadline", s, item.MaxDate)
}

func (v *Validator) scoreAssessment(item Item, raw any, mode Mode, errs *[]ItemError) (Status, string) {
	s, ok := raw.(string)
	if !ok {
		pushErr(errs, item, "expected a judgment, got %T", raw)
		return dataShapeStatus(mode), "answer is not a judgment"
	}
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusPassed:
		return StatusPassed, ""
	case StatusConsidered:
		return StatusConsidered, ""
	case StatusFailed:
		return StatusFailed, ""
	}
	pushErr(errs, item, "judgment %q is not passed, considered, or failed", s)
	return dataShapeStatus(mode), "judgment outside the allowed values"
}

func (v *Validator) scoreRadio(item Item, raw any, mode Mode, errs *[]ItemError) (Status, string) {
	s, ok := raw.(string)
	if !ok {
		pushErr(errs, item, "expected an option, got %T", raw)
		return dataShapeStatus(mode), "answer is not an option"
	}
	if !containsString(item.Options, s) {
		pushErr(errs, item, "option %q is not in the configured set", s)
		return dataShapeStatus(mode), "answer outside the configured options"
	}
	if len(item.PassingOptions) == 0 {
		return StatusPassed, ""
	}
	if containsString(item.PassingOptions, s) {
		return StatusPassed, ""
	}
	return StatusFailed, fmt.Sprintf("option %q is not a passing answer", s)
}

func (v *Validator) scoreDropdown(item Item, raw any, mode Mode, errs *[]ItemError) (Status, string) {
	if !item.MultiSelect {
		return v.scoreRadio(item, raw, mode, errs)
	}

	selections, ok := toStringSlice(raw)
	if !ok {
		pushErr(errs, item, "expected a list of options, got %T", raw)
		return dataShapeStatus(mode), "answer is not a list of options"
	}
	for _, s := range selections {
		if !containsString(item.Options, s) {
			pushErr(errs, item, "option %q is not in the configured set", s)
			return dataShapeStatus(mode), "a selection is outside the configured options"
		}
	}

	need := item.MinSelections
	if need <= 0 {
		need = 1
	}
	qualifying := len(selections)
	if len(item.PassingOptions) > 0 {
		qualifying = 0
		for _, s := range selections {
			if containsString(item.PassingOptions, s) {
				qualifying++
			}
		}
	}
	if qualifying >= need {
		return StatusPassed, ""
	}
	return StatusFailed, fmt.Sprintf("%d qualifying selections, need %d", qualifying, need)
}

// scoreGroup rolls children up. OR groups are satisfied by a quota of passing
// children; AND groups require every scored child to pass. NotApplicable
// children never count either way.
func (v *Validator) scoreGroup(item Item, data map[string]any, mode Mode, errs *[]ItemError) ItemResult {
	res := ItemResult{ItemID: item.ID, Label: item.Label, Kind: KindGroup}
	res.Children = make([]ItemResult, 0, len(item.Children))

	var passed, considered, failed, pending, scored int
	for _, child := range item.Children {
		cr := v.scoreItem(child, data, mode, errs)
		res.Children = append(res.Children, cr)
		switch cr.Status {
		case StatusPassed:
			passed++
			scored++
		case StatusConsidered:
			considered++
			scored++
		case StatusFailed:
			failed++
			scored++
		case StatusPending:
			pending++
			scored++
		}
	}

	if scored == 0 {
		res.Status = StatusNotApplicable
		return res
	}

	if item.Logic == LogicOr {
		need := item.MinRequired
		if need <= 0 {
			need = 1
		}
		switch {
		case passed >= need:
			res.Status = StatusPassed
		case passed+considered >= need:
			res.Status = StatusConsidered
			res.Reason = fmt.Sprintf("quota of %d met only with considered answers", need)
		case pending > 0:
			res.Status = StatusPending
			res.Reason = "unanswered children could still meet the quota"
		default:
			res.Status = StatusFailed
			res.Reason = fmt.Sprintf("%d of %d required children passed", passed, need)
		}
		return res
	}

	// AND rollup
	switch {
	case failed > 0:
		res.Status = StatusFailed
		res.Reason = "a required child failed"
	case considered > 0:
		res.Status = StatusConsidered
	case pending > 0:
		res.Status = StatusPending
	default:
		res.Status = StatusPassed
	}
	return res
}

// coerceAmount accepts JSON numbers and numeric strings. Currency answers may
// carry thousands separators.
func coerceAmount(v any, currency bool) (float64, bool) {
	if s, ok := v.(string); ok && currency {
		s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
		return toNumber(s)
	}
	return toNumber(v)
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func containsString(list []string, s string) bool {
	for _, el := range list {
		if el == s {
			return true
		}
	}
	return false
}

func toStringSlice(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, el := range t {
			s, ok := el.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	case string:
		return []string{t}, true
	}
	return nil, false
}
