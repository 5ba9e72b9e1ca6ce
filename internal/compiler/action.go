package compiler

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"
	"unicode"

	"github.com/aretw0/weft/pkg/domain"
)

var reParamKey = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

var logLevels = map[string]string{
	"debug":   "debug",
	"info":    "info",
	"warn":    "warn",
	"warning": "warn",
	"error":   "error",
}

// ParseAction parses action text such as `Shell "make test" with timeout=5m`.
//
// It returns (nil, nil) when the text does not start with an action verb in
// its expected shape, so plain descriptions pass through. Once a verb is
// recognized the text is committed: any later mistake is an error.
func ParseAction(text string) (*domain.ActionSpec, error) {
	text = strings.TrimSpace(text)
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return nil, nil
	}
	verb := strings.ToLower(fields[0])
	next := fields[1]

	s := &scanner{src: text}
	var (
		spec *domain.ActionSpec
		err  error
	)
	switch {
	case verb == "execute" && strings.EqualFold(next, "prompt"):
		spec, err = parsePrompt(s, true)
	case verb == "prompt" && strings.HasPrefix(next, `"`):
		spec, err = parsePrompt(s, false)
	case verb == "shell" && strings.HasPrefix(next, `"`):
		spec, err = parseShell(s)
	case verb == "run" && strings.EqualFold(next, "workflow"):
		spec, err = parseSubWorkflow(s)
	case verb == "wait" && len(fields) > 2 && strings.EqualFold(next, "for") && strings.EqualFold(fields[2], "signal"):
		spec, err = parseSignalWait(s)
	case verb == "wait" && startsWithDigit(next):
		spec, err = parseTimedWait(s)
	case verb == "set" && isAssignment(next):
		spec, err = parseSet(s)
	case verb == "log" && (strings.HasPrefix(next, `"`) || (logLevels[strings.ToLower(next)] != "" && len(fields) > 2 && strings.HasPrefix(fields[2], `"`))):
		spec, err = parseLog(s)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("malformed action %q: %w", text, err)
	}
	spec.Text = text
	return spec, nil
}

func startsWithDigit(s string) bool {
	return s != "" && unicode.IsDigit(rune(s[0]))
}

func isAssignment(tok string) bool {
	key, _, ok := strings.Cut(tok, "=")
	return ok && reParamKey.MatchString(key)
}

func newSpec(kind domain.ActionKind) *domain.ActionSpec {
	return &domain.ActionSpec{Kind: kind, Idempotent: domain.DefaultIdempotent(kind)}
}

// applyCommon handles the parameters every action understands.
func applyCommon(spec *domain.ActionSpec, p param) (bool, error) {
	switch p.key {
	case "timeout":
		d, err := p.duration()
		if err != nil {
			return true, err
		}
		spec.Timeout = d
		return true, nil
	case "idempotent":
		b, err := p.bool()
		if err != nil {
			return true, err
		}
		spec.Idempotent = b
		return true, nil
	}
	return false, nil
}

func parsePrompt(s *scanner, named bool) (*domain.ActionSpec, error) {
	s.word()
	if named {
		s.word()
	}
	arg, err := s.quoted()
	if err != nil {
		return nil, err
	}
	params, err := s.withClause()
	if err != nil {
		return nil, err
	}

	spec := newSpec(domain.ActionPrompt)
	pa := &domain.PromptAction{}
	if named {
		pa.Name = arg
	} else {
		pa.Inline = arg
	}
	for _, p := range params {
		if handled, err := applyCommon(spec, p); handled {
			if err != nil {
				return nil, err
			}
			continue
		}
		if p.key == "result" {
			pa.ResultVar = p.raw
			continue
		}
		if pa.Params == nil {
			pa.Params = make(map[string]any)
		}
		pa.Params[p.key] = p.value()
	}
	spec.Prompt = pa
	return spec, nil
}

func parseShell(s *scanner) (*domain.ActionSpec, error) {
	s.word()
	cmd, err := s.quoted()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cmd) == "" {
		return nil, fmt.Errorf("empty command")
	}
	params, err := s.withClause()
	if err != nil {
		return nil, err
	}

	spec := newSpec(domain.ActionShell)
	sa := &domain.ShellAction{Command: cmd}
	for _, p := range params {
		if handled, err := applyCommon(spec, p); handled {
			if err != nil {
				return nil, err
			}
			continue
		}
		switch {
		case p.key == "cwd" || p.key == "dir":
			sa.Dir = p.raw
		case p.key == "result":
			sa.ResultVar = p.raw
		case strings.HasPrefix(p.key, "env.") && len(p.key) > len("env."):
			if sa.Env == nil {
				sa.Env = make(map[string]string)
			}
			sa.Env[strings.TrimPrefix(p.key, "env.")] = p.raw
		default:
			return nil, fmt.Errorf("unknown shell parameter %q", p.key)
		}
	}
	spec.Shell = sa
	return spec, nil
}

func parseSubWorkflow(s *scanner) (*domain.ActionSpec, error) {
	s.word()
	s.word()
	name, err := s.quoted()
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("empty workflow name")
	}
	params, err := s.withClause()
	if err != nil {
		return nil, err
	}

	spec := newSpec(domain.ActionSubWorkflow)
	sw := &domain.SubWorkflowAction{Workflow: domain.WorkflowName(name)}
	for _, p := range params {
		if handled, err := applyCommon(spec, p); handled {
			if err != nil {
				return nil, err
			}
			continue
		}
		if p.key == "result" {
			sw.ResultVar = p.raw
			continue
		}
		if sw.Params == nil {
			sw.Params = make(map[string]any)
		}
		sw.Params[p.key] = p.value()
	}
	spec.SubWorkflow = sw
	return spec, nil
}

func parseSignalWait(s *scanner) (*domain.ActionSpec, error) {
	s.word()
	s.word()
	s.word()
	name, err := s.quoted()
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("empty signal name")
	}
	params, err := s.withClause()
	if err != nil {
		return nil, err
	}
	spec := newSpec(domain.ActionWait)
	for _, p := range params {
		handled, err := applyCommon(spec, p)
		if err != nil {
			return nil, err
		}
		if !handled {
			return nil, fmt.Errorf("unknown wait parameter %q", p.key)
		}
	}
	spec.Wait = &domain.WaitAction{Signal: name}
	return spec, nil
}

var durationUnits = map[string]time.Duration{
	"ms": time.Millisecond, "millisecond": time.Millisecond, "milliseconds": time.Millisecond,
	"s": time.Second, "sec": time.Second, "secs": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hour": time.Hour, "hours": time.Hour,
}

func parseTimedWait(s *scanner) (*domain.ActionSpec, error) {
	s.word()
	amount := s.word()

	var d time.Duration
	if unit := strings.ToLower(s.peek()); unit != "" {
		mult, ok := durationUnits[unit]
		if !ok {
			return nil, fmt.Errorf("unknown duration unit %q", unit)
		}
		s.word()
		n, err := strconv.ParseFloat(amount, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid duration amount %q", amount)
		}
		d = time.Duration(n * float64(mult))
	} else {
		var err error
		if d, err = time.ParseDuration(amount); err != nil {
			return nil, fmt.Errorf("invalid duration %q", amount)
		}
	}
	if d <= 0 {
		return nil, fmt.Errorf("wait duration must be positive")
	}
	if !s.eof() {
		return nil, fmt.Errorf("unexpected %q after duration", s.rest())
	}

	spec := newSpec(domain.ActionWait)
	spec.Wait = &domain.WaitAction{Duration: d}
	return spec, nil
}

func parseSet(s *scanner) (*domain.ActionSpec, error) {
	s.word()
	params, err := s.pairs()
	if err != nil {
		return nil, err
	}
	spec := newSpec(domain.ActionSet)
	set := &domain.SetAction{}
	for _, p := range params {
		set.Assignments = append(set.Assignments, domain.Assignment{Key: p.key, Value: p.value()})
	}
	spec.Set = set
	return spec, nil
}

func parseLog(s *scanner) (*domain.ActionSpec, error) {
	s.word()
	level := ""
	if !s.atQuote() {
		level = logLevels[strings.ToLower(s.word())]
	}
	msg, err := s.quoted()
	if err != nil {
		return nil, err
	}
	if !s.eof() {
		return nil, fmt.Errorf("unexpected %q after log message", s.rest())
	}
	spec := newSpec(domain.ActionLog)
	spec.Log = &domain.LogAction{Level: level, Message: msg}
	return spec, nil
}

// param is one k=v pair. raw holds the unquoted text of the value.
type param struct {
	key    string
	raw    string
	quoted bool
}

// value converts bare tokens to bool or number; quoted values stay strings.
func (p param) value() any {
	if p.quoted {
		return p.raw
	}
	if p.raw == "true" || p.raw == "false" {
		return p.raw == "true"
	}
	if i, err := strconv.ParseInt(p.raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(p.raw, 64); err == nil {
		return f
	}
	return p.raw
}

func (p param) duration() (time.Duration, error) {
	d, err := time.ParseDuration(p.raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", p.key, p.raw)
	}
	return d, nil
}

func (p param) bool() (bool, error) {
	b, err := strconv.ParseBool(p.raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q", p.key, p.raw)
	}
	return b, nil
}

// scanner walks action text token by token.
type scanner struct {
	src string
	pos int
}

func (s *scanner) skipSpace() {
	for s.pos < len(s.src) && unicode.IsSpace(rune(s.src[s.pos])) {
		s.pos++
	}
}

func (s *scanner) eof() bool {
	s.skipSpace()
	return s.pos >= len(s.src)
}

func (s *scanner) rest() string {
	return s.src[s.pos:]
}

func (s *scanner) atQuote() bool {
	s.skipSpace()
	return s.pos < len(s.src) && s.src[s.pos] == '"'
}

func (s *scanner) peek() string {
	s.skipSpace()
	end := s.pos
	for end < len(s.src) && !unicode.IsSpace(rune(s.src[end])) {
		end++
	}
	return s.src[s.pos:end]
}

func (s *scanner) word() string {
	w := s.peek()
	s.pos += len(w)
	return w
}

// quoted reads a double-quoted string with Go escapes and checks template syntax.
func (s *scanner) quoted() (string, error) {
	if !s.atQuote() {
		return "", fmt.Errorf("expected quoted string at %q", s.rest())
	}
	end := s.pos + 1
	for end < len(s.src) {
		if s.src[end] == '\\' {
			end += 2
			continue
		}
		if s.src[end] == '"' {
			break
		}
		end++
	}
	if end >= len(s.src) {
		return "", fmt.Errorf("unterminated string")
	}
	val, err := strconv.Unquote(s.src[s.pos : end+1])
	if err != nil {
		return "", fmt.Errorf("invalid string %s: %w", s.src[s.pos:end+1], err)
	}
	s.pos = end + 1
	if err := checkTemplate(val); err != nil {
		return "", err
	}
	return val, nil
}

// withClause reads an optional `with k=v ...` tail.
func (s *scanner) withClause() ([]param, error) {
	if s.eof() {
		return nil, nil
	}
	if w := s.word(); !strings.EqualFold(w, "with") {
		return nil, fmt.Errorf("unexpected %q, expected 'with'", w)
	}
	params, err := s.pairs()
	if err != nil {
		return nil, err
	}
	if len(params) == 0 {
		return nil, fmt.Errorf("'with' requires at least one parameter")
	}
	return params, nil
}

func (s *scanner) pairs() ([]param, error) {
	var out []param
	seen := make(map[string]bool)
	for !s.eof() {
		eq := strings.IndexByte(s.src[s.pos:], '=')
		if eq < 0 {
			return nil, fmt.Errorf("expected key=value at %q", s.rest())
		}
		key := s.src[s.pos : s.pos+eq]
		if !reParamKey.MatchString(key) {
			return nil, fmt.Errorf("invalid parameter name %q", key)
		}
		if seen[key] {
			return nil, fmt.Errorf("duplicate parameter %q", key)
		}
		seen[key] = true
		s.pos += eq + 1

		p := param{key: key}
		if s.pos < len(s.src) && s.src[s.pos] == '"' {
			v, err := s.quoted()
			if err != nil {
				return nil, err
			}
			p.raw, p.quoted = v, true
		} else {
			p.raw = s.word()
			if p.raw == "" {
				return nil, fmt.Errorf("missing value for %q", key)
			}
		}
		out = append(out, p)
	}
	return out, nil
}

func checkTemplate(text string) error {
	if !strings.Contains(text, "{{") {
		return nil
	}
	if _, err := template.New("action").Parse(text); err != nil {
		return fmt.Errorf("invalid template %q: %w", text, err)
	}
	return nil
}

// FormatAction renders an action in canonical text form.
// ParseAction(FormatAction(a)) yields a, with Text set to the formatted string.
func FormatAction(a *domain.ActionSpec) string {
	if a == nil {
		return ""
	}
	var b strings.Builder
	var extra []string

	switch a.Kind {
	case domain.ActionPrompt:
		if a.Prompt.Name != "" {
			fmt.Fprintf(&b, "Execute prompt %s", strconv.Quote(a.Prompt.Name))
		} else {
			fmt.Fprintf(&b, "Prompt %s", strconv.Quote(a.Prompt.Inline))
		}
		extra = append(extra, formatParams(a.Prompt.Params)...)
		if a.Prompt.ResultVar != "" {
			extra = append(extra, "result="+strconv.Quote(a.Prompt.ResultVar))
		}
	case domain.ActionShell:
		fmt.Fprintf(&b, "Shell %s", strconv.Quote(a.Shell.Command))
		if a.Shell.Dir != "" {
			extra = append(extra, "cwd="+strconv.Quote(a.Shell.Dir))
		}
		keys := make([]string, 0, len(a.Shell.Env))
		for k := range a.Shell.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			extra = append(extra, "env."+k+"="+strconv.Quote(a.Shell.Env[k]))
		}
		if a.Shell.ResultVar != "" {
			extra = append(extra, "result="+strconv.Quote(a.Shell.ResultVar))
		}
	case domain.ActionSubWorkflow:
		fmt.Fprintf(&b, "Run workflow %s", strconv.Quote(string(a.SubWorkflow.Workflow)))
		extra = append(extra, formatParams(a.SubWorkflow.Params)...)
		if a.SubWorkflow.ResultVar != "" {
			extra = append(extra, "result="+strconv.Quote(a.SubWorkflow.ResultVar))
		}
	case domain.ActionWait:
		if a.Wait.Signal != "" {
			fmt.Fprintf(&b, "Wait for signal %s", strconv.Quote(a.Wait.Signal))
		} else {
			fmt.Fprintf(&b, "Wait %s", a.Wait.Duration)
			return b.String()
		}
	case domain.ActionSet:
		b.WriteString("Set")
		for _, as := range a.Set.Assignments {
			b.WriteString(" " + as.Key + "=" + formatValue(as.Value))
		}
		return b.String()
	case domain.ActionLog:
		b.WriteString("Log ")
		if a.Log.Level != "" {
			b.WriteString(a.Log.Level + " ")
		}
		b.WriteString(strconv.Quote(a.Log.Message))
		return b.String()
	}

	if a.Timeout > 0 {
		extra = append(extra, "timeout="+a.Timeout.String())
	}
	if a.Idempotent != domain.DefaultIdempotent(a.Kind) {
		extra = append(extra, "idempotent="+strconv.FormatBool(a.Idempotent))
	}
	if len(extra) > 0 {
		b.WriteString(" with " + strings.Join(extra, " "))
	}
	return b.String()
}

// FormatLabel renders a transition label, or "" when the edge needs none.
func FormatLabel(cond domain.TransitionCondition, action *domain.ActionSpec) string {
	if action == nil {
		if cond.Kind == domain.ConditionAlways || cond.Kind == "" {
			return ""
		}
		return cond.String()
	}
	text := action.Text
	if text == "" {
		text = FormatAction(action)
	}
	return cond.String() + " / " + text
}

func formatParams(params map[string]any) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+formatValue(params[k]))
	}
	return out
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return strconv.Quote(val)
	case time.Duration:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
