package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aretw0/weft/pkg/domain"
)

const (
	markerStartEnd   = "[*]"
	stereoCompensate = "<<compensation>>"
)

var (
	idPattern     = `[A-Za-z_][A-Za-z0-9_-]*`
	reID          = regexp.MustCompile(`^` + idPattern + `$`)
	reStateAs     = regexp.MustCompile(`^state\s+"([^"]*)"\s+as\s+(` + idPattern + `)\s*(<<[A-Za-z_]+>>)?$`)
	reStatePlain  = regexp.MustCompile(`^state\s+(` + idPattern + `)\s*(<<[A-Za-z_]+>>)?$`)
	reDescription = regexp.MustCompile(`^(` + idPattern + `)\s*:\s*(.*)$`)
)

// Parser is responsible for converting diagram source into a WorkflowDefinition.
type Parser struct{}

// NewParser creates a new parser instance.
func NewParser() *Parser {
	return &Parser{}
}

// Parse is a shorthand for NewParser().Parse.
func Parse(name domain.WorkflowName, src []byte) (*domain.WorkflowDefinition, error) {
	return NewParser().Parse(name, src)
}

// Parse reads a stateDiagram (bare or inside a markdown ```mermaid fence).
// Every failure is a *domain.ParseError; parsing stops at the first one.
func (p *Parser) Parse(name domain.WorkflowName, src []byte) (*domain.WorkflowDefinition, error) {
	b := newBuilder(name)

	headerSeen := false
	inNote := false
	for _, l := range extractDiagram(src) {
		stmt := strings.TrimSpace(l.text)

		if inNote {
			if strings.EqualFold(stmt, "end note") {
				inNote = false
			}
			continue
		}
		if stmt == "" || strings.HasPrefix(stmt, "%%") {
			continue
		}
		if !headerSeen {
			if stmt != "stateDiagram" && stmt != "stateDiagram-v2" {
				return nil, parseErr(l.num, "expected stateDiagram or stateDiagram-v2 header, got %q", stmt)
			}
			headerSeen = true
			continue
		}

		switch {
		case strings.HasPrefix(stmt, "direction "),
			strings.HasPrefix(stmt, "classDef "),
			strings.HasPrefix(stmt, "class "):
			continue
		case strings.HasPrefix(stmt, "note "):
			if !strings.Contains(stmt, ":") {
				inNote = true
			}
			continue
		}

		if err := b.statement(l.num, stmt); err != nil {
			return nil, err
		}
	}

	if !headerSeen {
		return nil, parseErr(0, "missing stateDiagram header")
	}
	if inNote {
		return nil, parseErr(0, "unterminated note block")
	}
	return b.build()
}

func parseErr(line int, format string, args ...any) *domain.ParseError {
	return &domain.ParseError{Line: line, Msg: fmt.Sprintf(format, args...)}
}

type declaredState struct {
	state   domain.State
	hasText bool
}

type stateRef struct {
	id   domain.StateID
	line int
}

type builder struct {
	name        domain.WorkflowName
	order       []domain.StateID
	states      map[domain.StateID]*declaredState
	transitions []domain.Transition
	refs        []stateRef
	starts      []stateRef
	ends        map[domain.StateID]int
}

func newBuilder(name domain.WorkflowName) *builder {
	return &builder{
		name:   name,
		states: make(map[domain.StateID]*declaredState),
		ends:   make(map[domain.StateID]int),
	}
}

func (b *builder) statement(line int, stmt string) error {
	if stmt == "state" || strings.HasPrefix(stmt, "state ") {
		return b.declaration(line, stmt)
	}
	// Descriptions come before edges: action text may itself contain "-->".
	if m := reDescription.FindStringSubmatch(stmt); m != nil {
		return b.description(line, domain.StateID(m[1]), strings.TrimSpace(m[2]))
	}
	switch {
	case strings.Contains(stmt, "-->"):
		return b.edge(line, stmt)
	case stmt == "--":
		return parseErr(line, "concurrent regions are not supported")
	}
	return parseErr(line, "unsupported statement %q", stmt)
}

func (b *builder) declaration(line int, stmt string) error {
	if strings.HasSuffix(stmt, "{") {
		return parseErr(line, "composite states are not supported")
	}

	var id, desc, stereo string
	if m := reStateAs.FindStringSubmatch(stmt); m != nil {
		desc, id, stereo = m[1], m[2], m[3]
	} else if m := reStatePlain.FindStringSubmatch(stmt); m != nil {
		id, stereo = m[1], m[2]
	} else {
		return parseErr(line, "malformed state declaration %q", stmt)
	}

	kind := domain.StateNormal
	switch stereo {
	case "":
	case stereoCompensate:
		kind = domain.StateCompensation
	default:
		return parseErr(line, "unsupported state type %s", stereo)
	}

	sid := domain.StateID(id)
	if _, exists := b.states[sid]; exists {
		return parseErr(line, "duplicate declaration of state %q", id)
	}
	b.declare(sid, kind)
	b.states[sid].state.Description = desc
	return nil
}

func (b *builder) declare(id domain.StateID, kind domain.StateKind) {
	b.order = append(b.order, id)
	b.states[id] = &declaredState{state: domain.State{ID: id, Kind: kind}}
}

func (b *builder) description(line int, id domain.StateID, text string) error {
	ds, exists := b.states[id]
	if !exists {
		b.declare(id, domain.StateNormal)
		ds = b.states[id]
	}
	if text == "" {
		return nil
	}
	if ds.hasText {
		return parseErr(line, "state %q already has a description line", id)
	}
	ds.hasText = true

	action, err := ParseAction(text)
	if err != nil {
		return parseErr(line, "state %q: %v", id, err)
	}
	if action != nil {
		ds.state.Action = action
		return nil
	}
	if ds.state.Description != "" {
		return parseErr(line, "state %q already has a description", id)
	}
	ds.state.Description = text
	return nil
}

func (b *builder) edge(line int, stmt string) error {
	left, right, _ := strings.Cut(stmt, "-->")
	if strings.Contains(right, "-->") {
		return parseErr(line, "chained transitions are not supported")
	}
	left = strings.TrimSpace(left)
	target, label, hasLabel := strings.Cut(right, ":")
	target = strings.TrimSpace(target)
	label = strings.TrimSpace(label)

	switch {
	case left == markerStartEnd && target == markerStartEnd:
		return parseErr(line, "a transition cannot go from [*] to [*]")
	case left == markerStartEnd:
		if hasLabel {
			return parseErr(line, "start marker cannot carry a label")
		}
		if !reID.MatchString(target) {
			return parseErr(line, "invalid state identifier %q", target)
		}
		ref := stateRef{id: domain.StateID(target), line: line}
		b.starts = append(b.starts, ref)
		b.refs = append(b.refs, ref)
		return nil
	case target == markerStartEnd:
		if hasLabel {
			return parseErr(line, "end marker cannot carry a label")
		}
		if !reID.MatchString(left) {
			return parseErr(line, "invalid state identifier %q", left)
		}
		id := domain.StateID(left)
		if _, seen := b.ends[id]; !seen {
			b.ends[id] = line
		}
		b.refs = append(b.refs, stateRef{id: id, line: line})
		return nil
	}

	for _, id := range []string{left, target} {
		if !reID.MatchString(id) {
			return parseErr(line, "invalid state identifier %q", id)
		}
	}

	t := domain.Transition{
		From:      domain.StateID(left),
		To:        domain.StateID(target),
		Condition: domain.Always(),
	}
	if hasLabel && label != "" {
		cond, action, err := parseLabel(label)
		if err != nil {
			return parseErr(line, "transition %s --> %s: %v", left, target, err)
		}
		t.Condition = cond
		t.Action = action
		t.Metadata = map[string]string{"label": label}
	}
	b.transitions = append(b.transitions, t)
	b.refs = append(b.refs, stateRef{id: t.From, line: line}, stateRef{id: t.To, line: line})
	return nil
}

// parseLabel splits "<condition> [/ <action>]". The separator is the first " / "
// whose right-hand side commits to an action verb, so division inside an
// expression is left alone.
func parseLabel(label string) (domain.TransitionCondition, *domain.ActionSpec, error) {
	if rest, ok := strings.CutPrefix(label, "/ "); ok {
		action, err := ParseAction(rest)
		if err != nil {
			return domain.TransitionCondition{}, nil, err
		}
		if action != nil {
			return domain.Always(), action, nil
		}
	}

	offset := 0
	for {
		i := strings.Index(label[offset:], " / ")
		if i < 0 {
			break
		}
		pos := offset + i
		action, err := ParseAction(label[pos+3:])
		if err != nil {
			return domain.TransitionCondition{}, nil, err
		}
		if action != nil {
			return ParseCondition(label[:pos]), action, nil
		}
		offset = pos + 3
	}
	return ParseCondition(label), nil, nil
}

// ParseCondition maps a condition word to its kind; anything else is a custom expression.
func ParseCondition(text string) domain.TransitionCondition {
	text = strings.TrimSpace(text)
	switch strings.ToLower(text) {
	case "", "always":
		return domain.Always()
	case "never":
		return domain.Never()
	case "on_success":
		return domain.OnSuccess()
	case "on_failure":
		return domain.OnFailure()
	}
	return domain.Custom(text)
}

func (b *builder) build() (*domain.WorkflowDefinition, error) {
	for _, ref := range b.refs {
		if _, ok := b.states[ref.id]; !ok {
			return nil, parseErr(ref.line, "reference to undeclared state %q", ref.id)
		}
	}

	switch len(b.starts) {
	case 0:
		return nil, parseErr(0, "missing start marker ([*] --> State)")
	case 1:
	default:
		return nil, parseErr(b.starts[1].line, "more than one start marker (first at line %d)", b.starts[0].line)
	}

	start := b.starts[0]
	ss := b.states[start.id]
	if ss.state.Kind == domain.StateCompensation {
		return nil, parseErr(start.line, "compensation state %q cannot be the start state", start.id)
	}
	if line, isEnd := b.ends[start.id]; isEnd {
		return nil, parseErr(line, "state %q is both start and end", start.id)
	}
	ss.state.Kind = domain.StateStart

	for _, id := range b.order {
		line, isEnd := b.ends[id]
		if !isEnd {
			continue
		}
		ds := b.states[id]
		if ds.state.Kind == domain.StateCompensation {
			return nil, parseErr(line, "compensation state %q cannot be an end state", id)
		}
		ds.state.Kind = domain.StateEnd
	}

	def := &domain.WorkflowDefinition{
		Name:         b.name,
		InitialState: start.id,
		States:       make([]domain.State, 0, len(b.order)),
		Transitions:  b.transitions,
	}
	for _, id := range b.order {
		def.States = append(def.States, b.states[id].state)
	}
	if def.Transitions == nil {
		def.Transitions = []domain.Transition{}
	}
	return def, nil
}
