// Package permissions answers what a subject may do with a space. Rules are
// expr-lang expressions evaluated against facts taken from local state; the
// backend's row level security stays authoritative.
package permissions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"github.com/MarcoPoloResearchLab/storage-manager/internal/inventory"
)

const (
	// DefaultIsOwnerRule grants ownership to the space's owner only.
	DefaultIsOwnerRule = `is_owner`
	// DefaultCanEditRule lets owners and editors change a space's contents.
	DefaultCanEditRule = `is_owner || role in ["owner", "editor"]`
	// DefaultCanViewRule lets owners and any member read a space.
	DefaultCanViewRule = `is_owner || is_member`
)

var (
	// ErrMissingFacts indicates that the policy was built without a fact source.
	ErrMissingFacts = errors.New("permissions: fact source required")
	// ErrUnknownSpace indicates that the space is not present in local state.
	ErrUnknownSpace = errors.New("permissions: unknown space")
	// ErrInvalidRule indicates that a rule failed to compile.
	ErrInvalidRule = errors.New("permissions: invalid rule")
)

// FactSource exposes the local state a rule is evaluated against.
type FactSource interface {
	Space(spaceID string) (inventory.Space, bool)
	MembershipRole(subject, spaceID string) (string, bool)
}

// Capabilities lists what a subject may do with one space.
type Capabilities struct {
	SpaceID string `json:"spaceId"`
	IsOwner bool   `json:"isOwner"`
	CanEdit bool   `json:"canEdit"`
	CanView bool   `json:"canView"`
	Role    string `json:"role,omitempty"`
}

// Policy resolves capabilities for a subject.
type Policy interface {
	Capabilities(ctx context.Context, subject, spaceID string) (Capabilities, error)
}

// Rules holds the expressions a RulePolicy evaluates. Blank rules fall back to defaults.
type Rules struct {
	IsOwner string
	CanEdit string
	CanView string
}

// RulePolicyConfig configures a RulePolicy.
type RulePolicyConfig struct {
	Facts FactSource
	Rules Rules
}

// RulePolicy evaluates compiled expr-lang programs.
type RulePolicy struct {
	facts   FactSource
	isOwner *exprvm.Program
	canEdit *exprvm.Program
	canView *exprvm.Program
}

// NewRulePolicy compiles the configured rules.
func NewRulePolicy(cfg RulePolicyConfig) (*RulePolicy, error) {
	if cfg.Facts == nil {
		return nil, ErrMissingFacts
	}
	rules := cfg.Rules.withDefaults()
	isOwner, err := compileRule("is_owner", rules.IsOwner)
	if err != nil {
		return nil, err
	}
	canEdit, err := compileRule("can_edit", rules.CanEdit)
	if err != nil {
		return nil, err
	}
	canView, err := compileRule("can_view", rules.CanView)
	if err != nil {
		return nil, err
	}
	return &RulePolicy{facts: cfg.Facts, isOwner: isOwner, canEdit: canEdit, canView: canView}, nil
}

// Capabilities evaluates every rule for subject against spaceID.
func (p *RulePolicy) Capabilities(ctx context.Context, subject, spaceID string) (Capabilities, error) {
	if err := ctx.Err(); err != nil {
		return Capabilities{}, err
	}
	space, ok := p.facts.Space(spaceID)
	if !ok {
		return Capabilities{}, ErrUnknownSpace
	}
	env := p.environment(subject, space)

	isOwner, err := run(p.isOwner, env)
	if err != nil {
		return Capabilities{}, err
	}
	canEdit, err := run(p.canEdit, env)
	if err != nil {
		return Capabilities{}, err
	}
	canView, err := run(p.canView, env)
	if err != nil {
		return Capabilities{}, err
	}
	role, _ := env["role"].(string)
	return Capabilities{
		SpaceID: spaceID,
		IsOwner: isOwner,
		CanEdit: canEdit,
		CanView: canView,
		Role:    role,
	}, nil
}

func (p *RulePolicy) environment(subject string, space inventory.Space) map[string]any {
	owner := subject != "" && space.OwnerID == subject
	role, member := p.facts.MembershipRole(subject, space.ID)
	if owner {
		role = inventory.RoleOwner
	}
	return map[string]any{
		"subject":   subject,
		"space_id":  space.ID,
		"owner_id":  space.OwnerID,
		"is_owner":  owner,
		"is_member": member,
		"role":      role,
	}
}

func (r Rules) withDefaults() Rules {
	if strings.TrimSpace(r.IsOwner) == "" {
		r.IsOwner = DefaultIsOwnerRule
	}
	if strings.TrimSpace(r.CanEdit) == "" {
		r.CanEdit = DefaultCanEditRule
	}
	if strings.TrimSpace(r.CanView) == "" {
		r.CanView = DefaultCanViewRule
	}
	return r
}

func compileRule(name, expression string) (*exprvm.Program, error) {
	program, err := exprlang.Compile(expression,
		exprlang.Env(factTypes()),
		exprlang.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRule, name, err)
	}
	return program, nil
}

func factTypes() map[string]any {
	return map[string]any{
		"subject":   "",
		"space_id":  "",
		"owner_id":  "",
		"is_owner":  false,
		"is_member": false,
		"role":      "",
	}
}

func run(program *exprvm.Program, env map[string]any) (bool, error) {
	result, err := exprlang.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("permissions: evaluate: %w", err)
	}
	allowed, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("permissions: rule returned %T", result)
	}
	return allowed, nil
}
