package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/carevoice/accessd/pkg/policy"
	"github.com/carevoice/accessd/pkg/rbac"
)

// Seed describes catalog extensions, roles and security policies loaded at
// startup and hot-reloaded on file change.
type Seed struct {
	Permissions []SeedPermission `yaml:"permissions"`
	Roles       []SeedRole       `yaml:"roles"`
	Policies    []SeedPolicy     `yaml:"policies"`
}

// SeedPermission extends the permission catalog
type SeedPermission struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Scope       string `yaml:"scope"`
	Category    string `yaml:"category"`
}

// SeedRole declares a role definition
type SeedRole struct {
	ID          string           `yaml:"id"`
	Tenant      string           `yaml:"tenant"`
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Permissions []string         `yaml:"permissions"`
	Inherits    []string         `yaml:"inherits"`
	Constraints *SeedConstraints `yaml:"constraints"`
}

// SeedConstraints mirrors rbac.RoleConstraints in YAML-friendly form
type SeedConstraints struct {
	TimeWindows []SeedTimeWindow `yaml:"time_windows"`
	AllowedIPs  []string         `yaml:"allowed_ips"`
	Devices     []string         `yaml:"devices"`
	MaxSessions int              `yaml:"max_sessions"`
	MaxDuration string           `yaml:"max_duration"` // Go duration string, e.g. "4h"
	RequireMFA  bool             `yaml:"require_mfa"`
}

// SeedTimeWindow is one allowed time window
type SeedTimeWindow struct {
	Days     []int  `yaml:"days"` // 0=Sunday .. 6=Saturday
	Start    string `yaml:"start"`
	End      string `yaml:"end"`
	Timezone string `yaml:"timezone"`
}

// SeedPolicy declares a security policy
type SeedPolicy struct {
	ID     string           `yaml:"id"`
	Tenant string           `yaml:"tenant"`
	Name   string           `yaml:"name"`
	Mode   string           `yaml:"mode"`
	Rules  []SeedPolicyRule `yaml:"rules"`
}

// SeedPolicyRule is one prioritized rule
type SeedPolicyRule struct {
	ID        string         `yaml:"id"`
	Action    string         `yaml:"action"`
	Priority  int            `yaml:"priority"`
	Message   string         `yaml:"message"`
	Condition *SeedCondition `yaml:"condition"`
}

// SeedCondition mirrors policy.Condition in YAML form
type SeedCondition struct {
	Kind     string           `yaml:"kind"`
	Field    string           `yaml:"field"`
	Op       string           `yaml:"op"`
	Value    any              `yaml:"value"`
	Children []*SeedCondition `yaml:"children"`
}

// LoadSeed parses the seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parsing seed file %s: %w", path, err)
	}
	return &seed, nil
}

// CatalogPermissions converts the seed's catalog extensions.
func (s *Seed) CatalogPermissions() []rbac.Permission {
	out := make([]rbac.Permission, 0, len(s.Permissions))
	for _, p := range s.Permissions {
		scope := rbac.PermissionScope(p.Scope)
		if scope == "" {
			scope = rbac.ScopeTenant
		}
		out = append(out, rbac.Permission{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Scope:       scope,
			Category:    p.Category,
		})
	}
	return out
}

// RBACRoles converts the seed's role definitions.
func (s *Seed) RBACRoles() []rbac.Role {
	out := make([]rbac.Role, 0, len(s.Roles))
	for _, r := range s.Roles {
		role := rbac.Role{
			ID:          r.ID,
			TenantID:    r.Tenant,
			Name:        r.Name,
			Description: r.Description,
			Kind:        rbac.RoleKindCustom,
			Permissions: r.Permissions,
			Inherits:    r.Inherits,
		}
		if r.Constraints != nil {
			var maxDur time.Duration
			if r.Constraints.MaxDuration != "" {
				maxDur, _ = time.ParseDuration(r.Constraints.MaxDuration)
			}
			c := rbac.RoleConstraints{
				AllowedIPPatterns:     r.Constraints.AllowedIPs,
				AllowedDeviceIDs:      r.Constraints.Devices,
				MaxConcurrentSessions: r.Constraints.MaxSessions,
				MaxSessionDuration:    maxDur,
				RequireMFA:            r.Constraints.RequireMFA,
			}
			for _, w := range r.Constraints.TimeWindows {
				days := make([]time.Weekday, 0, len(w.Days))
				for _, d := range w.Days {
					days = append(days, time.Weekday(d))
				}
				c.TimeWindows = append(c.TimeWindows, rbac.TimeWindow{
					Days:     days,
					Start:    w.Start,
					End:      w.End,
					Timezone: w.Timezone,
				})
			}
			role.Constraints = &c
		}
		out = append(out, role)
	}
	return out
}

// SecurityPolicies converts the seed's policy definitions.
func (s *Seed) SecurityPolicies() []policy.Policy {
	out := make([]policy.Policy, 0, len(s.Policies))
	for _, p := range s.Policies {
		mode := policy.EnforcementMode(p.Mode)
		if mode == "" {
			mode = policy.ModeStrict
		}
		pol := policy.Policy{
			ID:       p.ID,
			TenantID: p.Tenant,
			Name:     p.Name,
			Mode:     mode,
			Active:   true,
		}
		for _, r := range p.Rules {
			pol.Rules = append(pol.Rules, policy.Rule{
				ID:        r.ID,
				Action:    policy.RuleAction(r.Action),
				Priority:  r.Priority,
				Message:   r.Message,
				Condition: r.Condition.convert(),
			})
		}
		out = append(out, pol)
	}
	return out
}

func (c *SeedCondition) convert() *policy.Condition {
	if c == nil {
		return nil
	}
	out := &policy.Condition{
		Kind:  policy.ConditionKind(c.Kind),
		Field: c.Field,
		Op:    policy.CmpOp(c.Op),
		Value: c.Value,
	}
	for _, child := range c.Children {
		out.Children = append(out.Children, child.convert())
	}
	return out
}

// WatchSeed watches the seed file and invokes onChange with each successfully
// reloaded seed. It returns a stop function. Parse failures are reported to
// onError and the previous seed stays in effect.
func WatchSeed(path string, onChange func(*Seed), onError func(error)) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	// Watch the directory: editors replace files on save, which drops the
	// watch when pointed at the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", path, err)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				seed, err := LoadSeed(path)
				if err != nil {
					if onError != nil {
						onError(err)
					}
					continue
				}
				onChange(seed)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if onError != nil {
					onError(err)
				}
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}
