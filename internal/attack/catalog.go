// Package attack reads MITRE ATT&CK STIX bundles into the technique and
// mitigation catalogs the game is played over.
package attack

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/freeeve/secgame/api/pkg/game"
)

var (
	ErrInvalidBundle     = errors.New("invalid STIX bundle")
	ErrUnknownDomain     = errors.New("unknown ATT&CK domain")
	ErrUnknownTactic     = errors.New("unknown tactic")
	ErrUnknownMitigation = errors.New("unknown mitigation")
)

// Domain is an ATT&CK matrix, named the way MITRE names its bundles.
type Domain string

const (
	Enterprise Domain = "enterprise-attack"
	Mobile     Domain = "mobile-attack"
	ICS        Domain = "ics-attack"
)

// ParseDomain accepts a bundle name or its short form (enterprise, mobile, ics).
func ParseDomain(s string) (Domain, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "enterprise-attack", "enterprise", "":
		return Enterprise, nil
	case "mobile-attack", "mobile":
		return Mobile, nil
	case "ics-attack", "ics":
		return ICS, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDomain, s)
}

// KillChain is the kill_chain_name techniques of this domain are filed under.
func (d Domain) KillChain() string {
	switch d {
	case Mobile:
		return "mitre-mobile-attack"
	case ICS:
		return "mitre-ics-attack"
	default:
		return "mitre-attack"
	}
}

// Phase is one kill-chain phase reference of a technique.
type Phase struct {
	KillChain string `json:"kill_chain_name"`
	Name      string `json:"phase_name"`
}

// Object is a live (not revoked, not deprecated) catalog entry.
type Object struct {
	Type         string  `json:"type"`
	STIXID       string  `json:"stix_id"`
	ExternalID   string  `json:"external_id"`
	Name         string  `json:"name"`
	ShortName    string  `json:"short_name,omitempty"`
	Phases       []Phase `json:"phases,omitempty"`
	Subtechnique bool    `json:"subtechnique,omitempty"`
}

// Key is the id used inside the game: the ATT&CK external id when present.
func (o *Object) Key() string {
	if o.ExternalID != "" {
		return o.ExternalID
	}
	return o.STIXID
}

type bundle struct {
	Type    string            `json:"type"`
	Objects []json.RawMessage `json:"objects"`
}

type rawObject struct {
	Type         string  `json:"type"`
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Revoked      bool    `json:"revoked"`
	Deprecated   bool    `json:"x_mitre_deprecated"`
	ShortName    string  `json:"x_mitre_shortname"`
	Subtechnique bool    `json:"x_mitre_is_subtechnique"`
	Phases       []Phase `json:"kill_chain_phases"`
	ExternalRefs []struct {
		SourceName string `json:"source_name"`
		ExternalID string `json:"external_id"`
	} `json:"external_references"`
	RelationshipType string `json:"relationship_type"`
	SourceRef        string `json:"source_ref"`
	TargetRef        string `json:"target_ref"`
}

func (r *rawObject) externalID() string {
	for _, ref := range r.ExternalRefs {
		if strings.HasPrefix(ref.SourceName, "mitre-") && ref.ExternalID != "" {
			return ref.ExternalID
		}
	}
	return ""
}

// Catalog is an immutable index over one domain's bundle.
type Catalog struct {
	domain      Domain
	byRef       map[string]*Object // STIX id and external id
	tactics     map[string]*Object // short name
	techniques  []*Object
	mitigations []*Object
	edges       []game.Mitigates
}

// ParseBundle decodes a STIX 2.x bundle. Revoked and deprecated objects and
// any relationship touching them are dropped.
func ParseBundle(domain Domain, data []byte) (*Catalog, error) {
	var b bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}
	if b.Type != "bundle" {
		return nil, fmt.Errorf("%w: type %q", ErrInvalidBundle, b.Type)
	}

	c := &Catalog{
		domain:  domain,
		byRef:   make(map[string]*Object),
		tactics: make(map[string]*Object),
	}
	var rels []rawObject
	for i, data := range b.Objects {
		var raw rawObject
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: object %d: %v", ErrInvalidBundle, i, err)
		}
		if raw.Revoked || raw.Deprecated {
			continue
		}
		switch raw.Type {
		case "relationship":
			if raw.RelationshipType == "mitigates" {
				rels = append(rels, raw)
			}
			continue
		case "attack-pattern", "course-of-action", "x-mitre-tactic":
		default:
			continue
		}

		o := &Object{
			Type:         raw.Type,
			STIXID:       raw.ID,
			ExternalID:   raw.externalID(),
			Name:         raw.Name,
			ShortName:    raw.ShortName,
			Phases:       raw.Phases,
			Subtechnique: raw.Subtechnique,
		}
		c.byRef[o.STIXID] = o
		if o.ExternalID != "" {
			c.byRef[o.ExternalID] = o
		}
		switch o.Type {
		case "attack-pattern":
			c.techniques = append(c.techniques, o)
		case "course-of-action":
			c.mitigations = append(c.mitigations, o)
		case "x-mitre-tactic":
			if o.ShortName != "" {
				c.tactics[o.ShortName] = o
			}
		}
	}

	byKey := func(objs []*Object) {
		sort.Slice(objs, func(i, j int) bool { return objs[i].Key() < objs[j].Key() })
	}
	byKey(c.techniques)
	byKey(c.mitigations)

	seen := make(map[game.Mitigates]bool, len(rels))
	for _, r := range rels {
		src, ok := c.byRef[r.SourceRef]
		if !ok || src.Type != "course-of-action" {
			continue
		}
		dst, ok := c.byRef[r.TargetRef]
		if !ok || dst.Type != "attack-pattern" {
			continue
		}
		e := game.Mitigates{Measure: src.Key(), Technique: dst.Key()}
		if !seen[e] {
			seen[e] = true
			c.edges = append(c.edges, e)
		}
	}
	sort.Slice(c.edges, func(i, j int) bool {
		if c.edges[i].Measure != c.edges[j].Measure {
			return c.edges[i].Measure < c.edges[j].Measure
		}
		return c.edges[i].Technique < c.edges[j].Technique
	})
	return c, nil
}

func (c *Catalog) Domain() Domain { return c.domain }

// Tactics resolves each ref (STIX id, external id or short name) to a tactic.
func (c *Catalog) Tactics(refs []string) ([]*Object, error) {
	out := make([]*Object, 0, len(refs))
	for _, ref := range refs {
		t, ok := c.tactics[ref]
		if !ok {
			if o, found := c.byRef[ref]; found && o.Type == "x-mitre-tactic" {
				t, ok = o, true
			}
		}
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTactic, ref)
		}
		out = append(out, t)
	}
	return out, nil
}

// AllTactics returns every tactic ordered by external id.
func (c *Catalog) AllTactics() []*Object {
	out := make([]*Object, 0, len(c.tactics))
	for _, t := range c.tactics {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// TechniquesByTactics returns the top-level techniques filed under any of the
// given tactic short names in this domain's kill chain, ordered by key.
func (c *Catalog) TechniquesByTactics(shortNames []string) []*Object {
	want := make(map[string]bool, len(shortNames))
	for _, s := range shortNames {
		want[s] = true
	}
	chain := c.domain.KillChain()
	var out []*Object
	for _, t := range c.techniques {
		if t.Subtechnique {
			continue
		}
		for _, p := range t.Phases {
			if p.KillChain == chain && want[p.Name] {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// Technique resolves a technique by STIX or external id.
func (c *Catalog) Technique(ref string) (*Object, bool) {
	o, ok := c.byRef[ref]
	if !ok || o.Type != "attack-pattern" {
		return nil, false
	}
	return o, true
}

// Mitigation resolves a mitigation by STIX or external id.
func (c *Catalog) Mitigation(ref string) (*Object, error) {
	o, ok := c.byRef[ref]
	if !ok || o.Type != "course-of-action" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMitigation, ref)
	}
	return o, nil
}

// Mitigations returns every live mitigation ordered by key.
func (c *Catalog) Mitigations() []*Object { return c.mitigations }

// Mitigates returns the live "mitigates" edges keyed by external id.
func (c *Catalog) Mitigates() []game.Mitigates { return c.edges }

// Name returns the display name for a key, or the key itself.
func (c *Catalog) Name(ref string) string {
	if o, ok := c.byRef[ref]; ok {
		return o.Name
	}
	return ref
}
