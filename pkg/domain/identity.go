package domain

import "math"

// Anchor identifies the entity side of an identity match. When the engine
// exposes a stable external id it is carried in UniqueID and is
// authoritative; otherwise the secondary Fields must match exactly.
type Anchor struct {
	UniqueID string            `json:"unique_id,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// Descriptor identifies the tracked content within an entity. Amount is a
// snapshot used only for matching tolerance, never as an authoritative
// quantity.
type Descriptor struct {
	ContentType string            `json:"content_type"`
	Amount      float64           `json:"amount"`
	Fields      map[string]string `json:"fields,omitempty"`
}

// IdentityMatch pairs an entity-level anchor with a content-level
// descriptor. Both sides are required for a container to participate in
// reconciliation.
type IdentityMatch struct {
	Anchor     *Anchor     `json:"anchor,omitempty"`
	Descriptor *Descriptor `json:"descriptor,omitempty"`
}

// Complete reports whether both anchor and descriptor are present.
func (m IdentityMatch) Complete() bool {
	return m.Anchor != nil && m.Descriptor != nil
}

// CloneIdentityMatch returns a deep copy of the match structure.
func CloneIdentityMatch(m IdentityMatch) IdentityMatch {
	var cp IdentityMatch
	if m.Anchor != nil {
		a := Anchor{UniqueID: m.Anchor.UniqueID}
		if m.Anchor.Fields != nil {
			a.Fields = make(map[string]string, len(m.Anchor.Fields))
			for k, v := range m.Anchor.Fields {
				a.Fields[k] = v
			}
		}
		cp.Anchor = &a
	}
	if m.Descriptor != nil {
		d := Descriptor{ContentType: m.Descriptor.ContentType, Amount: m.Descriptor.Amount}
		if m.Descriptor.Fields != nil {
			d.Fields = make(map[string]string, len(m.Descriptor.Fields))
			for k, v := range m.Descriptor.Fields {
				d.Fields[k] = v
			}
		}
		cp.Descriptor = &d
	}
	return cp
}

// AmountTolerance returns the matching slack applied to the descriptor
// amount: 5% of the persisted amount, floored at 10 units, absorbing float
// drift, timing skew, and in-flight transfers.
func AmountTolerance(persistedAmount float64) float64 {
	return math.Max(0.05*math.Abs(persistedAmount), 10)
}

// IdentityMatches reports whether a persisted identity matches an incoming
// live one. A stable anchor id short-circuits every other anchor field;
// without one, every field present on the persisted anchor must equal the
// incoming value. Descriptor fields compare exactly except the amount,
// which uses AmountTolerance.
func IdentityMatches(persisted, incoming IdentityMatch) bool {
	if !persisted.Complete() || !incoming.Complete() {
		return false
	}
	if persisted.Anchor.UniqueID != "" {
		if persisted.Anchor.UniqueID != incoming.Anchor.UniqueID {
			return false
		}
	} else {
		for k, v := range persisted.Anchor.Fields {
			if incoming.Anchor.Fields[k] != v {
				return false
			}
		}
	}
	pd, in := persisted.Descriptor, incoming.Descriptor
	if pd.ContentType != in.ContentType {
		return false
	}
	for k, v := range pd.Fields {
		if in.Fields[k] != v {
			return false
		}
	}
	return math.Abs(pd.Amount-in.Amount) <= AmountTolerance(pd.Amount)
}
