// Package reconcile merges the local contact copy with the remote store and
// runs that merge as a serialized background cycle.
package reconcile

import (
	"strconv"
	"strings"
	"time"

	"crmoverlay/api/internal/contacts"
	"crmoverlay/api/internal/normalize"
	"crmoverlay/api/internal/store"
)

// Origin says which side a merged record's field values came from.
type Origin int

const (
	LocalOnly Origin = iota
	RemoteOnly
	LocalNewer
	RemoteNewer
	// InSync means both sides carry the same timestamps.
	InSync
)

func (o Origin) String() string {
	switch o {
	case LocalOnly:
		return "local-only"
	case RemoteOnly:
		return "remote-only"
	case LocalNewer:
		return "local-newer"
	case RemoteNewer:
		return "remote-newer"
	case InSync:
		return "in-sync"
	}
	return "unknown"
}

// Decision records how one identity key was resolved.
type Decision struct {
	Key    string
	Origin Origin
	ID     string
}

// LocalWon reports whether the local side must be written back to remote.
func (d Decision) LocalWon() bool {
	return d.Origin == LocalOnly || d.Origin == LocalNewer
}

// IdentityKey is the normalized phone, else the local id, else the
// lower-cased name. A contact with none of those is keyed on its remote id
// so it never collides with another.
func IdentityKey(c store.Contact) string {
	if phone := normalize.Phone(c.PhoneValue()); phone != nil {
		return "phone:" + *phone
	}
	if id := strings.TrimSpace(c.ID); id != "" {
		return "id:" + id
	}
	if name := strings.ToLower(strings.TrimSpace(c.Name)); name != "" {
		return "name:" + name
	}
	return "remote:" + c.RemoteID
}

// Reconcile is Merge without the decisions.
func Reconcile(local, remote []store.Contact) []store.Contact {
	merged, _ := Merge(local, remote)
	return merged
}

// Merge combines local and remote. For a key on both sides the newer record
// by UpdatedAt, then LastInteractionAt, then CreatedAt supplies the field
// values, with ties going to local. The local id and any remote id survive
// either way. Phones are stored normalized and the output is ordered by most
// recent interaction.
func Merge(local, remote []store.Contact) ([]store.Contact, []Decision) {
	type entry struct {
		contact store.Contact
		origin  Origin
	}
	byKey := make(map[string]*entry, len(local)+len(remote))
	// aliases maps every id, remote id and phone seen for an entry to its
	// key, so a record whose identity key changed still lands on it.
	aliases := make(map[string]string, 2*(len(local)+len(remote)))
	var order []string
	anonymous := 0

	alias := func(key string, c store.Contact) {
		for _, k := range aliasKeys(c) {
			if _, taken := aliases[k]; !taken {
				aliases[k] = key
			}
		}
	}
	resolve := func(key string, c store.Contact) string {
		if _, ok := byKey[key]; ok {
			return key
		}
		for _, k := range aliasKeys(c) {
			if target, ok := aliases[k]; ok {
				return target
			}
		}
		return key
	}

	seed := func(c store.Contact, origin Origin) {
		c = prepare(c)
		key := IdentityKey(c)
		if key == "remote:" {
			anonymous++
			key = "anon:" + strconv.Itoa(anonymous)
		}
		key = resolve(key, c)
		existing, ok := byKey[key]
		if !ok {
			byKey[key] = &entry{contact: c, origin: origin}
			order = append(order, key)
			alias(key, c)
			return
		}
		defer func() { alias(key, c); alias(key, existing.contact) }()
		if origin == RemoteOnly && (existing.origin == LocalOnly || existing.origin == LocalNewer) {
			winner, localWon := pick(existing.contact, c)
			switch {
			case localWon && !newer(existing.contact, c):
				existing.origin = InSync
			case localWon:
				existing.origin = LocalNewer
			default:
				existing.origin = RemoteNewer
			}
			existing.contact = winner
			return
		}
		// duplicates within one side collapse by the same recency rule
		winner, _ := pick(existing.contact, c)
		existing.contact = winner
	}

	for _, c := range local {
		seed(c, LocalOnly)
	}
	for _, c := range remote {
		seed(c, RemoteOnly)
	}

	merged := make([]store.Contact, 0, len(order))
	decisions := make([]Decision, 0, len(order))
	for _, key := range order {
		e := byKey[key]
		merged = append(merged, e.contact)
		decisions = append(decisions, Decision{Key: key, Origin: e.origin, ID: e.contact.ID})
	}
	contacts.SortByRecency(merged)
	return merged, decisions
}

// pick returns the merged record for a (local, remote) pair and whether the
// local side supplied the field values.
func pick(local, remote store.Contact) (store.Contact, bool) {
	localWins := !newer(remote, local)
	winner := remote
	if localWins {
		winner = local
	}
	merged := winner.Clone()
	merged.ID = local.ID
	if merged.ID == "" {
		merged.ID = remote.ID
	}
	merged.RemoteID = remote.RemoteID
	if merged.RemoteID == "" {
		merged.RemoteID = local.RemoteID
	}
	return merged, localWins
}

// aliasKeys lists the secondary identities of c: its local id, remote id and
// normalized phone.
func aliasKeys(c store.Contact) []string {
	var keys []string
	if id := strings.TrimSpace(c.ID); id != "" {
		keys = append(keys, "id:"+id)
	}
	if rid := strings.TrimSpace(c.RemoteID); rid != "" {
		keys = append(keys, "rid:"+rid)
	}
	if c.Phone != nil {
		keys = append(keys, "phone:"+*c.Phone)
	}
	return keys
}

// newer reports whether a is strictly newer than b.
func newer(a, b store.Contact) bool {
	for _, pair := range [][2]time.Time{
		{a.UpdatedAt, b.UpdatedAt},
		{a.LastInteractionAt, b.LastInteractionAt},
		{a.CreatedAt, b.CreatedAt},
	} {
		if !pair[0].Equal(pair[1]) {
			return pair[0].After(pair[1])
		}
	}
	return false
}

// prepare normalizes the phone, drops duplicate tags and truncates
// timestamps to the remote store's microsecond precision.
func prepare(c store.Contact) store.Contact {
	c = c.Clone()
	c.CreatedAt = c.CreatedAt.Truncate(time.Microsecond)
	c.UpdatedAt = c.UpdatedAt.Truncate(time.Microsecond)
	c.LastInteractionAt = c.LastInteractionAt.Truncate(time.Microsecond)
	c.Phone = normalize.Phone(c.PhoneValue())
	seen := make(map[string]struct{}, len(c.Tags))
	tags := make([]string, 0, len(c.Tags))
	for _, tag := range c.Tags {
		if _, dup := seen[tag]; dup || tag == "" {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	c.Tags = tags
	return c
}
