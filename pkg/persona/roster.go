package persona

import (
	"strings"
)

// Roster is the ordered, validated set of personas taking part in a
// consultation. The order is the base speaking order.
type Roster struct {
	profiles []Profile
	index    map[string]int
	names    map[string]string
}

func NewRoster(profiles []Profile) (*Roster, error) {
	if err := Validate(profiles); err != nil {
		return nil, err
	}
	r := &Roster{
		profiles: append([]Profile(nil), profiles...),
		index:    make(map[string]int, len(profiles)),
		names:    make(map[string]string),
	}
	for i, p := range r.profiles {
		r.index[p.ID] = i
		for _, n := range p.MentionNames() {
			r.names[strings.ToLower(n)] = p.ID
		}
	}
	return r, nil
}

func (r *Roster) Profiles() []Profile {
	return append([]Profile(nil), r.profiles...)
}

func (r *Roster) IDs() []string {
	ids := make([]string, len(r.profiles))
	for i, p := range r.profiles {
		ids[i] = p.ID
	}
	return ids
}

func (r *Roster) Get(id string) (Profile, bool) {
	i, ok := r.index[id]
	if !ok {
		return Profile{}, false
	}
	return r.profiles[i], true
}

func (r *Roster) Len() int {
	return len(r.profiles)
}

// Resolve maps a mention name (id, display name or alias, any case) to a
// persona id.
func (r *Roster) Resolve(name string) (string, bool) {
	id, ok := r.names[strings.ToLower(strings.TrimSpace(name))]
	return id, ok
}
