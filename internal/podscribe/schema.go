// Package podscribe turns Podscribe-style ad-network CSV exports into the
// monthly, publisher, regional and publisher-shows performance report.
package podscribe

import "strings"

// Role is a semantic column role in a vendor export.
type Role string

const (
	RoleDate        Role = "date"
	RoleImpressions Role = "impressions"
	RoleVisitors    Role = "visitors"
	RolePublisher   Role = "publisher"
	RoleSpend       Role = "spend"
	RoleGeo         Role = "geo"
	RoleShow        Role = "show"
	RoleCampaign    Role = "campaign"
)

// Unresolved marks a role with no matching header.
const Unresolved = -1

// roleKeywords is evaluated in order; a header claimed by an earlier role
// is not available to later ones.
var roleKeywords = []struct {
	role     Role
	keywords []string
}{
	{RoleDate, []string{"date", "day"}},
	{RoleImpressions, []string{"impression"}},
	{RoleVisitors, []string{"visitor", "unique"}},
	{RolePublisher, []string{"publisher", "show", "podcast"}},
	{RoleSpend, []string{"spend", "cost"}},
	{RoleGeo, []string{"geo", "region", "country"}},
	{RoleShow, []string{"show", "episode"}},
	{RoleCampaign, []string{"campaign"}},
}

// ColumnIndex maps each role to a zero-based column, or Unresolved.
type ColumnIndex struct {
	Date        int
	Impressions int
	Visitors    int
	Publisher   int
	Spend       int
	Geo         int
	Show        int
	Campaign    int
}

func (c *ColumnIndex) slot(r Role) *int {
	switch r {
	case RoleDate:
		return &c.Date
	case RoleImpressions:
		return &c.Impressions
	case RoleVisitors:
		return &c.Visitors
	case RolePublisher:
		return &c.Publisher
	case RoleSpend:
		return &c.Spend
	case RoleGeo:
		return &c.Geo
	case RoleShow:
		return &c.Show
	case RoleCampaign:
		return &c.Campaign
	}
	return nil
}

// Get returns the column for a role.
func (c ColumnIndex) Get(r Role) int {
	if p := c.slot(r); p != nil {
		return *p
	}
	return Unresolved
}

// MissingRoles lists the roles that matched no header, in resolution order.
func (c ColumnIndex) MissingRoles() []Role {
	var out []Role
	for _, rk := range roleKeywords {
		if c.Get(rk.role) == Unresolved {
			out = append(out, rk.role)
		}
	}
	return out
}

// ResolveColumns scans the header row once per role. Matching is a
// case-insensitive substring test; resolution never fails.
func ResolveColumns(header []string) ColumnIndex {
	idx := ColumnIndex{
		Date: Unresolved, Impressions: Unresolved, Visitors: Unresolved, Publisher: Unresolved,
		Spend: Unresolved, Geo: Unresolved, Show: Unresolved, Campaign: Unresolved,
	}

	lowered := make([]string, len(header))
	for i, h := range header {
		lowered[i] = strings.ToLower(strings.TrimSpace(h))
	}
	claimed := make([]bool, len(header))

	for _, rk := range roleKeywords {
		for i, h := range lowered {
			if claimed[i] || !containsAny(h, rk.keywords) {
				continue
			}
			*idx.slot(rk.role) = i
			claimed[i] = true
			break
		}
	}
	return idx
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
