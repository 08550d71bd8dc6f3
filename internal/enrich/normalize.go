package enrich

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/mpetrov/ideaharvest/internal/ideas"
)

// apiResponse mirrors the remote resource envelope. Only the fields the
// normalizer consumes are declared.
type apiResponse struct {
	ResourceResponse struct {
		Data *apiData `json:"data"`
	} `json:"resource_response"`
}

type apiData struct {
	ID                      flexID            `json:"id"`
	Key                     string            `json:"key"`
	CanonicalTerm           *canonicalTerm    `json:"canonical_term"`
	SEOCanonicalDisplayName *string           `json:"seo_canonical_display_name"`
	FollowerCount           int64             `json:"follower_count"`
	InternalSearchCount     int64             `json:"internal_search_count"`
	SEOBreadcrumbs          []breadcrumb      `json:"seo_breadcrumbs"`
	SEORelatedInterests     []relatedInterest `json:"seo_related_interests"`
	IdeasKLPPivots          []klpPivot        `json:"ideas_klp_pivots"`
}

type canonicalTerm struct {
	ID flexID `json:"id"`
}

type breadcrumb struct {
	ID   flexID `json:"id"`
	Name string `json:"name"`
}

type relatedInterest struct {
	ID   flexID `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

type klpPivot struct {
	PivotFullName string `json:"pivot_full_name"`
	PivotURL      string `json:"pivot_url"`
}

// flexID accepts both JSON strings and numbers; the API is not consistent
// about which one an id is.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if string(trimmed) == "null" {
		*f = ""
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// normalize reconciles the heterogeneous response shape into an Info.
func normalize(d *apiData) *ideas.Info {
	info := &ideas.Info{
		ID:                  string(d.ID),
		Key:                 d.Key,
		Path:                breadcrumbPath(d.SEOBreadcrumbs),
		References:          mergeReferences(d.SEORelatedInterests, d.IdeasKLPPivots),
		FollowerCount:       d.FollowerCount,
		InternalSearchCount: d.InternalSearchCount,
	}
	if d.SEOCanonicalDisplayName != nil {
		info.DisplayName = *d.SEOCanonicalDisplayName
	}
	if d.CanonicalTerm != nil {
		info.CanonicalTermID = string(d.CanonicalTerm.ID)
	}
	return info
}

// breadcrumbPath joins all breadcrumbs but the last one: the final entry is
// the idea itself, the rest are its ancestors. Fewer than two breadcrumbs
// yields no path.
func breadcrumbPath(crumbs []breadcrumb) *ideas.Path {
	if len(crumbs) < 2 {
		return nil
	}
	ancestors := crumbs[:len(crumbs)-1]
	ids := make([]string, 0, len(ancestors))
	names := make([]string, 0, len(ancestors))
	for _, c := range ancestors {
		ids = append(ids, string(c.ID))
		names = append(names, c.Name)
	}
	return &ideas.Path{
		ID:   strings.Join(ids, "/"),
		Name: strings.Join(names, "/"),
	}
}

// mergeReferences builds one reference list from the two source lists,
// tagging each entry with its origin. Pivot ids live in the trailing path
// segment of the pivot URL; entries without one get an empty id.
func mergeReferences(interests []relatedInterest, pivots []klpPivot) []ideas.Reference {
	refs := make([]ideas.Reference, 0, len(interests)+len(pivots))
	for _, ri := range interests {
		refs = append(refs, ideas.Reference{
			ID:   string(ri.ID),
			Name: ri.Name,
			As:   ideas.RefKindInterest,
			URL:  ri.URL,
		})
	}
	for _, p := range pivots {
		var id string
		if m := trailingDigits.FindStringSubmatch(p.PivotURL); m != nil {
			id = m[1]
		}
		refs = append(refs, ideas.Reference{
			ID:   id,
			Name: p.PivotFullName,
			As:   ideas.RefKindPivot,
			URL:  p.PivotURL,
		})
	}
	return refs
}
