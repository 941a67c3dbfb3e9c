package enrich

import "strings"

// Profile is the chunking shape for a known content type.
type Profile struct {
	ContentType string
	TargetSize  int
	Overlap     int
	SectionType string
}

var profiles = map[string]Profile{
	"podcast": {ContentType: "podcast", TargetSize: 1500, Overlap: 200, SectionType: "conversation"},
	"book":    {ContentType: "book", TargetSize: 1200, Overlap: 150, SectionType: "chapter"},
	"avatar":  {ContentType: "avatar", TargetSize: 800, Overlap: 100, SectionType: "personality"},
	"social":  {ContentType: "social", TargetSize: 600, Overlap: 75, SectionType: "overview"},
	"prompt":  {ContentType: "prompt", TargetSize: 400, Overlap: 50, SectionType: "instruction"},
}

// LookupProfile finds the profile for a content type hint, ignoring case and surrounding space.
func LookupProfile(contentType string) (Profile, bool) {
	p, ok := profiles[strings.ToLower(strings.TrimSpace(contentType))]
	return p, ok
}
