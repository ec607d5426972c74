package models

import (
	"net/url"
	"strings"
)

const (
	AttachmentImage   = "image"
	AttachmentFile    = "file"
	AttachmentGif     = "gif"
	AttachmentSticker = "sticker"
)

type Attachment struct {
	Kind     string         `bson:"kind" json:"kind"`
	URL      string         `bson:"url" json:"url"`
	Metadata map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

func knownAttachmentKind(kind string) bool {
	switch kind {
	case AttachmentImage, AttachmentFile, AttachmentGif, AttachmentSticker:
		return true
	}
	return false
}

// SanitizeAttachments validates an incoming attachment list. Entries with an
// unknown kind or a missing url are dropped. A gif attachment must point at a
// trusted domain; an untrusted gif fails the whole request instead of being
// silently dropped.
func SanitizeAttachments(atts []Attachment, trustedGifDomains []string) ([]Attachment, error) {
	if len(atts) == 0 {
		return nil, nil
	}
	out := make([]Attachment, 0, len(atts))
	for _, a := range atts {
		if !knownAttachmentKind(a.Kind) || strings.TrimSpace(a.URL) == "" {
			continue
		}
		if a.Kind == AttachmentGif {
			if !trustedURL(a.URL, trustedGifDomains) {
				return nil, ErrInvalidArgument("gif attachment from untrusted domain: %s", a.URL)
			}
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func trustedURL(raw string, domains []string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range domains {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
