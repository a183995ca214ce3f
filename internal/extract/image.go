package extract

import (
	"net/url"
	"path"
	"strings"
)

// base64 payload prefixes of common image formats.
var imageSignatures = []struct {
	prefix string
	mime   string
}{
	{"/9j/", "image/jpeg"},
	{"iVBORw0KGgo", "image/png"},
	{"R0lGOD", "image/gif"},
	{"UklGR", "image/webp"},
	{"PHN2Zy", "image/svg+xml"},
	{"PD94bWwg", "image/svg+xml"},
	{"Qk", "image/bmp"},
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".svg": true, ".bmp": true,
}

// ImageURL normalizes whatever the POS returned for an image into something
// a browser can load: an absolute URL or a data URI. Unusable input yields "".
func ImageURL(v any, baseURL string) string {
	s, ok := v.(string)
	if !ok {
		if m, isMap := v.(map[string]any); isMap {
			for _, field := range []string{"url", "imageUrl", "image", "data"} {
				if u := ImageURL(m[field], baseURL); u != "" {
					return u
				}
			}
		}
		return ""
	}

	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return ""
	case strings.HasPrefix(s, "data:"):
		return s
	case strings.HasPrefix(s, "http://"), strings.HasPrefix(s, "https://"):
		return s
	}

	// JPEG payloads start with "/", so sniff before treating s as a path.
	for _, sig := range imageSignatures {
		if strings.HasPrefix(s, sig.prefix) && isBase64(s) {
			return "data:" + sig.mime + ";base64," + s
		}
	}

	if strings.HasPrefix(s, "/") {
		return resolve(baseURL, s)
	}

	if !strings.ContainsAny(s, " \t\n") && imageExtensions[strings.ToLower(path.Ext(s))] {
		return resolve(baseURL, "/"+s)
	}
	return ""
}

// resolve joins a server-relative reference onto the origin of baseURL.
func resolve(baseURL, ref string) string {
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return base.ResolveReference(r).String()
}

func isBase64(s string) bool {
	for _, c := range s {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '+', c == '/', c == '=', c == '\n', c == '\r':
		default:
			return false
		}
	}
	return true
}
