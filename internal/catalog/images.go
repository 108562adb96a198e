package catalog

import (
	"fmt"
	"net/url"
	"strings"
)

// ImageURLs expands the primary image link into the ordered list of image
// URLs for an item. Supplemental images share the primary's directory and
// base filename with a numeric suffix: photo.jpg, photo_1.jpg, photo_2.jpg.
// flags[i] reports whether supplemental image i+1 exists.
func ImageURLs(primary string, flags [MaxSupplementalImages]bool) []string {
	primary = strings.TrimSpace(primary)
	if primary == "" {
		return nil
	}

	urls := []string{primary}

	slash := strings.LastIndex(primary, "/")
	dir, file := primary[:slash+1], primary[slash+1:]
	base, ext := file, ""
	if dot := strings.LastIndex(file, "."); dot >= 0 {
		base, ext = file[:dot], file[dot:]
	}

	for i, ok := range flags {
		if ok {
			urls = append(urls, fmt.Sprintf("%s%s_%d%s", dir, base, i+1, ext))
		}
	}
	return urls
}

// HighResURL points a shop image URL at its large rendition.
func HighResURL(u string) string {
	return strings.Replace(u, "/normal/", "/gross/", 1)
}

// umlautReplacer transliterates German characters the shop strips from image file names.
var umlautReplacer = strings.NewReplacer(
	"ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss",
	"Ä", "Ae", "Ö", "Oe", "Ü", "Ue",
)

// NormalizeImageURL rewrites the filename segment of u the way the shop
// stores media: percent-decoded, umlauts transliterated, lower-cased.
func NormalizeImageURL(u string) string {
	slash := strings.LastIndex(u, "/")
	file := u[slash+1:]
	if decoded, err := url.PathUnescape(file); err == nil {
		file = decoded
	}
	return u[:slash+1] + strings.ToLower(umlautReplacer.Replace(file))
}
