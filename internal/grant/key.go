package grant

import (
	"path/filepath"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// KeyPrefix is the bucket namespace presigned uploads are written under.
const KeyPrefix = "assets"

// GenericContentType is granted to every file that is not a recognized image.
const GenericContentType = "multipart/form-data"

// imageContentTypes maps the image extensions that get an image/* grant.
var imageContentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
}

// ObjectKey derives a storage key for filename.
// Format: assets/<uuid>_<filename without whitespace>
// Example: "report final.docx" → assets/3f0c...-9a1e_reportfinal.docx
func ObjectKey(filename string) string {
	return KeyPrefix + "/" + uuid.NewString() + "_" + SanitizeFilename(filename)
}

// SanitizeFilename strips every whitespace rune from filename.
func SanitizeFilename(filename string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, filename)
}

// ContentType returns the content type a grant for filename is restricted to.
func ContentType(filename string) string {
	if ct, ok := imageContentTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}
	return GenericContentType
}

// IsImage reports whether filename is granted as an image.
func IsImage(filename string) bool {
	_, ok := imageContentTypes[strings.ToLower(filepath.Ext(filename))]
	return ok
}
