package server

import (
	"errors"
	"mime/multipart"
	"path"
	"strings"
)

const (
	attachmentPrefix       = "attachments"
	invalidFileTypeMessage = "Invalid file type. Only images (jpg, jpeg, png) and documents (doc, docx, pdf) are allowed."
)

var allowedAttachmentExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".doc":  true,
	".docx": true,
	".pdf":  true,
}

var (
	errInvalidFilename   = errors.New("invalid filename")
	errInvalidPathPrefix = errors.New("invalid pathPrefix")
)

func isAllowedAttachment(filename string) bool {
	return allowedAttachmentExtensions[strings.ToLower(path.Ext(filename))]
}

// attachmentKey builds attachments/<prefix>/<filename>. The result must stay
// under the attachments namespace.
func attachmentKey(prefix, filename string) (string, error) {
	name := path.Base(filename)
	if name == "." || name == "/" || name == ".." {
		return "", errInvalidFilename
	}

	key := path.Join(attachmentPrefix, prefix, name)
	if !strings.HasPrefix(key, attachmentPrefix+"/") {
		return "", errInvalidPathPrefix
	}
	return key, nil
}

func attachmentContentType(fh *multipart.FileHeader) string {
	if ct := fh.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
