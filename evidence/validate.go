package evidence

import (
	"mime"
	"path/filepath"
	"strings"

	"disputedesk/db"
)

const defaultFileType = "application/octet-stream"

func (p *CreateParams) normalize() {
	p.FilePath = strings.TrimSpace(p.FilePath)
	p.FileName = cleanName(p.FileName)
	p.FileType = strings.TrimSpace(p.FileType)
}

func (p CreateParams) Validate() error {
	switch {
	case p.DisputeID <= 0:
		return db.Invalid("disputeId", "must be a positive id")
	case p.FileName == "":
		return db.Invalid("fileName", "is required")
	case p.FileType == "":
		return db.Invalid("fileType", "is required")
	case p.FileSize < 0:
		return db.Invalid("fileSize", "must not be negative")
	}
	return nil
}

func (p *UpdateParams) normalize() {
	if p.FilePath != nil {
		*p.FilePath = strings.TrimSpace(*p.FilePath)
	}
	if p.FileName != nil {
		*p.FileName = cleanName(*p.FileName)
	}
	if p.FileType != nil {
		*p.FileType = strings.TrimSpace(*p.FileType)
	}
}

func (p UpdateParams) Validate() error {
	if p.FilePath == nil && p.FileName == nil && p.FileType == nil && p.FileSize == nil {
		return db.Invalid("update", "has no fields")
	}
	if p.FileName != nil && *p.FileName == "" {
		return db.Invalid("fileName", "must not be empty")
	}
	if p.FileType != nil && *p.FileType == "" {
		return db.Invalid("fileType", "must not be empty")
	}
	if p.FileSize != nil && *p.FileSize < 0 {
		return db.Invalid("fileSize", "must not be negative")
	}
	return nil
}

// cleanName drops any directory part a client may have sent.
func cleanName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}
	base := filepath.Base(name)
	if base == "." || base == "/" {
		return ""
	}
	return base
}

// detectType falls back on the file extension when the client sent no type
// or only the generic binary type.
func detectType(fileName, declared string) string {
	if declared = strings.TrimSpace(declared); declared != "" && declared != defaultFileType {
		return declared
	}
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(fileName))); t != "" {
		return t
	}
	return defaultFileType
}
