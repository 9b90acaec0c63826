package domain

import (
	"path"
	"strings"
)

// SanitizeRelativePath normalizes a client supplied relative path (folder
// uploads). It returns "" when the path is empty, or would escape its root.
func SanitizeRelativePath(raw string) string {
	p := strings.TrimSpace(strings.ReplaceAll(raw, "\\", "/"))
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return ""
	}
	p = path.Clean(p)
	if p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return ""
	}
	return p
}

// OutputNames derives the download filename and the storage filename of a
// job's result. Converted jobs take the target extension, compressed jobs
// keep the original one. A malformed target format adds no extension, so
// the storage name is always a plain file name.
func OutputNames(j *Job) (outputFilename, storageFilename string) {
	source := j.OriginalFilename
	if rel := SanitizeRelativePath(j.Params.RelativePath); rel != "" {
		source = rel
	}
	base := path.Base(strings.ReplaceAll(source, "\\", "/"))
	stem := strings.TrimSuffix(base, path.Ext(base))

	ext := Ext(j.OriginalFilename)
	if j.Action == ActionConvert {
		ext = ""
		if f, ok := NormalizeFormat(j.TargetFormat); ok {
			ext = "." + f
		}
	}
	return stem + ext, j.ID + ext
}

// ArchiveName is the entry name of a finished job inside a session archive.
// The folder structure of the upload is kept when one was provided.
func ArchiveName(j *Job) string {
	rel := SanitizeRelativePath(j.Params.RelativePath)
	if rel == "" {
		if j.OutputFilename != "" {
			return j.OutputFilename
		}
		return path.Base(j.OutputPath)
	}
	if j.Action == ActionConvert && !j.Params.IsCover {
		if f, ok := NormalizeFormat(j.TargetFormat); ok {
			return strings.TrimSuffix(rel, path.Ext(rel)) + "." + f
		}
	}
	return rel
}
