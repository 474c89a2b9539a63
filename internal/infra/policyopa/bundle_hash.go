package policyopa

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	cryptoinfra "zkpad/internal/infra/crypto"
)

type bundleHashPayload struct {
	Files []bundleHashFile `json:"files"`
}

type bundleHashFile struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
}

// ComputeBundleHashFromPath hashes the normative files of a policy
// bundle so evaluations can be attributed to an exact bundle revision.
func ComputeBundleHashFromPath(bundlePath string) (string, error) {
	return ComputeBundleHashFromFS(os.DirFS(bundlePath), ".")
}

func ComputeBundleHashFromFS(fsys fs.FS, root string) (string, error) {
	var files []bundleHashFile
	err := fs.WalkDir(fsys, root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == "." || d.IsDir() {
			return nil
		}
		if !isNormativeFile(path) {
			return nil
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		files = append(files, bundleHashFile{
			Path:   filepath.ToSlash(path),
			SHA256: cryptoinfra.SHA256Hex(data),
		})
		return nil
	})
	if err != nil {
		return "", err
	}
	// WalkDir yields lexical order, so the payload is already stable.
	canonical, err := cryptoinfra.CanonicalizeAny(bundleHashPayload{Files: files})
	if err != nil {
		return "", err
	}
	return cryptoinfra.SHA256Hex(canonical), nil
}

func isNormativeFile(path string) bool {
	switch {
	case strings.HasSuffix(path, ".rego"):
		return !strings.HasSuffix(path, "_test.rego")
	case strings.HasSuffix(path, ".json"):
		return true
	}
	return false
}
