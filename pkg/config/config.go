package config

import (
	"fmt"
	"os"

	"github.com/ghodss/yaml"
	goVersion "github.com/hashicorp/go-version"
	"github.com/spf13/afero"

	"github.com/sidkik/parasync/pkg/errors"
)

// invalidYAMLTemplate is shown when a config file can't be decoded. The yaml
// library's errors don't point at a line, so the parser's message is shown
// as is.
const invalidYAMLTemplate = "Failed to read the parasync config at %q.\n" +
	"Check that every field is spelled correctly and has the right type.\n\n" +
	"Parser error: %s"

// versioned is a config document with a `version` field.
type versioned interface {
	getVersion() string
}

type unsupportedVersionError struct {
	path, constraint, actual string
}

func (err unsupportedVersionError) Error() string {
	return err.FriendlyMessage()
}

func (err unsupportedVersionError) FriendlyMessage() string {
	return fmt.Sprintf("This version of parasync can't read %q: "+
		"its version is %q, and only %q is supported.",
		err.path, err.actual, err.constraint)
}

// satisfies returns whether `actual` is a version that meets `constraint`.
// Unparseable versions never do.
func satisfies(constraint, actual string) bool {
	c, err := goVersion.NewConstraint(constraint)
	if err != nil {
		return false
	}

	v, err := goVersion.NewVersion(actual)
	return err == nil && c.Check(v)
}

// readVersioned decodes the YAML at `path` into `out`. The version is
// checked before unknown fields are rejected, so that a file written by a
// newer release reports its version rather than its new fields.
func readVersioned(path string, out versioned, constraint string) error {
	contents, err := afero.ReadFile(fs, path)
	switch {
	case os.IsNotExist(err):
		return errors.FileNotFound{Path: path}
	case err != nil:
		return errors.WithContext(err, "read file")
	}

	if err := yaml.Unmarshal(contents, out); err != nil {
		return errors.NewFriendlyError(invalidYAMLTemplate, path, err)
	}

	if version := out.getVersion(); !satisfies(constraint, version) {
		return unsupportedVersionError{path: path, constraint: constraint, actual: version}
	}

	if err := yaml.UnmarshalStrict(contents, out, yaml.DisallowUnknownFields); err != nil {
		return errors.NewFriendlyError(invalidYAMLTemplate, path, err)
	}
	return nil
}
