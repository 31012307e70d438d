package transfer

import (
	"fmt"
	"strings"

	"github.com/3leaps/bucketnav/pkg/keyspace"
)

// ValidateNewName trims a user-supplied file name and rejects empty or
// unchanged names.
func ValidateNewName(current, input string) (string, error) {
	name := strings.TrimSpace(input)
	if name == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if name == current {
		return "", ErrUnchanged
	}
	return name, nil
}

// ValidateNewFolderName is ValidateNewName for folders: trailing slashes
// are dropped before comparing.
func ValidateNewFolderName(current, input string) (string, error) {
	name := strings.TrimRight(strings.TrimSpace(input), keyspace.Delimiter)
	return ValidateNewName(strings.TrimRight(current, keyspace.Delimiter), name)
}

// RenameTarget returns the key a file is renamed to: same parent, new name.
func RenameTarget(key, newName string) string {
	return keyspace.Join(keyspace.Parent(key), newName)
}

// RenamePrefixTarget returns the prefix a folder is renamed to.
func RenamePrefixTarget(prefix, newName string) string {
	return keyspace.NormalizePrefix(keyspace.Join(keyspace.Parent(prefix), newName))
}
