package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

const seedRoot = "seeds"

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildSeedKey returns seeds/{owner}/{yyyy}/{mm}/{dd}/{id}.sql for a seed
// created at createdAt (UTC).
func BuildSeedKey(ownerID string, createdAt time.Time, id string) (string, error) {
	if err := ValidatePathComponent(ownerID, "owner id"); err != nil {
		return "", err
	}
	if err := ValidatePathComponent(id, "seed id"); err != nil {
		return "", err
	}
	ts := createdAt.UTC()
	return path.Join(
		seedRoot,
		ownerID,
		fmt.Sprintf("%04d", ts.Year()),
		fmt.Sprintf("%02d", ts.Month()),
		fmt.Sprintf("%02d", ts.Day()),
		id+".sql",
	), nil
}

// SeedPrefix is the key prefix under which every seed of ownerID is stored.
func SeedPrefix(ownerID string) (string, error) {
	if err := ValidatePathComponent(ownerID, "owner id"); err != nil {
		return "", err
	}
	return path.Join(seedRoot, ownerID) + "/", nil
}

// ParseSeedKey extracts the owner and seed id from a key built by
// BuildSeedKey.
func ParseSeedKey(key string) (ownerID, id string, err error) {
	parts := strings.Split(strings.TrimPrefix(key, "/"), "/")
	if len(parts) != 6 || parts[0] != seedRoot || !strings.HasSuffix(parts[5], ".sql") {
		return "", "", fmt.Errorf("invalid seed key: %q", key)
	}
	ownerID = parts[1]
	id = strings.TrimSuffix(parts[5], ".sql")
	if err := ValidatePathComponent(ownerID, "owner id"); err != nil {
		return "", "", err
	}
	if err := ValidatePathComponent(id, "seed id"); err != nil {
		return "", "", err
	}
	return ownerID, id, nil
}

func ValidatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
