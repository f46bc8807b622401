package migrations

import (
	_ "embed"
	"fmt"

	"github.com/BurntSushi/toml"
)

//go:embed manifest.toml
var manifestAsset []byte

// stepManifest is one declared version transition's metadata: the actual
// DDL stays in Go (each step still needs column-existence checks a flat SQL
// list can't express), but the ordered list of versions, their human
// descriptions, and the critical tables row-counted by §4.12's verify step
// are data, not code.
type stepManifest struct {
	Version     int    `toml:"version"`
	Description string `toml:"description"`
}

type manifest struct {
	LatestVersion  int            `toml:"latest_version"`
	CriticalTables []string       `toml:"critical_tables"`
	Steps          []stepManifest `toml:"step"`
}

// loadManifest parses the embedded TOML step manifest once at package init.
func loadManifest() *manifest {
	var m manifest
	if _, err := toml.Decode(string(manifestAsset), &m); err != nil {
		panic(fmt.Sprintf("migrations: parse manifest.toml: %v", err))
	}
	if m.LatestVersion != LatestVersion {
		panic(fmt.Sprintf("migrations: manifest.toml latest_version=%d disagrees with LatestVersion=%d",
			m.LatestVersion, LatestVersion))
	}
	return &m
}

var loadedManifest = loadManifest()

// stepDescription returns the manifest's description for the step that
// arrives at version, falling back to a generic description if the
// manifest doesn't name it.
func stepDescription(version int) string {
	for _, s := range loadedManifest.Steps {
		if s.Version == version {
			return s.Description
		}
	}
	return fmt.Sprintf("migrated to version %d", version)
}
