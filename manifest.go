package objgraph

import (
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

// RenameManifest is the TOML form of a rename table, so that products can
// ship class renames as data:
//
//	[[rename]]
//	app = "5c6b3a5e-1f0e-4c0e-9a55-6f7e0d8d9b11"
//	app_index = 0
//	from = "LineCurve"
//	to = "Segment"
//	since = 10
//	until = 20
//
// Names are hashed the same way as registered class names. A rename into a
// class of another application sets to_app.
type RenameManifest struct {
	Renames []RenameManifestEntry `toml:"rename"`
}

type RenameManifestEntry struct {
	App      string `toml:"app"`
	ToApp    string `toml:"to_app"`
	AppIndex int    `toml:"app_index"`
	From     string `toml:"from"`
	To       string `toml:"to"`
	Since    uint32 `toml:"since"`
	Until    uint32 `toml:"until"`
}

// LoadRenames parses a TOML rename manifest.
func LoadRenames(r io.Reader) ([]Rename, error) {
	var m RenameManifest
	if _, err := toml.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("rename manifest: %w", err)
	}
	result := make([]Rename, 0, len(m.Renames))
	for i, e := range m.Renames {
		if e.From == "" || e.To == "" {
			return nil, fmt.Errorf("rename manifest: entry %d: from and to are required", i)
		}
		app, err := parseAppUUID(e.App)
		if err != nil {
			return nil, fmt.Errorf("rename manifest: entry %d: app: %w", i, err)
		}
		toApp := app
		if e.ToApp != "" {
			toApp, err = parseAppUUID(e.ToApp)
			if err != nil {
				return nil, fmt.Errorf("rename manifest: entry %d: to_app: %w", i, err)
			}
		}
		if e.Until != 0 && e.Until <= e.Since {
			return nil, fmt.Errorf("rename manifest: entry %d: empty version range [%d, %d)", i, e.Since, e.Until)
		}
		until := e.Until
		if until == 0 {
			until = ^uint32(0)
		}
		result = append(result, Rename{
			Old:  IdentityOf(e.From, app),
			New:  IdentityOf(e.To, toApp),
			App:  e.AppIndex,
			Low:  e.Since,
			High: until,
		})
	}
	return result, nil
}

// AddRenames loads a manifest into the registry's rename table.
func (reg *Registry) AddRenames(r io.Reader) error {
	renames, err := LoadRenames(r)
	if err != nil {
		return err
	}
	for _, rn := range renames {
		reg.renames.Add(rn)
	}
	return nil
}

func parseAppUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(s)
}
