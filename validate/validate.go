// Command validate checks the room profile JSON files in a config directory
// (../configs by default). It checks:
//   - JSON structure, rejecting unknown fields
//   - the limits enforced by the server (names, chat sizes, member cap)
//   - a finite spawn point
//   - that a default profile (hub.json) exists
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wricardo/dungeon-hub/game/room"
)

// defaultProfile is the file the server falls back to for unknown rooms.
const defaultProfile = "hub.json"

// ValidationResult captures the outcome of validating a single file.
// If Valid is true, Errors contains informational messages; otherwise it
// accumulates the validation errors that were found.
type ValidationResult struct {
	File   string
	Valid  bool
	Errors []string
}

// validateProfile loads and validates a single room profile, decoding it
// over the built-in defaults the same way the server does.
func validateProfile(filePath string) ValidationResult {
	result := ValidationResult{
		File:   filepath.Base(filePath),
		Valid:  true,
		Errors: []string{},
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Failed to read file: %v", err))
		return result
	}

	settings := room.DefaultSettings()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&settings); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Invalid JSON: %v", err))
		return result
	}

	if err := room.ValidateSettings(&settings); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	if settings.MaxMembers > 0 && settings.MaxMembers < 2 {
		result.Errors = append(result.Errors, "⚠ max_members of 1 leaves nobody to see")
	}

	result.Errors = append(result.Errors, fmt.Sprintf("✓ Name: %s", settings.Name))
	result.Errors = append(result.Errors, fmt.Sprintf("✓ Capacity: %s", capacity(settings.MaxMembers)))
	result.Errors = append(result.Errors, fmt.Sprintf("✓ Chat: %d lines kept, %d runes max", settings.ChatHistory, settings.MaxChatLength))
	result.Errors = append(result.Errors, fmt.Sprintf("✓ Spawn: (%g, %g)", settings.Spawn.X, settings.Spawn.Y))

	return result
}

func capacity(maxMembers int) string {
	if maxMembers == 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d members", maxMembers)
}

// validateDir validates every profile in dir and reports whether all of
// them passed. A directory without hub.json is reported as invalid.
func validateDir(dir string) ([]ValidationResult, bool, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, false, err
	}

	allValid := true
	hasDefault := false
	results := make([]ValidationResult, 0, len(files)+1)
	for _, file := range files {
		if filepath.Base(file) == defaultProfile {
			hasDefault = true
		}
		result := validateProfile(file)
		if !result.Valid {
			allValid = false
		}
		results = append(results, result)
	}

	if !hasDefault {
		allValid = false
		results = append(results, ValidationResult{
			File:   defaultProfile,
			Valid:  false,
			Errors: []string{"Missing default profile; unknown rooms will use built-in defaults"},
		})
	}

	return results, allValid, nil
}

// main validates the profiles in the directory given as the first argument,
// printing a concise report and exiting with non-zero status if any are
// invalid.
func main() {
	configDir := "../configs"
	if len(os.Args) > 1 {
		configDir = os.Args[1]
	}

	results, allValid, err := validateDir(configDir)
	if err != nil {
		fmt.Printf("Error finding config files: %v\n", err)
		os.Exit(1)
	}

	for _, result := range results {
		fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Println("✅ VALID")
			for _, info := range result.Errors {
				fmt.Println("  " + info)
			}
		} else {
			fmt.Println("❌ INVALID")
			for _, err := range result.Errors {
				if !strings.HasPrefix(err, "✓") {
					fmt.Println("  ❌ " + err)
				}
			}
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Println("✅ All room profiles are valid!")
	} else {
		fmt.Println("❌ Some room profiles have errors")
		os.Exit(1)
	}
}
