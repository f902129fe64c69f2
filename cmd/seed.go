package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"petshop/core"
	"petshop/service"
)

// maxSeedFileSize guards against loading huge files into memory
const maxSeedFileSize = 10 * 1024 * 1024

// petSeedSchema describes a seed file: an array of pet documents.
const petSeedSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["name", "category", "available", "gender", "birthday"],
    "properties": {
      "_id":       {"type": "string"},
      "name":      {"type": "string", "minLength": 1, "maxLength": 63},
      "category":  {"type": ["string", "null"], "maxLength": 63},
      "available": {"type": "boolean"},
      "gender":    {"type": "string", "enum": ["MALE", "FEMALE", "UNKNOWN"]},
      "birthday":  {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"}
    }
  }
}`

// SeedResult summarizes a db seed run
type SeedResult struct {
	File    string   `json:"file"`
	Created int      `json:"created"`
	IDs     []string `json:"ids"`
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>",
		Short: "Load pets from a JSON or YAML file",
		Long: `Load pets from a JSON or YAML file holding an array of pet documents.
The whole file is validated before any pet is created.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := LoadSeedFile(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), defaultTimeout)
			defer cancel()

			backend, sugar, cleanup, err := initBackend()
			if err != nil {
				return err
			}
			defer cleanup()

			store, err := backend.Ensure(ctx)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			svc := service.NewPetService(store, sugar)

			result := SeedResult{File: args[0], IDs: []string{}}
			err = withSpinner(cmd.ErrOrStderr(), fmt.Sprintf("Creating %d pets...", len(docs)), func() error {
				for i, doc := range docs {
					pet := &core.Pet{}
					if err := pet.Deserialize(doc); err != nil {
						return fmt.Errorf("pet %d: %w", i, err)
					}
					if err := svc.Create(ctx, pet); err != nil {
						return fmt.Errorf("pet %d (%s): %w", i, pet.Name, err)
					}
					result.Created++
					result.IDs = append(result.IDs, pet.ID)
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("seeding stopped after %d pets: %w", result.Created, err)
			}

			if outputJSON {
				return outputAsJSON(cmd.OutOrStdout(), result)
			}
			if !quiet {
				successColor.Fprintf(cmd.OutOrStdout(), "✓ Created %d pets from %s\n", result.Created, args[0])
			}
			return nil
		},
	}
}

// LoadSeedFile reads, parses and validates a seed file. YAML is used for .yaml and .yml
// files, JSON otherwise.
func LoadSeedFile(filename string) ([]map[string]interface{}, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxSeedFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	if len(data) > maxSeedFileSize {
		return nil, fmt.Errorf("seed file exceeds %d bytes", maxSeedFileSize)
	}

	var parsed interface{}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &parsed)
	default:
		err = json.Unmarshal(data, &parsed)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	// Validate the JSON form so YAML and JSON files obey the same schema
	normalized, err := json.Marshal(normalizeSeed(parsed))
	if err != nil {
		return nil, fmt.Errorf("failed to normalize seed file: %w", err)
	}
	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(petSeedSchema), gojsonschema.NewBytesLoader(normalized))
	if err != nil {
		return nil, fmt.Errorf("failed to validate seed file: %w", err)
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, fmt.Errorf("seed file validation failed: %s", strings.Join(problems, "; "))
	}

	var docs []map[string]interface{}
	if err := json.Unmarshal(normalized, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode seed pets: %w", err)
	}
	return docs, nil
}

// normalizeSeed turns YAML timestamps into ISO dates so they validate as strings
func normalizeSeed(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		for k, item := range val {
			val[k] = normalizeSeed(item)
		}
		return val
	case []interface{}:
		for i, item := range val {
			val[i] = normalizeSeed(item)
		}
		return val
	case time.Time:
		return val.Format(core.DateLayout)
	default:
		return v
	}
}
