package business

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/goccy/go-yaml"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/openid-provider/internal/config"
	"github.com/openkcm/openid-provider/internal/subject"
	subjectsql "github.com/openkcm/openid-provider/internal/subject/sql"
)

var ErrInvalidSubjectsFile = errors.New("invalid subjects file")

// ImportSubjectsMain creates or replaces the attributes of every subject
// listed in the YAML file at path.
func ImportSubjectsMain(ctx context.Context, cfg *config.Config, path string) error {
	subjects, err := readSubjectsFile(path)
	if err != nil {
		return err
	}

	db, err := newDBPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	repo := subjectsql.NewRepository(db)
	for _, id := range slices.Sorted(maps.Keys(subjects)) {
		if err := repo.Upsert(ctx, id, subjects[id]); err != nil {
			return fmt.Errorf("importing subject %q: %w", id, err)
		}
	}

	slogctx.Info(ctx, "Imported subjects", "count", len(subjects), "file", path)

	return nil
}

// readSubjectsFile parses a mapping of subject identifiers to their
// attributes.
func readSubjectsFile(path string) (map[string]subject.Attributes, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading subjects file: %w", err)
	}

	var subjects map[string]subject.Attributes
	if err := yaml.Unmarshal(data, &subjects); err != nil {
		return nil, errors.Join(ErrInvalidSubjectsFile, err)
	}

	for id, attrs := range subjects {
		if id == "" {
			return nil, fmt.Errorf("%w: empty subject identifier", ErrInvalidSubjectsFile)
		}
		if attrs == nil {
			subjects[id] = subject.Attributes{}
		}
	}

	return subjects, nil
}
