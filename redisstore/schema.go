package redisstore

import (
	"context"
	stderrors "errors"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/zoobzio/wavez"
	"github.com/zoobzio/wavez/config"
)

// FunctionProperties is the base schema of the function definition collection.
func FunctionProperties() map[string]wavez.Property {
	return map[string]wavez.Property{
		wavez.FunctionUUIDKey:      {DataType: config.TypeUUID, Description: "Identity of the function definition"},
		wavez.FunctionNameKey:      {DataType: config.TypeText, Description: "Name of the instrumented function"},
		wavez.ModuleNameKey:        {DataType: config.TypeText, Description: "Package path declaring the function"},
		wavez.DocstringKey:         {DataType: config.TypeText, Description: "Function documentation"},
		wavez.SourceCodeKey:        {DataType: config.TypeText, Description: "Function source"},
		wavez.SearchDescriptionKey: {DataType: config.TypeText, Description: "Description used for search"},
		wavez.SequenceNarrativeKey: {DataType: config.TypeText, Description: "What happens after this function"},
	}
}

// ExecutionProperties is the base schema of the span collection.
func ExecutionProperties() map[string]wavez.Property {
	return map[string]wavez.Property{
		wavez.TraceIDKey:      {DataType: config.TypeText, Description: "Identity of the whole workflow"},
		wavez.SpanIDKey:       {DataType: config.TypeText, Description: "Identity of this execution"},
		wavez.FunctionNameKey: {DataType: config.TypeText, Description: "Name of the executed function"},
		wavez.FunctionUUIDKey: {DataType: config.TypeUUID, Description: "Identity of the executed function definition"},
		wavez.TimestampKey:    {DataType: config.TypeDate, Description: "UTC start time"},
		wavez.DurationKey:     {DataType: config.TypeNumber, Description: "Execution time in milliseconds"},
		wavez.StatusKey:       {DataType: config.TypeText, Description: "SUCCESS or ERROR"},
		wavez.ErrorKey:        {DataType: config.TypeText, Description: "Error message and stack when status is ERROR"},
	}
}

// EnsureSchema creates the function and execution collections named by
// settings when they do not exist yet. A malformed custom property fails the
// function collection; on the execution collection it is skipped with a warning.
func (s *Store) EnsureSchema(ctx context.Context, settings *wavez.Settings) error {
	functions := FunctionProperties()
	for name, p := range settings.Properties {
		dt, err := config.NormalizeDataType(p.DataType)
		if err != nil {
			return errors.Wrapf(err, "custom property %q", name)
		}
		functions[name] = wavez.Property{DataType: dt, Description: p.Description}
	}
	if err := s.ensure(ctx, settings.FunctionCollection, functions); err != nil {
		return err
	}

	executions := ExecutionProperties()
	for name, p := range settings.Properties {
		dt, err := config.NormalizeDataType(p.DataType)
		if err != nil {
			s.logger.Warn("skipping custom property",
				zap.String("collection", settings.ExecutionCollection),
				zap.String("property", name),
				zap.Error(err))
			continue
		}
		executions[name] = wavez.Property{DataType: dt, Description: p.Description}
	}
	return s.ensure(ctx, settings.ExecutionCollection, executions)
}

func (s *Store) ensure(ctx context.Context, collection string, props map[string]wavez.Property) error {
	err := s.CreateCollection(ctx, collection, props)
	if stderrors.Is(err, ErrCollectionExists) {
		s.logger.Info("collection already exists", zap.String("collection", collection))
		return nil
	}
	return err
}

// FunctionMatch is a definition record returned by SearchFunctions.
type FunctionMatch struct {
	Record wavez.Record
	UUID   string
	// Score counts query terms found in the searchable text fields.
	Score int
}

// searchableFields are matched against SearchFunctions queries.
var searchableFields = []string{
	wavez.FunctionNameKey,
	wavez.SearchDescriptionKey,
	wavez.SequenceNarrativeKey,
	wavez.DocstringKey,
}

// SearchFunctions returns definition records matching filters, ranked by how
// many query terms appear in their name, descriptions and docstring. Terms
// match case-insensitively as substrings. Records matching no term are
// omitted; an empty query returns every filtered record ordered by name.
// Limit defaults to 5.
func (s *Store) SearchFunctions(ctx context.Context, settings *wavez.Settings, query string, filters map[string]any, limit int) ([]FunctionMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	records, err := s.Search(ctx, settings.FunctionCollection, Query{
		Filters:   filters,
		SortBy:    wavez.FunctionNameKey,
		Ascending: true,
	})
	if err != nil {
		return nil, err
	}

	terms := queryTerms(query)
	matches := make([]FunctionMatch, 0, len(records))
	for _, record := range records {
		score := relevance(record, terms)
		if len(terms) > 0 && score == 0 {
			continue
		}
		id, _ := record[wavez.FunctionUUIDKey].(string)
		matches = append(matches, FunctionMatch{Record: record, UUID: id, Score: score})
	}

	// Stable, so equal scores keep name order.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func queryTerms(query string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, term := range strings.Fields(strings.ToLower(query)) {
		if !seen[term] {
			seen[term] = true
			terms = append(terms, term)
		}
	}
	return terms
}

// relevance counts (term, field) pairs where the field contains the term.
func relevance(record wavez.Record, terms []string) int {
	score := 0
	for _, field := range searchableFields {
		text, ok := record[field].(string)
		if !ok || text == "" {
			continue
		}
		text = strings.ToLower(text)
		for _, term := range terms {
			if strings.Contains(text, term) {
				score++
			}
		}
	}
	return score
}

// SearchExecutions returns span records matching filters, newest first unless
// q says otherwise. Limit defaults to 10 and SortBy to the start timestamp.
func (s *Store) SearchExecutions(ctx context.Context, settings *wavez.Settings, q Query) ([]wavez.Record, error) {
	if q.Limit <= 0 {
		q.Limit = 10
	}
	if q.SortBy == "" {
		q.SortBy = wavez.TimestampKey
	}
	return s.Search(ctx, settings.ExecutionCollection, q)
}
