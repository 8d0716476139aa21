// Package knowledge loads and validates the static question/answer corpus.
package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"rubberbot/internal/domain"
)

// Format is the encoding of a corpus source.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Source yields the raw bytes of a corpus.
type Source interface {
	Name() string
	Format() Format
	Read() ([]byte, error)
}

// FileSource reads a corpus file; the extension selects the format.
type FileSource string

func (f FileSource) Name() string { return string(f) }

func (f FileSource) Format() Format {
	switch strings.ToLower(filepath.Ext(string(f))) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

func (f FileSource) Read() ([]byte, error) { return os.ReadFile(string(f)) }

// BytesSource is an in-memory corpus.
type BytesSource struct {
	Label    string
	Data     []byte
	Encoding Format
}

func (b BytesSource) Name() string { return b.Label }

func (b BytesSource) Format() Format {
	if b.Encoding == "" {
		return FormatJSON
	}
	return b.Encoding
}

func (b BytesSource) Read() ([]byte, error) { return b.Data, nil }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	if err := v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return domain.Category(fl.Field().String()).Valid()
	}); err != nil {
		panic(err)
	}
	return v
}

// Load reads, normalizes and validates every entry of src. It returns all
// entries or none: a *domain.LoadError when src cannot be read or decoded,
// a *domain.SchemaError listing each invalid field otherwise.
func Load(src Source) ([]domain.KnowledgeEntry, error) {
	data, err := src.Read()
	if err != nil {
		return nil, &domain.LoadError{Source: src.Name(), Err: errors.Wrap(err, "read")}
	}

	var entries []domain.KnowledgeEntry
	switch src.Format() {
	case FormatYAML:
		err = yaml.Unmarshal(data, &entries)
	case FormatJSON:
		err = json.Unmarshal(data, &entries)
	default:
		err = errors.Errorf("unsupported format %q", src.Format())
	}
	if err != nil {
		return nil, &domain.LoadError{Source: src.Name(), Err: errors.Wrap(err, "decode")}
	}

	var problems []domain.SchemaProblem
	seen := make(map[string]int, len(entries))
	for i := range entries {
		normalize(&entries[i])
		e := entries[i]
		label := e.ID
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}
		problems = append(problems, check(label, e)...)
		if e.ID == "" {
			continue
		}
		if first, dup := seen[e.ID]; dup {
			problems = append(problems, domain.SchemaProblem{
				EntryID: label,
				Field:   "id",
				Reason:  fmt.Sprintf("duplicate of entry #%d", first),
			})
			continue
		}
		seen[e.ID] = i
	}
	if len(problems) > 0 {
		return nil, &domain.SchemaError{Source: src.Name(), Problems: problems}
	}
	return entries, nil
}

// Topics groups questions by category, keeping corpus order within each
// category. Categories without entries are omitted.
func Topics(entries []domain.KnowledgeEntry) map[string][]string {
	out := make(map[string][]string)
	for _, e := range entries {
		out[string(e.Category)] = append(out[string(e.Category)], e.Question)
	}
	return out
}

func normalize(e *domain.KnowledgeEntry) {
	e.ID = strings.TrimSpace(e.ID)
	e.Category = domain.Category(strings.TrimSpace(string(e.Category)))
	e.Question = strings.TrimSpace(e.Question)
	e.Answer = strings.TrimSpace(e.Answer)
	if e.Keywords == nil {
		return
	}
	kws := make([]string, 0, len(e.Keywords))
	seen := make(map[string]struct{}, len(e.Keywords))
	for _, kw := range e.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			if _, ok := seen[kw]; ok {
				continue
			}
			seen[kw] = struct{}{}
		}
		kws = append(kws, kw)
	}
	e.Keywords = kws
}

func check(label string, e domain.KnowledgeEntry) []domain.SchemaProblem {
	err := validate.Struct(e)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []domain.SchemaProblem{{EntryID: label, Field: "*", Reason: err.Error()}}
	}
	out := make([]domain.SchemaProblem, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		reason := fmt.Sprintf("failed %q check", fe.Tag())
		switch fe.Tag() {
		case "required":
			reason = "is required"
		case "category":
			reason = fmt.Sprintf("%q is not one of %s", fe.Value(), strings.Join(domain.CategoryNames(), ", "))
		}
		out = append(out, domain.SchemaProblem{EntryID: label, Field: field, Reason: reason})
	}
	return out
}
