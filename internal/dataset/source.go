package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Source loads a table from a named location.
type Source interface {
	CanLoad(name string) bool
	Load(ctx context.Context, name string, opt Options) (*Table, error)
}

var registry []Source

// Register adds a source implementation to the registry. Sources are
// consulted in registration order.
func Register(s Source) {
	registry = append(registry, s)
}

// ErrUnsupported indicates no registered source accepts the name.
var ErrUnsupported = errors.New("unsupported dataset source")

// Load picks the first source that accepts name and loads the table.
func Load(ctx context.Context, name string, opt Options) (*Table, error) {
	for _, s := range registry {
		if s.CanLoad(name) {
			return s.Load(ctx, name, opt)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, name)
}

type urlSource struct{}

func (urlSource) CanLoad(name string) bool { return IsURL(name) }

func (urlSource) Load(ctx context.Context, name string, opt Options) (*Table, error) {
	return FetchCSV(ctx, name, opt)
}

type xlsxSource struct{}

func (xlsxSource) CanLoad(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".xlsx")
}

func (xlsxSource) Load(_ context.Context, name string, opt Options) (*Table, error) {
	return ReadXLSXFile(name, opt)
}

type csvSource struct{}

func (csvSource) CanLoad(name string) bool {
	l := strings.ToLower(name)
	if strings.HasSuffix(l, ".csv") || strings.HasSuffix(l, ".tsv") || strings.HasSuffix(l, ".txt") {
		return true
	}
	// Extensionless local files are read as CSV.
	if info, err := os.Stat(name); err == nil && !info.IsDir() {
		return !strings.Contains(info.Name(), ".")
	}
	return false
}

func (csvSource) Load(_ context.Context, name string, opt Options) (*Table, error) {
	return ReadCSVFile(name, opt)
}

func init() {
	Register(urlSource{})
	Register(xlsxSource{})
	Register(csvSource{})
}
