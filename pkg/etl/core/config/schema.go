package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tigerroll/datafactory/pkg/etl/support/util/exception"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/logger"
)

// SchemaColumn is one column of a target table.
type SchemaColumn struct {
	Name     string
	Type     string // SQL type descriptor, e.g. "DECIMAL(10,2)".
	Nullable bool
	Identity bool
	Default  string
}

// Schema is an ordered target table definition.
type Schema struct {
	Columns []SchemaColumn
}

// Names returns the column names in declaration order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// TypeOf returns the SQL type of a column.
func (s Schema) TypeOf(name string) (string, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c.Type, true
		}
	}
	return "", false
}

// Has reports whether the schema declares name.
func (s Schema) Has(name string) bool {
	_, ok := s.TypeOf(name)
	return ok
}

// IsEmpty reports whether the schema has no columns.
func (s Schema) IsEmpty() bool { return len(s.Columns) == 0 }

// Identities returns the identity columns.
func (s Schema) Identities() []string {
	var out []string
	for _, c := range s.Columns {
		if c.Identity {
			out = append(out, c.Name)
		}
	}
	return out
}

var (
	tablePattern = regexp.MustCompile(`(?is)CREATE\s+TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?(?:Staging\.)?(\w+)\s*\((.*?)(?:\)\s*(?:ON\s+\[?PRIMARY\]?|WITH|GO|;))`)
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	columnName   = regexp.MustCompile(`^\s*\[?([^\[\]\s,]+)\]?\s+`)
	columnType   = regexp.MustCompile(`([A-Za-z0-9_]+(?:\s*\([^)]*\))?)`)
	defaultValue = regexp.MustCompile(`(?i)DEFAULT\s+([^,\s]+)`)

	schemaFilePatterns = []*regexp.Regexp{
		regexp.MustCompile(`usp_create.*\.sql$`),
		regexp.MustCompile(`.*schema.*\.sql$`),
		regexp.MustCompile(`.*create.*tables.*\.sql$`),
		regexp.MustCompile(`.*ddl.*\.sql$`),
		regexp.MustCompile(`.*database.*structure.*\.sql$`),
		regexp.MustCompile(`.*tables.*definition.*\.sql$`),
	}

	lineageColumns = map[string]bool{
		"DataSourceFile": true,
		"LoadBatchID":    true,
		"LoadDate":       true,
		"LastUpdated":    true,
	}

	// Leading words of lines that are statements or table constraints rather than columns.
	reservedLeads = map[string]bool{
		"CREATE": true, "TABLE": true, "INSERT": true, "SELECT": true, "UPDATE": true,
		"DELETE": true, "DROP": true, "ALTER": true, "CONSTRAINT": true, "PRIMARY": true,
		"FOREIGN": true, "INDEX": true, "UNIQUE": true, "CHECK": true, "KEY": true,
	}
)

// ParseDDL extracts every CREATE TABLE statement of sql into named schemas.
// The returned order slice lists table names as they appear.
func ParseDDL(sql string) (map[string]Schema, []string) {
	sql = strings.TrimPrefix(sql, "\uFEFF")
	schemas := make(map[string]Schema)
	var order []string
	for _, m := range tablePattern.FindAllStringSubmatch(sql, -1) {
		name := m[1]
		if _, seen := schemas[name]; !seen {
			order = append(order, name)
		}
		schemas[name] = Schema{Columns: parseColumns(m[2])}
		logger.Debugf("Found table definition %s with %d columns", name, len(schemas[name].Columns))
	}
	return schemas, order
}

func parseColumns(body string) []SchemaColumn {
	body = blockComment.ReplaceAllString(body, "")
	var lines []string
	for _, line := range strings.Split(body, "\n") {
		if idx := strings.Index(line, "--"); idx >= 0 {
			line = line[:idx]
		}
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	joined := strings.Join(lines, " ")

	var defs []string
	depth, start := 0, 0
	for i, r := range joined {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				defs = append(defs, strings.TrimSpace(joined[start:i]))
				start = i + 1
			}
		}
	}
	defs = append(defs, strings.TrimSpace(joined[start:]))

	var cols []SchemaColumn
	for _, def := range defs {
		if col, ok := parseColumn(def); ok {
			cols = append(cols, col)
		}
	}
	return cols
}

func parseColumn(def string) (SchemaColumn, bool) {
	if len(strings.Fields(def)) < 2 {
		return SchemaColumn{}, false
	}
	m := columnName.FindStringSubmatchIndex(def)
	if m == nil {
		return SchemaColumn{}, false
	}
	name := strings.Trim(def[m[2]:m[3]], "[]\"'`")
	if lineageColumns[name] || reservedLeads[strings.ToUpper(name)] {
		return SchemaColumn{}, false
	}
	rest := strings.TrimSpace(def[m[1]:])
	sqlType := columnType.FindString(rest)
	if sqlType == "" || strings.EqualFold(sqlType, "UNIQUEIDENTIFIER") {
		return SchemaColumn{}, false
	}
	upper := strings.ToUpper(rest)
	col := SchemaColumn{
		Name:     name,
		Type:     strings.Join(strings.Fields(sqlType), ""),
		Nullable: !strings.Contains(upper, "NOT NULL"),
		Identity: strings.Contains(upper, "IDENTITY"),
	}
	if d := defaultValue.FindStringSubmatch(rest); d != nil {
		col.Default = d[1]
	}
	return col, true
}

// FindSchemaFile resolves the DDL file: the explicit definition file when set, otherwise
// the first file under root whose name matches a schema pattern, preferring staging/usp names.
func FindSchemaFile(root, definitionFile string) (string, error) {
	if definitionFile != "" {
		path := definitionFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		if _, err := os.Stat(path); err != nil {
			return "", exception.NewPipelineError(moduleName, "schema definition file not found", err)
		}
		return path, nil
	}

	var candidates []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		lower := strings.ToLower(d.Name())
		for _, p := range schemaFilePatterns {
			if p.MatchString(lower) {
				candidates = append(candidates, path)
				break
			}
		}
		return nil
	})
	if err != nil {
		return "", exception.NewPipelineError(moduleName, "failed to search for schema files", err)
	}
	for _, c := range candidates {
		lower := strings.ToLower(filepath.Base(c))
		if strings.Contains(lower, "staging") || strings.Contains(lower, "usp") {
			return c, nil
		}
	}
	if len(candidates) > 0 {
		return candidates[0], nil
	}
	return "", exception.NewPipelineError(moduleName, "no SQL schema definition file found", os.ErrNotExist)
}

// LoadSchemas finds and parses the DDL under root, falling back to the built-in schemas
// when no file or no table definition can be found.
func LoadSchemas(root, definitionFile string) map[string]Schema {
	path, err := FindSchemaFile(root, definitionFile)
	if err != nil {
		logger.Warnf("%v. Using default schemas.", err)
		return DefaultSchemas()
	}
	logger.Infof("Using schema definition file: %s", path)
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Errorf("Error reading SQL schema %s: %v", path, err)
		return DefaultSchemas()
	}
	schemas, _ := ParseDDL(string(data))
	if len(schemas) == 0 {
		logger.Warnf("No schema definitions found in %s. Using default schemas.", path)
		return DefaultSchemas()
	}
	return schemas
}
