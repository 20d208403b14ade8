package config_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/datafactory/pkg/etl/core/config"
)

const stagingDDL = `
CREATE PROCEDURE usp_CreateStagingTables AS
BEGIN
CREATE TABLE Staging.Macro (
    MacroID INT IDENTITY(1,1) NOT NULL, -- surrogate key
    ReportDate DATE NOT NULL,
    [CountryName] NVARCHAR(100) NULL,
    GDP DECIMAL(18, 2) DEFAULT 0,
    /* lineage, filled by the loader */
    RowGuid UNIQUEIDENTIFIER,
    LoadBatchID UNIQUEIDENTIFIER,
    LoadDate DATETIME,
    CONSTRAINT PK_Macro PRIMARY KEY (MacroID)
) ON [PRIMARY];

CREATE TABLE IF NOT EXISTS Fraud (TransactionID INT NOT NULL, IsFraudulent BIT);
END
`

func TestParseDDL(t *testing.T) {
	schemas, order := config.ParseDDL(stagingDDL)

	require.Equal(t, []string{"Macro", "Fraud"}, order)

	macro := schemas["Macro"]
	assert.Equal(t, []string{"MacroID", "ReportDate", "CountryName", "GDP"}, macro.Names())
	assert.Equal(t, []string{"MacroID"}, macro.Identities())

	id := macro.Columns[0]
	assert.Equal(t, "INT", id.Type)
	assert.False(t, id.Nullable)

	country := macro.Columns[2]
	assert.Equal(t, "NVARCHAR(100)", country.Type)
	assert.True(t, country.Nullable)

	gdp := macro.Columns[3]
	assert.Equal(t, "DECIMAL(18,2)", gdp.Type)
	assert.Equal(t, "0", gdp.Default)

	assert.Equal(t, []string{"TransactionID", "IsFraudulent"}, schemas["Fraud"].Names())
}

func TestParseDDLIgnoresByteOrderMark(t *testing.T) {
	schemas, order := config.ParseDDL("\uFEFFCREATE TABLE Loan (CustomerID INT NOT NULL, Age INT);")

	require.Equal(t, []string{"Loan"}, order)
	assert.Equal(t, []string{"CustomerID", "Age"}, schemas["Loan"].Names())
}

func TestFindSchemaFilePrefersStagingNames(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "db", "schema.sql"), "CREATE TABLE A (x INT);")
	writeFile(t, filepath.Join(root, "db", "usp_CreateStagingTables.sql"), stagingDDL)
	writeFile(t, filepath.Join(root, "notes.txt"), "not sql")

	path, err := config.FindSchemaFile(root, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "db", "usp_CreateStagingTables.sql"), path)

	path, err = config.FindSchemaFile(root, "db/schema.sql")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "db", "schema.sql"), path)

	_, err = config.FindSchemaFile(root, "db/missing.sql")
	assert.Error(t, err)
}

func TestLoadSchemasFallsBackToDefaults(t *testing.T) {
	root := t.TempDir()

	schemas := config.LoadSchemas(root, "")
	assert.ElementsMatch(t, []string{"Loan", "Fraud", "Market", "Macro"}, keys(schemas))

	writeFile(t, filepath.Join(root, "ddl.sql"), "-- nothing to see here")
	schemas = config.LoadSchemas(root, "")
	assert.Len(t, schemas["Loan"].Columns, 40)

	writeFile(t, filepath.Join(root, "usp_create_tables.sql"), stagingDDL)
	schemas = config.LoadSchemas(root, "")
	assert.ElementsMatch(t, []string{"Macro", "Fraud"}, keys(schemas))
}

func keys(m map[string]config.Schema) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestParseSQLType(t *testing.T) {
	dec := config.ParseSQLType("decimal(10, 2)")
	assert.Equal(t, "DECIMAL", dec.Base)
	assert.Equal(t, 10, dec.Precision)
	assert.Equal(t, 2, dec.Scale)
	assert.True(t, dec.HasScale)
	assert.True(t, dec.IsDecimal())

	vc := config.ParseSQLType("NVARCHAR(50)")
	assert.Equal(t, 50, vc.Length)
	assert.True(t, vc.IsText())
	assert.False(t, vc.HasScale)

	assert.True(t, config.ParseSQLType("BIGINT").IsInteger())
	assert.True(t, config.ParseSQLType("DATETIME2").IsDateTime())
	assert.True(t, config.ParseSQLType("DATE").IsDate())
	assert.False(t, config.ParseSQLType("DATE").IsDateTime())
	assert.True(t, config.ParseSQLType("BIT").IsBool())
	assert.True(t, config.ParseSQLType("UNIQUEIDENTIFIER").IsUUID())
	assert.Equal(t, 0, config.ParseSQLType("VARCHAR(max)").Length)
}
