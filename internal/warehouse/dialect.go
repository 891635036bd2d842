package warehouse

import (
	"fmt"
	"strings"
)

// Dialect holds the SQL differences between supported stores.
type Dialect struct {
	Name  string
	types map[ColumnType]string
	quote func(string) string

	// Placeholder returns the bind parameter for the 1-based position n.
	Placeholder func(n int) string
}

var (
	// SQLite is the dialect of modernc.org/sqlite.
	SQLite = Dialect{
		Name: "sqlite",
		types: map[ColumnType]string{
			TypeInt:       "INTEGER",
			TypeText:      "TEXT",
			TypeFloat:     "REAL",
			TypeBool:      "INTEGER",
			TypeTimestamp: "TIMESTAMP",
		},
		quote:       doubleQuote,
		Placeholder: func(int) string { return "?" },
	}

	// MySQL is the dialect of go-sql-driver/mysql.
	MySQL = Dialect{
		Name: "mysql",
		types: map[ColumnType]string{
			TypeInt:       "BIGINT",
			TypeText:      "TEXT",
			TypeFloat:     "DOUBLE",
			TypeBool:      "BOOLEAN",
			TypeTimestamp: "DATETIME",
		},
		quote:       func(s string) string { return "`" + strings.ReplaceAll(s, "`", "``") + "`" },
		Placeholder: func(int) string { return "?" },
	}

	// Postgres is the dialect of pgx.
	Postgres = Dialect{
		Name: "postgres",
		types: map[ColumnType]string{
			TypeInt:       "BIGINT",
			TypeText:      "TEXT",
			TypeFloat:     "DOUBLE PRECISION",
			TypeBool:      "BOOLEAN",
			TypeTimestamp: "TIMESTAMP",
		},
		quote:       doubleQuote,
		Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	}
)

func doubleQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Quote quotes an identifier.
func (d Dialect) Quote(name string) string { return d.quote(name) }

// CreateTable returns the CREATE TABLE statement for t.
func (d Dialect) CreateTable(t Table) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(d.quote(t.Name))
	b.WriteString(" (")
	for i, c := range t.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.quote(c.Name))
		b.WriteByte(' ')
		b.WriteString(d.types[c.Type])
		if !c.Nullable {
			b.WriteString(" NOT NULL")
		}
	}
	if len(t.PrimaryKey) > 0 {
		b.WriteString(", PRIMARY KEY (")
		for i, k := range t.PrimaryKey {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.quote(k))
		}
		b.WriteByte(')')
	}
	b.WriteByte(')')
	return b.String()
}

// DropTable returns the DROP TABLE IF EXISTS statement for name.
func (d Dialect) DropTable(name string) string {
	return "DROP TABLE IF EXISTS " + d.quote(name)
}

// Insert returns a single-row INSERT statement for t.
func (d Dialect) Insert(t Table) string {
	cols := make([]string, len(t.Columns))
	params := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = d.quote(c.Name)
		params[i] = d.Placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.quote(t.Name), strings.Join(cols, ", "), strings.Join(params, ", "))
}
