package database

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/Gidwell/jiro/internal/apperr"
)

// Dialect identifies a storage backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

// Valid reports whether d is a supported backend.
func (d Dialect) Valid() bool {
	switch d {
	case DialectSQLite, DialectMySQL, DialectPostgres:
		return true
	}
	return false
}

// DriverName returns the database/sql driver registered for d.
func (d Dialect) DriverName() string {
	switch d {
	case DialectSQLite:
		return "sqlite3"
	case DialectPostgres:
		return "pgx"
	default:
		return string(d)
	}
}

func (d Dialect) bindType() int {
	if d == DialectPostgres {
		return sqlx.DOLLAR
	}
	return sqlx.QUESTION
}

var (
	macroPattern      = regexp.MustCompile(`\{\{\s*([a-z_]+)\s*([^{}]*?)\s*\}\}`)
	identifierPattern = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?|\?)$`)
)

// Translate turns a dialect neutral statement into the syntax of d.
//
// The neutral form is plain SQL with `?` placeholders plus these macros:
//
//	{{bool true}}            boolean literal
//	{{date COL}}             truncate a timestamp to its date
//	{{add_days COL N}}       timestamp plus N days (N is an integer literal)
//	{{upsert KEY: A, B}}     upsert tail updating A and B on a KEY conflict
//
// Anything it cannot translate is reported as *apperr.DialectError.
func Translate(d Dialect, neutral string) (string, error) {
	if !d.Valid() {
		return "", &apperr.DialectError{Dialect: string(d), Statement: neutral, Reason: "unsupported backend"}
	}

	var failure error
	out := macroPattern.ReplaceAllStringFunc(neutral, func(match string) string {
		if failure != nil {
			return match
		}
		parts := macroPattern.FindStringSubmatch(match)
		expanded, err := d.expand(parts[1], strings.TrimSpace(parts[2]))
		if err != nil {
			failure = &apperr.DialectError{Dialect: string(d), Statement: neutral, Reason: err.Error()}
			return match
		}
		return expanded
	})
	if failure != nil {
		return "", failure
	}
	if strings.Contains(out, "{{") || strings.Contains(out, "}}") {
		return "", &apperr.DialectError{Dialect: string(d), Statement: neutral, Reason: "malformed macro"}
	}
	return sqlx.Rebind(d.bindType(), out), nil
}

func (d Dialect) expand(name, args string) (string, error) {
	switch name {
	case "bool":
		return d.boolLiteral(args)
	case "date":
		if !identifierPattern.MatchString(args) {
			return "", fmt.Errorf("date: invalid column %q", args)
		}
		return d.dateOf(args), nil
	case "add_days":
		fields := strings.Fields(args)
		if len(fields) != 2 || !identifierPattern.MatchString(fields[0]) {
			return "", fmt.Errorf("add_days: expected column and day count, got %q", args)
		}
		days, err := strconv.Atoi(fields[1])
		if err != nil {
			return "", fmt.Errorf("add_days: day count %q is not an integer", fields[1])
		}
		return d.addDays(fields[0], days), nil
	case "upsert":
		key, columns, err := parseUpsert(args)
		if err != nil {
			return "", err
		}
		return d.upsertTail(key, columns), nil
	default:
		return "", fmt.Errorf("unknown macro %q", name)
	}
}

func (d Dialect) boolLiteral(arg string) (string, error) {
	var value bool
	switch strings.ToLower(arg) {
	case "true":
		value = true
	case "false":
	default:
		return "", fmt.Errorf("bool: invalid literal %q", arg)
	}
	if d == DialectSQLite {
		if value {
			return "1", nil
		}
		return "0", nil
	}
	if value {
		return "TRUE", nil
	}
	return "FALSE", nil
}

func (d Dialect) dateOf(column string) string {
	switch d {
	case DialectSQLite:
		return "date(" + column + ")"
	case DialectPostgres:
		return "CAST(" + column + " AS DATE)"
	default:
		return "DATE(" + column + ")"
	}
}

func (d Dialect) addDays(column string, days int) string {
	switch d {
	case DialectSQLite:
		return fmt.Sprintf("datetime(%s, '%+d days')", column, days)
	case DialectPostgres:
		return fmt.Sprintf("(CAST(%s AS TIMESTAMPTZ) + INTERVAL '%d days')", column, days)
	default:
		return fmt.Sprintf("DATE_ADD(%s, INTERVAL %d DAY)", column, days)
	}
}

func (d Dialect) upsertTail(key string, columns []string) string {
	assignments := make([]string, len(columns))
	for i, c := range columns {
		if d == DialectMySQL {
			assignments[i] = fmt.Sprintf("%s = VALUES(%s)", c, c)
		} else {
			assignments[i] = fmt.Sprintf("%s = excluded.%s", c, c)
		}
	}
	if d == DialectMySQL {
		return "ON DUPLICATE KEY UPDATE " + strings.Join(assignments, ", ")
	}
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", key, strings.Join(assignments, ", "))
}

func parseUpsert(args string) (string, []string, error) {
	key, rest, ok := strings.Cut(args, ":")
	if !ok {
		return "", nil, fmt.Errorf("upsert: missing key separator in %q", args)
	}
	key = strings.TrimSpace(key)
	if !identifierPattern.MatchString(key) || key == "?" {
		return "", nil, fmt.Errorf("upsert: invalid key %q", key)
	}
	var columns []string
	for _, c := range strings.Split(rest, ",") {
		c = strings.TrimSpace(c)
		if !identifierPattern.MatchString(c) || c == "?" || strings.Contains(c, ".") {
			return "", nil, fmt.Errorf("upsert: invalid column %q", c)
		}
		columns = append(columns, c)
	}
	return key, columns, nil
}
