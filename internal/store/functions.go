package store

import (
	"database/sql"
	"fmt"
	"math"
	"regexp"
	"sync"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// driverName is the sqlite3 driver with the dialect's functions registered.
const driverName = "sqlite3_strata"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: registerFunctions,
	})
}

func registerFunctions(conn *sqlite3.SQLiteConn) error {
	funcs := []struct {
		name string
		impl any
	}{
		{"regexp", sqlRegexp},
		{"power", sqlPower},
		{"floor", sqlFloor},
	}
	for _, f := range funcs {
		if err := conn.RegisterFunc(f.name, f.impl, true); err != nil {
			return fmt.Errorf("register %s: %w", f.name, err)
		}
	}
	return nil
}

var patterns sync.Map // string -> *regexp.Regexp

// sqlRegexp implements "s REGEXP pattern", which SQLite calls as
// regexp(pattern, s). NULL operands give NULL.
func sqlRegexp(pattern, s any) (any, error) {
	p, ok1 := text(pattern)
	v, ok2 := text(s)
	if !ok1 || !ok2 {
		return nil, nil
	}
	re, ok := patterns.Load(p)
	if !ok {
		compiled, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("regexp %q: %w", p, err)
		}
		re, _ = patterns.LoadOrStore(p, compiled)
	}
	return re.(*regexp.Regexp).MatchString(v), nil
}

func sqlPower(x, y any) any {
	a, ok1 := number(x)
	b, ok2 := number(y)
	if !ok1 || !ok2 {
		return nil
	}
	return math.Pow(a, b)
}

func sqlFloor(x any) any {
	a, ok := number(x)
	if !ok {
		return nil
	}
	return math.Floor(a)
}

func text(x any) (string, bool) {
	switch v := x.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	}
	return "", false
}

func number(x any) (float64, bool) {
	switch v := x.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}
